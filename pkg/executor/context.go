package executor

// Context is the execution context of one bot run: step outputs keyed by
// step title, plus scratch layers pushed by control-flow steps.
//
// Outputs are never removed, whatever depth they were recorded at, so a step
// can reference the output of a step nested in an earlier control-flow step.
// A layer only shadows the keys it was pushed with and disappears with them.
type Context struct {
	values map[string]any
	layers []map[string]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

// Record stores a step's output under its title. A later step with the
// same title, such as the next iteration of a loop, replaces it.
func (c *Context) Record(title string, output map[string]any) {
	c.values[title] = output
}

// Push opens a scratch layer holding scope.
func (c *Context) Push(scope map[string]any) {
	layer := make(map[string]any, len(scope))
	for k, v := range scope {
		layer[k] = v
	}
	c.layers = append(c.layers, layer)
}

// Pop discards the innermost scratch layer.
func (c *Context) Pop() {
	if n := len(c.layers); n > 0 {
		c.layers[n-1] = nil
		c.layers = c.layers[:n-1]
	}
}

// Depth returns the number of active scratch layers.
func (c *Context) Depth() int { return len(c.layers) }

// Lookup returns key from the innermost scope that defines it.
func (c *Context) Lookup(key string) (any, bool) {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if v, ok := c.layers[i][key]; ok {
			return v, true
		}
	}
	v, ok := c.values[key]
	return v, ok
}

// View returns the merged mapping placeholders resolve against. Inner
// layers shadow outer ones.
func (c *Context) View() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	for _, layer := range c.layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Snapshot returns a copy of the recorded outputs.
func (c *Context) Snapshot() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
