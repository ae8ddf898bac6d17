package executor

import (
	"math/rand"
	"time"
)

// Delay is the pause inserted between consecutive top-level steps. When Max
// is greater than Min each pause is drawn uniformly from [Min, Max].
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// Next returns the next pause.
func (d Delay) Next() time.Duration {
	if d.Min < 0 {
		d.Min = 0
	}
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rand.Int63n(int64(d.Max-d.Min+1)))
}

// Enabled reports whether any pause is configured.
func (d Delay) Enabled() bool {
	return d.Min > 0 || d.Max > 0
}
