// Package flow handles parsing, validation and representation of YAML bot
// definitions: field schemas, steps, the action registry and the built-in
// actions.
package flow

// Bot is a validated bot definition.
type Bot struct {
	Title          string
	Steps          *StepList
	ExceptionSteps *StepList // Run once, in order, when a main step fails
	SourcePath     string    // Path to the source file, if loaded from disk
}
