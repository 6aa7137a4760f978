// Package action holds the command-type handler registry and the
// Validate/Execute/Postprocess pipeline wrapped around each handler.
package action

import "context"

// Output is what a handler or pipeline step returns. Handlers must never
// panic; a recovered panic is converted to a STEP_EXCEPTION Output by the
// pipeline, never surfaced to the runner as a Go panic.
type Output struct {
	OK     bool
	Result map[string]any
	Error  any // structured map, string, or nil
}

// Command is the normalized view of a claimed row a handler operates on.
type Command struct {
	ID      string
	Type    string
	Attempt int
	Payload map[string]any
}

// Handler is a command-type implementation. Run defaults to RunCore for
// every built-in; it exists as a seam for handlers that need to wrap
// RunCore with type-specific pre/post behavior beyond what the shared
// pipeline already provides.
type Handler interface {
	Name() string
	RunCore(ctx context.Context, cmd Command) Output
	Run(ctx context.Context, cmd Command) Output
}
