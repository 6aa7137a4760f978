package action

import "context"

// Noop echoes its payload into the result. Used to exercise the happy
// path end-to-end without side effects.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Name() string { return "NOOP" }

func (n *Noop) RunCore(ctx context.Context, cmd Command) Output {
	return Output{
		OK: true,
		Result: map[string]any{
			"ok":      true,
			"type":    "noop",
			"payload": cmd.Payload,
		},
	}
}

func (n *Noop) Run(ctx context.Context, cmd Command) Output {
	return n.RunCore(ctx, cmd)
}
