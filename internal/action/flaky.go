package action

import "context"

// Flaky fails on the first attempt and succeeds afterward, exercising
// the retry round-trip end to end.
type Flaky struct{}

func NewFlaky() *Flaky { return &Flaky{} }

func (f *Flaky) Name() string { return "FLAKY" }

func (f *Flaky) RunCore(ctx context.Context, cmd Command) Output {
	if cmd.Attempt <= 1 {
		return Output{OK: false, Error: map[string]any{"code": "FLAKY_FAIL", "attempt": cmd.Attempt}}
	}
	return Output{OK: true, Result: map[string]any{
		"ok":      true,
		"type":    "flaky",
		"attempt": cmd.Attempt,
	}}
}

func (f *Flaky) Run(ctx context.Context, cmd Command) Output {
	return f.RunCore(ctx, cmd)
}
