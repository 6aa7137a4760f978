package action

import "context"

// Fail always returns a structured failure. Used to exercise the
// terminal-failure and cooldown-after-fail paths.
type Fail struct{}

func NewFail() *Fail { return &Fail{} }

func (f *Fail) Name() string { return "FAIL" }

func (f *Fail) RunCore(ctx context.Context, cmd Command) Output {
	return Output{OK: false, Error: map[string]any{"code": "INTENTIONAL_FAIL"}}
}

func (f *Fail) Run(ctx context.Context, cmd Command) Output {
	return f.RunCore(ctx, cmd)
}
