// Package policy implements the ordered pre-execution guardrail chain.
// Each policy exposes Check; the chain short-circuits on the first
// block. A policy that panics is treated as an allow for that policy —
// a broken guardrail must never stall the queue.
package policy

import (
	"context"

	"github.com/linkmeAman/universal-middleware/internal/store"
)

// Decision is one policy's verdict.
type Decision struct {
	Allowed bool
	Code    string
	Message string
	Detail  map[string]any
}

func allow() Decision { return Decision{Allowed: true} }

func block(code, message string) Decision {
	return Decision{Allowed: false, Code: code, Message: message}
}

// Policy is one guardrail in the chain.
type Policy interface {
	Name() string
	Check(ctx context.Context, cmd *store.Command) Decision
}

// Chain runs every policy in order, stopping at the first block. It
// never panics: a policy whose Check panics is recorded as allowed.
type Chain struct {
	policies []Policy
}

func NewChain(policies ...Policy) *Chain {
	return &Chain{policies: policies}
}

// Run returns the first blocking decision (with its policy name) or a
// zero Decision and the list of policy names that all passed.
func (c *Chain) Run(ctx context.Context, cmd *store.Command) (blockedBy string, decision Decision, passed []string) {
	for _, p := range c.policies {
		d := runOne(ctx, p, cmd)
		if !d.Allowed {
			return p.Name(), d, passed
		}
		passed = append(passed, p.Name())
	}
	return "", Decision{}, passed
}

func runOne(ctx context.Context, p Policy, cmd *store.Command) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = allow()
		}
	}()
	return p.Check(ctx, cmd)
}
