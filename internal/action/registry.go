package action

import (
	"strings"
	"sync"
)

// Registry maps an uppercase command type to its Handler. It is
// populated once at startup via Init and is safe to call Init again
// (idempotent re-init), matching the original's init_actions() behavior.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds or replaces the handler for its Name(), normalized to
// trimmed uppercase.
func (r *Registry) Register(h Handler) {
	key := normalizeType(h.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key] = h
}

// Init registers the built-in handlers. Safe to call more than once;
// later calls simply overwrite the same keys. production may be nil, in
// which case QUOTE uses the deterministic local derivation.
func (r *Registry) Init(production ProductionQuoter) {
	r.Register(NewNoop())
	r.Register(NewFail())
	r.Register(NewFlaky())
	r.Register(NewQuote(production))
}

// Lookup finds a handler by command type, case-insensitive trimmed
// uppercase.
func (r *Registry) Lookup(cmdType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[normalizeType(cmdType)]
	return h, ok
}

func normalizeType(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
