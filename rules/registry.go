package rules

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps rule codes to their implementations. It is populated once at
// the composition root and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// Register adds a rule. Registering the same code twice is an error.
func (r *Registry) Register(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("nil rule")
	}
	code := rule.Code()
	if code == "" {
		return fmt.Errorf("rule code is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[code]; exists {
		return fmt.Errorf("rule %s already registered", code)
	}
	r.rules[code] = rule
	return nil
}

// MustRegister registers rules and panics on error.
func (r *Registry) MustRegister(rules ...Rule) {
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			panic("register rule: " + err.Error())
		}
	}
}

// Get returns the rule registered for code.
func (r *Registry) Get(code string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[code]
	return rule, ok
}

// Codes returns all registered codes in lexical order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.rules))
	for code := range r.rules {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}
