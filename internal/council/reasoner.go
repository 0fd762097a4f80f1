package council

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// #region reasoner

// Reasoner analyses a message from one perspective. Implementations report
// failures through Result.Error rather than panicking; runGuarded guards against both.
type Reasoner interface {
	Name() string
	Reason(ctx context.Context, rc *ReasoningContext) Result
}

// errorResult converts a failure into a zero-confidence result.
func errorResult(name string, err error) Result {
	return Result{
		ReasonerName: name,
		Reasoning:    fmt.Sprintf("%s reasoner failed: %v", name, err),
		Confidence:   0,
		Error:        err.Error(),
	}
}

// runGuarded executes one reasoner, converting panics into an error result.
func runGuarded(ctx context.Context, r Reasoner, rc *ReasoningContext) (res Result) {
	name := r.Name()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = errorResult(name, fmt.Errorf("panic: %v", p))
		}
		res.ReasonerName = name
		res.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		return errorResult(name, err)
	}
	res = r.Reason(ctx, rc)
	if res.Error != "" && res.Confidence != 0 {
		res.Confidence = 0
	}
	return res
}

// #endregion reasoner

// #region registry

// Registry is an ordered set of reasoners owned by one coordinator.
type Registry struct {
	mu        sync.RWMutex
	reasoners []Reasoner
}

// NewRegistry creates a registry holding rs in order.
func NewRegistry(rs ...Reasoner) *Registry {
	reg := &Registry{}
	for _, r := range rs {
		_ = reg.Register(r)
	}
	return reg
}

// DefaultRegistry holds the five standard reasoners.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewPersonalityReasoner(),
		NewMemoryReasoner(),
		NewSpatialReasoner(),
		NewActionReasoner(),
		NewValidationReasoner(),
	)
}

// Register appends r. Names must be unique.
func (reg *Registry) Register(r Reasoner) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, existing := range reg.reasoners {
		if existing.Name() == r.Name() {
			return fmt.Errorf("reasoner %q already registered", r.Name())
		}
	}
	reg.reasoners = append(reg.reasoners, r)
	return nil
}

// Reasoners returns a copy of the registered reasoners in order.
func (reg *Registry) Reasoners() []Reasoner {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]Reasoner, len(reg.reasoners))
	copy(out, reg.reasoners)
	return out
}

// Clear removes every reasoner.
func (reg *Registry) Clear() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.reasoners = nil
}

// Len returns the number of registered reasoners.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.reasoners)
}

// #endregion registry
