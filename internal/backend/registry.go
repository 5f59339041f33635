package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the last availability probe outcome for one backend.
type Status struct {
	Name        string
	Available   bool
	LastChecked time.Time
	Err         string
}

type entry struct {
	backend Backend
	cap     Capability
	status  Status
}

// Registry holds the registered backends in registration order. Order is
// significant: it breaks score ties and drives the default fallback chain.
type Registry struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	log     zerolog.Logger
	now     func() time.Time
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     log.With().Str("component", "backend-registry").Logger(),
		now:     time.Now,
	}
}

// Register adds a backend under its own name. Duplicate names are rejected.
func (r *Registry) Register(b Backend, capability Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := b.Name()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.order = append(r.order, name)
	r.entries[name] = &entry{backend: b, cap: capability, status: Status{Name: name}}
	r.log.Debug().Str("backend", name).Msg("backend registered")
	return nil
}

// Get returns the backend by name.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.backend, true
}

// Capability returns the declared capability for name.
func (r *Registry) Capability(name string) (Capability, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return Capability{}, false
	}
	return e.cap, true
}

// Names lists all registered backends in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Index returns the registration position of name, or -1.
func (r *Registry) Index(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return -1
}

// Refresh probes every backend's availability and records the outcome. The
// probes run outside the registry lock so a slow backend does not block
// lookups.
func (r *Registry) Refresh(ctx context.Context) {
	r.mu.Lock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.Unlock()

	for _, name := range names {
		b, ok := r.Get(name)
		if !ok {
			continue
		}
		available := b.IsAvailable(ctx)
		r.mu.Lock()
		if e, ok := r.entries[name]; ok {
			e.status.Available = available
			e.status.LastChecked = r.now()
			if available {
				e.status.Err = ""
			} else {
				e.status.Err = "availability probe failed"
			}
		}
		r.mu.Unlock()
		r.log.Debug().Str("backend", name).Bool("available", available).Msg("availability probed")
	}
}

// Available refreshes and returns the names of usable backends in
// registration order.
func (r *Registry) Available(ctx context.Context) []string {
	r.Refresh(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, name := range r.order {
		if e, ok := r.entries[name]; ok && e.status.Available {
			out = append(out, name)
		}
	}
	return out
}

// MarkFailed records a load failure against the backend's status without
// flipping availability; the message shows up in status listings.
func (r *Registry) MarkFailed(name string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.status.Err = err.Error()
		e.status.LastChecked = r.now()
	}
}

// Statuses returns a snapshot of all probe outcomes in registration order.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		if e, ok := r.entries[name]; ok {
			out = append(out, e.status)
		}
	}
	return out
}
