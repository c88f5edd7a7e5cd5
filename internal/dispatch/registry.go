package dispatch

import (
	"fmt"
	"sort"
	"sync"
)

// Registration is a handler admitted into the priority table, together with
// its dispatch attributes. The pointer identity doubles as the unregister
// handle, so hot-reload collaborators can replace a handler with the
// unregister-old/register-new pair.
type Registration struct {
	handler  Handler
	priority int
	block    bool
	name     string
}

// Handler returns the registered handler.
func (r *Registration) Handler() Handler { return r.handler }

// Priority returns the registration's priority tier.
func (r *Registration) Priority() int { return r.priority }

// Block reports whether a successful match at this registration stops
// further tiers from running.
func (r *Registration) Block() bool { return r.block }

// Name returns the handler identity used in logs.
func (r *Registration) Name() string { return r.name }

// String implements fmt.Stringer.
func (r *Registration) String() string {
	return fmt.Sprintf("%s(priority=%d)", r.name, r.priority)
}

// RegisterOption configures a registration.
type RegisterOption func(*Registration)

// WithPriority sets the priority tier. Lower priorities run first.
// The default is 0.
func WithPriority(p int) RegisterOption {
	return func(r *Registration) {
		r.priority = p
	}
}

// WithBlock marks the registration as blocking: a successful match stops
// the dispatch after this handler.
func WithBlock() RegisterOption {
	return func(r *Registration) {
		r.block = true
	}
}

// WithName sets the handler identity used in logs.
// The default is the handler's Go type.
func WithName(name string) RegisterOption {
	return func(r *Registration) {
		r.name = name
	}
}

// Registry is the priority table mapping each priority to its ordered list
// of registrations. It is safe for concurrent use; mutation may happen while
// a dispatch over another event is in flight.
type Registry struct {
	mu      sync.RWMutex
	buckets map[int][]*Registration
}

// NewRegistry creates an empty priority table.
func NewRegistry() *Registry {
	return &Registry{
		buckets: make(map[int][]*Registration),
	}
}

// Register admits a handler into its priority bucket, creating the bucket if
// absent. Registration order within a bucket is stable. It returns the
// handle needed to unregister the handler later.
func (r *Registry) Register(h Handler, opts ...RegisterOption) (*Registration, error) {
	if h == nil {
		return nil, ErrNilHandler
	}

	reg := &Registration{handler: h}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.priority < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, reg.priority)
	}
	if reg.name == "" {
		reg.name = fmt.Sprintf("%T", h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets[reg.priority] = append(r.buckets[reg.priority], reg)
	return reg, nil
}

// Unregister removes a registration from its bucket. Removing the last entry
// of a bucket removes the bucket, so iteration never visits empty tiers.
func (r *Registry) Unregister(reg *Registration) error {
	if reg == nil {
		return ErrNotRegistered
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[reg.priority]
	for i, other := range bucket {
		if other == reg {
			r.buckets[reg.priority] = append(bucket[:i], bucket[i+1:]...)
			if len(r.buckets[reg.priority]) == 0 {
				delete(r.buckets, reg.priority)
			}
			return nil
		}
	}
	return ErrNotRegistered
}

// Snapshot returns the current tiers in ascending priority order. The
// returned slices are copies: later registry mutation never corrupts an
// iteration over a snapshot, and dispatches already under way do not observe
// registrations made after they took their snapshot.
func (r *Registry) Snapshot() [][]*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.buckets) == 0 {
		return nil
	}

	priorities := make([]int, 0, len(r.buckets))
	for p := range r.buckets {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	tiers := make([][]*Registration, 0, len(priorities))
	for _, p := range priorities {
		tier := make([]*Registration, len(r.buckets[p]))
		copy(tier, r.buckets[p])
		tiers = append(tiers, tier)
	}
	return tiers
}

// Count returns the total number of registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, bucket := range r.buckets {
		n += len(bucket)
	}
	return n
}

// Priorities returns the occupied priority tiers in ascending order.
func (r *Registry) Priorities() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	priorities := make([]int, 0, len(r.buckets))
	for p := range r.buckets {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)
	return priorities
}
