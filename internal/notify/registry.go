// Package notify implements spec.md §4.D (active-notifications registry),
// §4.E (eventfd listener), and §4.F (notifications façade): registration of
// kernel eventfd-based notifications against cgroup control files, and
// multiplexed delivery to user callbacks.
package notify

import "sync"

// Handle is a monotonically increasing, process-unique notification id
// (spec.md §3 "Notification handle"). Never reused; live in the registry
// from Add to Remove.
type Handle int64

// Callback receives event deliveries for one registration. name identifies
// the registration, counterValue is the decoded eventfd counter, and
// termination is "exit"/"error" for teardown deliveries and "" for live
// events (spec.md §4.E). The return value is only consulted for live
// events ("" termination): returning false ("stop") removes the
// registration cleanly, mirroring the C++ EventReceiverInterface's
// ReportEvent boolean return.
type Callback func(name string, counterValue uint64, termination string) bool

// Registry is the process-wide set of live notification handles
// (spec.md §4.D). Exactly one should exist per Container API instance
// (spec.md §9 "Global state").
type Registry struct {
	mu     sync.Mutex
	nextID Handle
	active map[Handle]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{active: map[Handle]bool{}}
}

// Add allocates a new handle strictly greater than every previously issued
// id in this Registry's lifetime and marks it live.
func (r *Registry) Add() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	h := r.nextID
	r.active[h] = true
	return h
}

// Remove removes h from the active set, returning true exactly once per
// successfully added handle.
func (r *Registry) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active[h] {
		return false
	}
	delete(r.active, h)
	return true
}

// Contains reports whether h is currently live.
func (r *Registry) Contains(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[h]
}

// Size returns the number of currently live handles.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
