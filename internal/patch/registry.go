// Package patch applies reversible wrappers to host function slots and
// unwinds them in reverse order of application.
package patch

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTargetUnavailable is returned by Apply when the slot holds no function.
var ErrTargetUnavailable = errors.New("patch: target unavailable")

// Handle is one applied patch. It remembers the value the slot held
// immediately before the patch so revert restores that value, which is not
// necessarily the pristine original when slots are patched more than once.
type Handle struct {
	name    string
	restore func() error
	done    bool
}

// Name returns the slot name the handle was applied to.
func (h *Handle) Name() string {
	return h.name
}

// Registry tracks live patches. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	handles []*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Apply replaces the function in slot with wrap(current) and records a
// handle that restores current. Nothing is installed when the slot is empty
// or the store fails.
func Apply[F any](r *Registry, slot Slot[F], wrap func(F) F) (*Handle, error) {
	if slot == nil {
		return nil, fmt.Errorf("%w: nil slot", ErrTargetUnavailable)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := slot.Load()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetUnavailable, slot.Name())
	}
	if err := slot.Store(wrap(prev)); err != nil {
		return nil, fmt.Errorf("patch %s: %w", slot.Name(), err)
	}

	h := &Handle{
		name: slot.Name(),
		restore: func() error {
			return slot.Store(prev)
		},
	}
	r.handles = append(r.handles, h)
	return h, nil
}

// RevertAll restores every live patch, most recent first, then clears the
// registry. Individual restore failures do not stop the unwind; they are
// joined into the returned error. Calling it with no live patches is a no-op.
func (r *Registry) RevertAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := r.handles
	r.handles = nil

	var errs []error
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		if h.done {
			continue
		}
		h.done = true
		if err := h.restore(); err != nil {
			errs = append(errs, fmt.Errorf("revert %s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of live patches.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Names returns the slot names of live patches in application order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.handles))
	for i, h := range r.handles {
		names[i] = h.name
	}
	return names
}
