package patch

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrDetached is returned when storing into a slot whose owner is gone.
var ErrDetached = errors.New("patch: slot detached")

// Slot is a named, function-valued location on a host object.
// Load reports false when the slot currently holds no function.
type Slot[F any] interface {
	Name() string
	Load() (F, bool)
	Store(fn F) error
}

// Var is a function slot that hosts expose for patching.
// Reads and writes are atomic, so callers may invoke the current function
// while another goroutine swaps it.
type Var[F any] struct {
	name     string
	fn       atomic.Pointer[F]
	detached atomic.Bool
}

// NewVar creates a slot holding fn.
func NewVar[F any](name string, fn F) *Var[F] {
	v := &Var[F]{name: name}
	v.fn.Store(&fn)
	return v
}

// EmptyVar creates a slot that holds no function yet.
func EmptyVar[F any](name string) *Var[F] {
	return &Var[F]{name: name}
}

// Name returns the "object.property" label of the slot.
func (v *Var[F]) Name() string {
	return v.name
}

// Load returns the installed function.
func (v *Var[F]) Load() (F, bool) {
	var zero F
	if v == nil || v.detached.Load() {
		return zero, false
	}
	p := v.fn.Load()
	if p == nil {
		return zero, false
	}
	return *p, true
}

// Store installs fn.
func (v *Var[F]) Store(fn F) error {
	if v == nil {
		return fmt.Errorf("%w: nil slot", ErrDetached)
	}
	if v.detached.Load() {
		return fmt.Errorf("%w: %s", ErrDetached, v.name)
	}
	v.fn.Store(&fn)
	return nil
}

// Detach marks the slot as gone. Subsequent loads report nothing and
// stores fail with ErrDetached.
func (v *Var[F]) Detach() {
	v.detached.Store(true)
}
