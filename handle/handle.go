package handle

import (
	"fmt"
	"reflect"

	"github.com/jglrxavpok/carrot-handles/errors"
)

// Handle is a strong, ref-counted reference to an object in a Storage.
//
// The zero value is an empty handle. Go assignment copies the fields without
// touching the reference count, so treat plain assignment as a transfer and
// use Clone or Assign when both copies must stay alive. Every bound handle
// must eventually be released with Release (or handed on with Move/Take).
type Handle[T any] struct {
	pool       *pool[T]
	index      int32
	generation uint32
}

func (h Handle[T]) slot() *Slot[T] {
	if h.pool == nil {
		return nil
	}
	return h.pool.lookup(h.index, h.generation)
}

// Valid reports whether the handle is bound and its slot still holds the
// object of the handle's generation.
func (h Handle[T]) Valid() bool {
	return h.slot() != nil
}

// Empty reports whether the handle names no slot.
func (h Handle[T]) Empty() bool {
	return h.pool == nil
}

// Get returns the referenced object. It panics with an *errors.Error when
// the handle is empty or stale; with correct ref counting a bound handle is
// never stale.
func (h Handle[T]) Get() *T {
	if h.pool == nil {
		panic(errors.EmptyHandle(errors.PhaseDereference, "", reflect.TypeFor[T]().String()))
	}
	s := h.pool.lookup(h.index, h.generation)
	if s == nil {
		panic(errors.StaleHandle(errors.PhaseDereference, h.pool.name, h.pool.typeName, h.index, h.generation))
	}
	return &s.object
}

// TryGet returns the referenced object and true, or nil and false if the
// handle is empty or stale.
func (h Handle[T]) TryGet() (*T, bool) {
	s := h.slot()
	if s == nil {
		return nil, false
	}
	return &s.object, true
}

// Clone returns a new strong handle to the same object. Cloning an empty or
// stale handle returns an empty handle.
func (h Handle[T]) Clone() Handle[T] {
	s := h.slot()
	if s == nil {
		return Handle[T]{}
	}
	h.pool.retain(s)
	return h
}

// Assign makes h reference the same object as src, releasing whatever h
// referenced before. Assigning a handle to itself is safe.
func (h *Handle[T]) Assign(src Handle[T]) {
	c := src.Clone()
	h.Release()
	*h = c
}

// Move returns the handle and leaves h empty. The reference count is
// unchanged.
func (h *Handle[T]) Move() Handle[T] {
	m := *h
	*h = Handle[T]{}
	return m
}

// Take releases whatever h referenced and moves src into h, leaving src
// empty.
func (h *Handle[T]) Take(src *Handle[T]) {
	if h == src {
		return
	}
	h.Release()
	*h = src.Move()
}

// Release drops this handle's reference and leaves h empty. The object is
// not destroyed until Cleanup runs. Releasing an empty handle is a no-op;
// releasing a stale handle only empties it.
func (h *Handle[T]) Release() {
	if s := h.slot(); s != nil {
		h.pool.release(s)
	}
	*h = Handle[T]{}
}

// Equal reports whether both handles name the same storage, index and
// generation. It is equivalent to ==.
func (h Handle[T]) Equal(o Handle[T]) bool {
	return h == o
}

// Index returns the slot index, or -1 for an empty handle.
func (h Handle[T]) Index() int32 {
	if h.pool == nil {
		return -1
	}
	return h.index
}

// Generation returns the generation the handle was bound to.
func (h Handle[T]) Generation() uint32 {
	return h.generation
}

// ID returns the packed ID, or 0 for an empty handle.
func (h Handle[T]) ID() ID {
	if h.pool == nil {
		return 0
	}
	return MakeID(h.index, h.generation)
}

// Weak returns a weak reference to the same slot.
func (h Handle[T]) Weak() Weak[T] {
	return Weak[T](h)
}

func (h Handle[T]) String() string {
	if h.pool == nil {
		return fmt.Sprintf("Handle[%s](empty)", reflect.TypeFor[T]().String())
	}
	return fmt.Sprintf("Handle[%s](%s %s)", h.pool.typeName, h.pool.name, MakeID(h.index, h.generation))
}
