package handle

import (
	"fmt"
	"reflect"

	"github.com/jglrxavpok/carrot-handles/errors"
)

// Weak names a slot like Handle does but never contributes to its
// reference count. It exists so a pooled object can hold a reference to
// itself without keeping itself alive.
type Weak[T any] struct {
	pool       *pool[T]
	index      int32
	generation uint32
}

func (w Weak[T]) slot() *Slot[T] {
	if w.pool == nil {
		return nil
	}
	return w.pool.lookup(w.index, w.generation)
}

// Valid reports whether the referenced object is still present.
func (w Weak[T]) Valid() bool {
	return w.slot() != nil
}

// Get returns the referenced object. It panics with an *errors.Error when
// the reference is empty or stale.
func (w Weak[T]) Get() *T {
	if w.pool == nil {
		panic(errors.EmptyHandle(errors.PhaseDereference, "", reflect.TypeFor[T]().String()))
	}
	s := w.pool.lookup(w.index, w.generation)
	if s == nil {
		panic(errors.StaleHandle(errors.PhaseDereference, w.pool.name, w.pool.typeName, w.index, w.generation))
	}
	return &s.object
}

// TryGet returns the referenced object and true, or nil and false.
func (w Weak[T]) TryGet() (*T, bool) {
	s := w.slot()
	if s == nil {
		return nil, false
	}
	return &s.object, true
}

// Handle mints a strong handle from the weak reference. A stale or empty
// weak reference yields an empty handle.
func (w Weak[T]) Handle() Handle[T] {
	return Handle[T](w).Clone()
}

// Clear empties the weak reference.
func (w *Weak[T]) Clear() {
	*w = Weak[T]{}
}

// Equal reports whether both references name the same storage, index and
// generation.
func (w Weak[T]) Equal(o Weak[T]) bool {
	return w == o
}

// Index returns the slot index, or -1 for an empty reference.
func (w Weak[T]) Index() int32 {
	if w.pool == nil {
		return -1
	}
	return w.index
}

// Generation returns the generation the reference was bound to.
func (w Weak[T]) Generation() uint32 {
	return w.generation
}

// ID returns the packed ID, or 0 for an empty reference.
func (w Weak[T]) ID() ID {
	if w.pool == nil {
		return 0
	}
	return MakeID(w.index, w.generation)
}

func (w Weak[T]) String() string {
	if w.pool == nil {
		return fmt.Sprintf("Weak[%s](empty)", reflect.TypeFor[T]().String())
	}
	return fmt.Sprintf("Weak[%s](%s %s)", w.pool.typeName, w.pool.name, MakeID(w.index, w.generation))
}

// Self stores the weak self-reference injected by the storage. Embed it in
// a pooled type to satisfy Referent:
//
//	type Light struct {
//		handle.Self[Light]
//		Intensity float32
//	}
type Self[T any] struct {
	self Weak[T]
}

// SetHandle is called once by the storage when the object is constructed.
func (s *Self[T]) SetHandle(w Weak[T]) {
	s.self = w
}

// Handle returns a new strong handle to the embedding object.
func (s *Self[T]) Handle() Handle[T] {
	return s.self.Handle()
}

// WeakHandle returns the stored weak self-reference.
func (s *Self[T]) WeakHandle() Weak[T] {
	return s.self
}
