package handle

import "github.com/jglrxavpok/carrot-handles/errors"

// Slot is a fixed storage location in a Storage. Its index never changes;
// its generation advances each time Cleanup reclaims it.
type Slot[T any] struct {
	object     T
	pool       *pool[T]
	refCount   int32
	index      int32
	generation uint32
	present    bool
}

// Object returns the stored object, or nil if the slot is empty.
func (s *Slot[T]) Object() *T {
	if !s.present {
		return nil
	}
	return &s.object
}

// HasObject reports whether the slot currently holds an object. An object
// with no references is still present until Cleanup runs.
func (s *Slot[T]) HasObject() bool {
	return s.present
}

// RefCount returns the number of live strong handles to this slot.
func (s *Slot[T]) RefCount() int32 {
	return s.refCount
}

// Index returns the stable slot index.
func (s *Slot[T]) Index() int32 {
	return s.index
}

// Generation returns the slot's current generation.
func (s *Slot[T]) Generation() uint32 {
	return s.generation
}

// ID returns the packed ID of the slot's current generation.
func (s *Slot[T]) ID() ID {
	return MakeID(s.index, s.generation)
}

// Handle mints a new strong handle to the slot's object.
// It panics if the slot holds no object.
func (s *Slot[T]) Handle() Handle[T] {
	if !s.present {
		panic(errors.StaleHandle(errors.PhaseLookup, s.pool.name, s.pool.typeName, s.index, s.generation))
	}
	s.pool.retain(s)
	return Handle[T]{pool: s.pool, index: s.index, generation: s.generation}
}
