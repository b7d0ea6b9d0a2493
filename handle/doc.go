// Package handle provides generation-tagged, ref-counted storage for
// long-lived engine objects.
//
// Objects live in a Storage and are referenced through small value types
// that name a slot by index and generation. Many call sites can hold a
// Handle to the same object; the storage alone decides when the object is
// destroyed and when its slot is reused.
//
// # Storage
//
// A Storage is created per object type. The pooled type must satisfy
// Referent, usually by embedding Self:
//
//	type Light struct {
//	    handle.Self[Light]
//	    Intensity float32
//	}
//
//	lights := handle.NewStorage[Light]()
//
//	// Construct in place, get a strong handle (ref count 1)
//	sun := lights.Emplace(func(l *Light) { l.Intensity = 2 })
//
//	// Access through the handle
//	sun.Get().Intensity = 3
//
// # Handle Lifecycle
//
// Go has no copy constructors or destructors, so reference counting is
// explicit:
//
//	h2 := sun.Clone()   // +1
//	h3 := h2.Move()     // transfer, h2 is now empty
//	h3.Release()        // -1
//	dst.Assign(sun)     // +1 on sun's slot, -1 on dst's previous slot
//	dst.Take(&other)    // -1 on dst's previous slot, other is now empty
//
// Plain Go assignment copies a handle without counting it. Use it only to
// hand a handle on when the source is discarded.
//
// # Cleanup
//
// Releasing the last handle does not destroy the object. It stays present
// (and visible to Iterate) until the owner calls Cleanup, typically once
// per frame:
//
//	lights.Cleanup()
//
// Cleanup calls Drop on objects that implement Dropper, clears their slots,
// advances the slot generations and pushes the slots onto a free list. A
// later Emplace may reuse the index with the new generation, so any handle
// that survived from the old generation is detectably stale:
//
//	if lights.GetSlot(index, generation) == nil {
//	    // already cleaned up
//	}
//
// # Self References
//
// During Emplace the storage hands the object a Weak reference to its own
// slot. Weak references never affect the ref count, so the object can mint
// strong handles to itself without keeping itself alive:
//
//	func (l *Light) Attach(to *Group) {
//	    to.lights = append(to.lights, l.Handle())
//	}
//
// # Concurrency
//
// Nothing in this package is safe for concurrent use. Callers that share a
// storage, or handles into it, between goroutines must provide their own
// locking. Emplace and Cleanup must not be called from inside an Iterate
// visitor or a Drop method; the storage panics if they are.
//
// # Errors
//
// Dereferencing an empty or stale handle, and releasing a slot past zero
// references, are programming errors and panic with an *errors.Error.
// GetSlot, SlotOf, Lookup and TryGet never panic and report a missing
// object with nil.
package handle
