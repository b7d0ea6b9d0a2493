package handle

// DefaultBankSize is the number of slots allocated at once when a storage grows.
const DefaultBankSize = 32

// Options configures storage behavior.
type Options struct {
	// Name identifies the storage in logs, errors and metrics.
	Name string

	// BankSize is the number of slots allocated per growth step.
	// 0 means DefaultBankSize.
	BankSize int
}

// DefaultOptions returns default storage configuration.
func DefaultOptions() Options {
	return Options{
		BankSize: DefaultBankSize,
	}
}

// Storage owns pooled objects of type T and hands out ref-counted handles
// to them. Objects are destroyed only by Cleanup.
//
// Storage is not safe for concurrent use. Callers that share a storage
// between goroutines must serialize every call, including handle
// operations, with their own lock.
type Storage[T any, PT Referent[T]] struct {
	pool *pool[T]
}

// NewStorage creates an empty storage with default options.
func NewStorage[T any, PT Referent[T]]() *Storage[T, PT] {
	return NewStorageWithOptions[T, PT](DefaultOptions())
}

// NewStorageWithOptions creates an empty storage.
func NewStorageWithOptions[T any, PT Referent[T]](opts Options) *Storage[T, PT] {
	return &Storage[T, PT]{pool: newPool[T](opts)}
}

// Emplace constructs a new object in a free slot and returns a strong
// handle to it. The object starts as the zero value of T; init, if non-nil,
// acts as its constructor. After init returns, the object receives its weak
// self-reference through SetHandle.
func (s *Storage[T, PT]) Emplace(init func(PT)) Handle[T] {
	p := s.pool
	p.guard("Emplace")

	slot := p.allocate()
	constructed := false
	defer func() {
		if !constructed {
			var zero T
			slot.object = zero
			p.freeList = append(p.freeList, slot.index)
		}
	}()

	obj := PT(&slot.object)
	if init != nil {
		init(obj)
	}
	constructed = true

	slot.present = true
	slot.refCount = 1
	p.present++
	p.emplaced++

	obj.SetHandle(Weak[T]{pool: p, index: slot.index, generation: slot.generation})
	p.notify(EventCreated, slot.index, slot.generation)

	return Handle[T]{pool: p, index: slot.index, generation: slot.generation}
}

// Insert copies value into a new slot and returns a strong handle to it.
func (s *Storage[T, PT]) Insert(value T) Handle[T] {
	return s.Emplace(func(obj PT) {
		*(*T)(obj) = value
	})
}

// GetSlot returns the slot at index if it holds an object of the given
// generation, or nil otherwise. It never changes reference counts and is
// the intended way to probe whether an object still exists.
func (s *Storage[T, PT]) GetSlot(index int32, generation uint32) *Slot[T] {
	return s.pool.lookup(index, generation)
}

// SlotOf returns the slot named by h, or nil if h is empty, stale, or
// belongs to another storage.
func (s *Storage[T, PT]) SlotOf(h Handle[T]) *Slot[T] {
	if h.pool != s.pool {
		return nil
	}
	return s.pool.lookup(h.index, h.generation)
}

// Lookup returns the slot named by a packed ID, or nil.
func (s *Storage[T, PT]) Lookup(id ID) *Slot[T] {
	if id.IsZero() {
		return nil
	}
	return s.pool.lookup(id.Index(), id.Generation())
}

// Cleanup destroys every object with no strong handles, advances the
// generation of their slots, and makes the slots available for reuse.
// Objects implementing Dropper have Drop called first. It returns the
// number of objects destroyed.
//
// Cleanup is never called implicitly; the owner should call it once per
// frame or tick. Emplace and Cleanup must not be called from Drop.
func (s *Storage[T, PT]) Cleanup() int {
	return s.pool.cleanup()
}

// Iterate calls fn for every object currently present, in index order,
// including objects that have no handles but have not been cleaned up yet.
// fn may clone or release handles but must not call Emplace or Cleanup on
// this storage; doing so panics.
func (s *Storage[T, PT]) Iterate(fn func(PT)) {
	s.pool.iterate(func(obj *T) {
		fn(PT(obj))
	})
}

// Len returns the number of objects present, including those pending cleanup.
func (s *Storage[T, PT]) Len() int {
	return s.pool.present
}

// Cap returns the number of slots created so far.
func (s *Storage[T, PT]) Cap() int {
	return int(s.pool.length)
}

// RequiredCapacity returns one past the highest index holding an object.
// A flat buffer addressed by slot index needs at least this many entries.
func (s *Storage[T, PT]) RequiredCapacity() int {
	return s.pool.requiredCapacity()
}

// Name returns the storage name.
func (s *Storage[T, PT]) Name() string {
	return s.pool.name
}

// Stats returns a summary of the storage's current state.
func (s *Storage[T, PT]) Stats() Stats {
	return s.pool.stats()
}

// Snapshot returns the bookkeeping of every slot, in index order.
func (s *Storage[T, PT]) Snapshot() []SlotInfo {
	return s.pool.snapshot()
}

// Subscribe adds an observer for slot lifecycle events.
func (s *Storage[T, PT]) Subscribe(o Observer) {
	if o == nil {
		return
	}
	s.pool.subscribe(o)
}

// Unsubscribe removes an observer.
func (s *Storage[T, PT]) Unsubscribe(o Observer) {
	s.pool.unsubscribe(o)
}
