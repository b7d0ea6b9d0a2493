package handle

import "fmt"

// ID is a packed (index, generation) pair that names a slot outside of Go,
// for example across a WebAssembly boundary or in a log line.
// ID 0 is reserved and always invalid.
type ID uint64

// MakeID packs an index and generation. Negative indices yield the zero ID.
func MakeID(index int32, generation uint32) ID {
	if index < 0 {
		return 0
	}
	return ID(uint64(uint32(index)+1)<<32 | uint64(generation))
}

// Index returns the slot index, or -1 for the zero ID.
func (id ID) Index() int32 {
	return int32(uint32(id>>32)) - 1
}

// Generation returns the slot generation.
func (id ID) Generation() uint32 {
	return uint32(id)
}

// IsZero reports whether id is the reserved invalid ID.
func (id ID) IsZero() bool {
	return id>>32 == 0
}

func (id ID) String() string {
	if id.IsZero() {
		return "invalid"
	}
	return fmt.Sprintf("%d@%d", id.Index(), id.Generation())
}

// Referent is the capability contract for pooled objects. The storage injects
// a weak self-reference once at construction time, and the object can mint
// new strong handles to itself from it.
//
// Self[T] implements both methods and can be embedded.
type Referent[T any] interface {
	*T
	SetHandle(Weak[T])
	Handle() Handle[T]
}

// Dropper is optionally implemented by pooled objects that need to release
// what they hold when Cleanup destroys them.
type Dropper interface {
	Drop()
}

// EventType identifies a slot lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventUnreferenced
	EventReclaimed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventUnreferenced:
		return "unreferenced"
	case EventReclaimed:
		return "reclaimed"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// Event describes a slot lifecycle transition. For EventReclaimed,
// Generation is the generation the object lived in, not the new one.
type Event struct {
	Storage    string
	ID         ID
	Index      int32
	Generation uint32
	Type       EventType
}

// Observer receives slot lifecycle events. Observers run synchronously on
// the goroutine that caused the transition and must not call Emplace or
// Cleanup on the storage that notified them.
type Observer interface {
	OnSlotEvent(Event)
}

// Stats is a point-in-time summary of a storage.
type Stats struct {
	Name      string
	Slots     int // slots ever created
	Live      int // objects with at least one strong handle
	Pending   int // objects with no strong handle, awaiting Cleanup
	Free      int // reclaimed slots ready for reuse
	Emplaced  uint64
	Reclaimed uint64
}

// StatsSource is implemented by anything that can report storage stats.
type StatsSource interface {
	Stats() Stats
}

// SlotInfo is a read-only view of one slot's bookkeeping.
type SlotInfo struct {
	Index      int32
	Generation uint32
	RefCount   int32
	Present    bool
}
