package handle

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/jglrxavpok/carrot-handles/errors"
)

// pool is the type-erased core shared by Storage, Slot, Handle and Weak.
// It carries no Referent constraint so that handles can name it with a
// single type parameter.
//
// Slots live in fixed-size banks that are never reallocated, so *Slot[T]
// and *T stay valid for the lifetime of the pool.
type pool[T any] struct {
	name      string
	typeName  string
	banks     [][]Slot[T]
	freeList  []int32
	observers []Observer
	emplaced  uint64
	reclaimed uint64
	present   int
	pending   int
	iterating int
	bankSize  int32
	length    int32
	sweeping  bool
}

func newPool[T any](opts Options) *pool[T] {
	if opts.BankSize <= 0 {
		opts.BankSize = DefaultBankSize
	}
	return &pool[T]{
		name:     opts.Name,
		typeName: reflect.TypeFor[T]().String(),
		bankSize: int32(opts.BankSize),
	}
}

func (p *pool[T]) slotAt(index int32) *Slot[T] {
	return &p.banks[index/p.bankSize][index%p.bankSize]
}

// lookup returns the slot only if it holds an object of the given generation.
func (p *pool[T]) lookup(index int32, generation uint32) *Slot[T] {
	if index < 0 || index >= p.length {
		return nil
	}
	s := p.slotAt(index)
	if !s.present || s.generation != generation {
		return nil
	}
	return s
}

// guard rejects structural mutation while a visitor or a sweep is running.
func (p *pool[T]) guard(op string) {
	if p.iterating > 0 {
		panic(errors.Reentrant(errors.PhaseIterate, p.name, op))
	}
	if p.sweeping {
		panic(errors.Reentrant(errors.PhaseCleanup, p.name, op))
	}
}

// allocate pops the most recently freed slot, or appends a new one.
func (p *pool[T]) allocate() *Slot[T] {
	if n := len(p.freeList); n > 0 {
		index := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return p.slotAt(index)
	}

	if p.length == int32(len(p.banks))*p.bankSize {
		p.banks = append(p.banks, make([]Slot[T], p.bankSize))
		Logger().Debug("storage grew",
			zap.String("storage", p.name),
			zap.String("type", p.typeName),
			zap.Int("banks", len(p.banks)),
			zap.Int32("capacity", int32(len(p.banks))*p.bankSize))
	}

	index := p.length
	p.length++
	s := p.slotAt(index)
	s.pool = p
	s.index = index
	return s
}

func (p *pool[T]) retain(s *Slot[T]) {
	if s.refCount == 0 {
		p.pending--
	}
	s.refCount++
}

func (p *pool[T]) release(s *Slot[T]) {
	if s.refCount <= 0 {
		panic(errors.RefCountUnderflow(p.name, p.typeName, s.index))
	}
	s.refCount--
	if s.refCount == 0 {
		p.pending++
		p.notify(EventUnreferenced, s.index, s.generation)
	}
}

func (p *pool[T]) cleanup() int {
	p.guard("Cleanup")
	p.sweeping = true
	defer func() { p.sweeping = false }()

	var zero T
	reclaimed := 0
	for i := int32(0); i < p.length; i++ {
		s := p.slotAt(i)
		if !s.present || s.refCount != 0 {
			continue
		}

		if d, ok := any(&s.object).(Dropper); ok {
			d.Drop()
		}

		generation := s.generation
		s.object = zero
		s.present = false
		s.generation++
		p.freeList = append(p.freeList, i)

		p.present--
		p.pending--
		p.reclaimed++
		reclaimed++
		p.notify(EventReclaimed, i, generation)
	}

	if reclaimed > 0 {
		Logger().Debug("cleanup sweep",
			zap.String("storage", p.name),
			zap.String("type", p.typeName),
			zap.Int("reclaimed", reclaimed),
			zap.Int("live", p.present))
	}
	return reclaimed
}

func (p *pool[T]) iterate(fn func(*T)) {
	p.iterating++
	defer func() { p.iterating-- }()

	for i := int32(0); i < p.length; i++ {
		if s := p.slotAt(i); s.present {
			fn(&s.object)
		}
	}
}

func (p *pool[T]) requiredCapacity() int {
	for i := p.length - 1; i >= 0; i-- {
		if p.slotAt(i).present {
			return int(i) + 1
		}
	}
	return 0
}

func (p *pool[T]) stats() Stats {
	return Stats{
		Name:      p.name,
		Slots:     int(p.length),
		Live:      p.present - p.pending,
		Pending:   p.pending,
		Free:      len(p.freeList),
		Emplaced:  p.emplaced,
		Reclaimed: p.reclaimed,
	}
}

func (p *pool[T]) snapshot() []SlotInfo {
	infos := make([]SlotInfo, p.length)
	for i := int32(0); i < p.length; i++ {
		s := p.slotAt(i)
		infos[i] = SlotInfo{
			Index:      i,
			Generation: s.generation,
			RefCount:   s.refCount,
			Present:    s.present,
		}
	}
	return infos
}

func (p *pool[T]) subscribe(o Observer) {
	p.observers = append(p.observers, o)
}

func (p *pool[T]) unsubscribe(o Observer) {
	for i, obs := range p.observers {
		if obs == o {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			return
		}
	}
}

func (p *pool[T]) notify(t EventType, index int32, generation uint32) {
	if len(p.observers) == 0 {
		return
	}
	e := Event{
		Storage:    p.name,
		ID:         MakeID(index, generation),
		Index:      index,
		Generation: generation,
		Type:       t,
	}
	for _, o := range p.observers {
		o.OnSlotEvent(e)
	}
}
