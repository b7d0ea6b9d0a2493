package bridge

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/jglrxavpok/carrot-handles/errors"
	"github.com/jglrxavpok/carrot-handles/handle"
)

// Options configures a host.
type Options struct {
	// Module is the host module name guests import from.
	// Empty means the storage name.
	Module string

	// Locker serializes access to the storage. Pass the lock that guards
	// the storage's owner when guests run on another goroutine. When nil
	// the host uses its own mutex.
	Locker sync.Locker
}

// Host exposes a storage to WebAssembly guests. Guests name objects by
// packed handle.ID; every successful retain makes the host hold one strong
// handle on the guest's behalf until the matching release or Close.
type Host[T any, PT handle.Referent[T]] struct {
	storage *handle.Storage[T, PT]
	module  string
	lock    sync.Locker
	held    map[handle.ID][]handle.Handle[T]
	count   int
	mod     api.Module
}

// New creates a host for storage.
func New[T any, PT handle.Referent[T]](storage *handle.Storage[T, PT], opts Options) *Host[T, PT] {
	if opts.Module == "" {
		opts.Module = storage.Name()
	}
	if opts.Locker == nil {
		opts.Locker = &sync.Mutex{}
	}
	return &Host[T, PT]{
		storage: storage,
		module:  opts.Module,
		lock:    opts.Locker,
		held:    make(map[handle.ID][]handle.Handle[T]),
	}
}

// Module returns the host module name.
func (h *Host[T, PT]) Module() string {
	return h.module
}

// Instantiate registers the host module in r. A host can be instantiated
// once.
func (h *Host[T, PT]) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	if h.mod != nil {
		return nil, errors.Registration(errors.PhaseBridge, h.module, "*", errors.New(errors.PhaseBridge, errors.KindDuplicate).
			Detail("host module already instantiated").
			Build())
	}

	funcs := map[string]api.GoModuleFunc{
		FuncRetain:   h.retainFunc,
		FuncRelease:  h.releaseFunc,
		FuncValid:    h.validFunc,
		FuncRefCount: h.refCountFunc,
	}

	builder := r.NewHostModuleBuilder(h.module)
	for _, sig := range signatures {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(funcs[sig.Name], sig.CoreParams(), sig.CoreResults()).
			WithParameterNames(sig.ParamNames()...).
			Export(sig.Name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Instantiation(h.module, err)
	}
	h.mod = mod

	Logger().Debug("host module instantiated",
		zap.String("module", h.module),
		zap.String("storage", h.storage.Name()),
		zap.Int("functions", len(signatures)))
	return mod, nil
}

// Retain takes a strong handle to the object named by id on the guest's
// behalf. It reports false if id does not name a live object.
func (h *Host[T, PT]) Retain(id handle.ID) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	slot := h.storage.Lookup(id)
	if slot == nil {
		return false
	}
	h.held[id] = append(h.held[id], slot.Handle())
	h.count++
	return true
}

// Release drops one handle previously taken by Retain. It reports false
// if the guest holds no handle for id.
func (h *Host[T, PT]) Release(id handle.ID) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	hs := h.held[id]
	if len(hs) == 0 {
		return false
	}
	last := &hs[len(hs)-1]
	last.Release()
	if len(hs) == 1 {
		delete(h.held, id)
	} else {
		h.held[id] = hs[:len(hs)-1]
	}
	h.count--
	return true
}

// Valid reports whether id names a live object.
func (h *Host[T, PT]) Valid(id handle.ID) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.storage.Lookup(id) != nil
}

// RefCount returns the object's reference count, or -1 if id does not
// name a live object.
func (h *Host[T, PT]) RefCount(id handle.ID) int32 {
	h.lock.Lock()
	defer h.lock.Unlock()

	slot := h.storage.Lookup(id)
	if slot == nil {
		return -1
	}
	return slot.RefCount()
}

// Held returns the number of handles the host holds for id.
func (h *Host[T, PT]) Held(id handle.ID) int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.held[id])
}

// HeldTotal returns the number of handles the host holds.
func (h *Host[T, PT]) HeldTotal() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.count
}

// Close releases every handle still held for guests and closes the host
// module if it was instantiated.
func (h *Host[T, PT]) Close(ctx context.Context) error {
	h.lock.Lock()
	released := h.count
	for id, hs := range h.held {
		for i := range hs {
			hs[i].Release()
		}
		delete(h.held, id)
	}
	h.count = 0
	mod := h.mod
	h.mod = nil
	h.lock.Unlock()

	if released > 0 {
		Logger().Debug("released guest handles",
			zap.String("module", h.module),
			zap.Int("handles", released))
	}
	if mod != nil {
		return mod.Close(ctx)
	}
	return nil
}

func (h *Host[T, PT]) retainFunc(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = encodeBool(h.Retain(handle.ID(stack[0])))
}

func (h *Host[T, PT]) releaseFunc(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = encodeBool(h.Release(handle.ID(stack[0])))
}

func (h *Host[T, PT]) validFunc(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = encodeBool(h.Valid(handle.ID(stack[0])))
}

func (h *Host[T, PT]) refCountFunc(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(h.RefCount(handle.ID(stack[0])))
}

func encodeBool(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
