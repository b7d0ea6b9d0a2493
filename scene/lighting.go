package scene

import (
	"slices"

	"go.uber.org/zap"

	"github.com/jglrxavpok/carrot-handles/handle"
)

// DefaultLightBufferSize is the initial number of entries in the light buffer.
const DefaultLightBufferSize = 16

// Frame is the light state packed by BeginFrame.
type Frame struct {
	Ambient Vec3

	// Lights is indexed by light slot index. Entries for empty or
	// disabled slots are zeroed. It aliases the lighting buffer and is
	// overwritten by the next BeginFrame.
	Lights []LightData

	// Active lists the slot indices of enabled lights in index order.
	// Each frame gets its own copy.
	Active []uint32
}

// Lighting owns the scene's lights and the flat buffer they are packed
// into each frame.
type Lighting struct {
	lights  *handle.Storage[Light, *Light]
	buffer  []LightData
	active  []uint32
	Ambient Vec3
}

// NewLighting creates a lighting system with an empty light storage.
func NewLighting(opts handle.Options) *Lighting {
	if opts.Name == "" {
		opts.Name = "lights"
	}
	return &Lighting{
		lights:  handle.NewStorageWithOptions[Light](opts),
		buffer:  make([]LightData, DefaultLightBufferSize),
		Ambient: Vec3{1, 1, 1},
	}
}

// Create adds a light initialized with DefaultLightData and then init.
func (l *Lighting) Create(name string, init func(*Light)) handle.Handle[Light] {
	return l.lights.Emplace(func(light *Light) {
		light.LightData = DefaultLightData()
		light.Name = name
		if init != nil {
			init(light)
		}
	})
}

// Storage returns the underlying light storage.
func (l *Lighting) Storage() *handle.Storage[Light, *Light] {
	return l.lights
}

// BufferSize returns the current number of entries in the light buffer.
func (l *Lighting) BufferSize() int {
	return len(l.buffer)
}

// BeginFrame grows the light buffer to cover every occupied slot and packs
// the present lights into it. Lights pending cleanup are still packed.
func (l *Lighting) BeginFrame() Frame {
	if required := l.lights.RequiredCapacity(); required > len(l.buffer) {
		size := max(nextPowerOf2(required), DefaultLightBufferSize)
		Logger().Debug("light buffer grew",
			zap.Int("from", len(l.buffer)),
			zap.Int("to", size))
		l.buffer = make([]LightData, size)
	} else {
		clear(l.buffer)
	}

	l.active = l.active[:0]
	l.lights.Iterate(func(light *Light) {
		index := light.WeakHandle().Index()
		if !light.Enabled {
			return
		}
		l.buffer[index] = light.LightData
		l.active = append(l.active, uint32(index))
	})

	return Frame{
		Ambient: l.Ambient,
		Lights:  l.buffer,
		Active:  slices.Clone(l.active),
	}
}

// Cleanup reclaims lights that have no handles left.
func (l *Lighting) Cleanup() int {
	return l.lights.Cleanup()
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
