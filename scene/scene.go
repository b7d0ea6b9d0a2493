package scene

import (
	"sync"

	"go.uber.org/zap"

	"github.com/jglrxavpok/carrot-handles/errors"
	"github.com/jglrxavpok/carrot-handles/handle"
)

// Options configures a scene.
type Options struct {
	// BankSize is passed to every storage the scene owns.
	// 0 means handle.DefaultBankSize.
	BankSize int
}

// TickResult reports what one Tick reclaimed.
type TickResult struct {
	Tick      uint64
	Instances int
	Meshes    int
	Lights    int
	Frame     Frame
}

// Reclaimed returns the total number of objects destroyed by the tick.
func (r TickResult) Reclaimed() int {
	return r.Instances + r.Meshes + r.Lights
}

// Stats is a point-in-time summary of a scene.
type Stats struct {
	Tick      uint64
	MeshFrees uint64
	Meshes    handle.Stats
	Instances handle.Stats
	Lights    handle.Stats
}

// Scene owns meshes, instances and lights.
//
// Scene methods are not synchronized. Lock and Unlock are provided for
// callers that read a scene from another goroutine, such as a metrics
// scrape, while it is being driven.
type Scene struct {
	mu        sync.Mutex
	meshes    *handle.Storage[Mesh, *Mesh]
	instances *handle.Storage[Instance, *Instance]
	lighting  *Lighting
	meshFrees uint64
	tick      uint64
}

// New creates an empty scene.
func New(opts Options) *Scene {
	return &Scene{
		meshes:    handle.NewStorageWithOptions[Mesh](handle.Options{Name: "meshes", BankSize: opts.BankSize}),
		instances: handle.NewStorageWithOptions[Instance](handle.Options{Name: "instances", BankSize: opts.BankSize}),
		lighting:  NewLighting(handle.Options{Name: "lights", BankSize: opts.BankSize}),
	}
}

func (s *Scene) Lock()   { s.mu.Lock() }
func (s *Scene) Unlock() { s.mu.Unlock() }

func (s *Scene) Meshes() *handle.Storage[Mesh, *Mesh]             { return s.meshes }
func (s *Scene) Instances() *handle.Storage[Instance, *Instance] { return s.instances }
func (s *Scene) Lighting() *Lighting                             { return s.lighting }

// AddMesh creates a mesh and returns the caller's handle to it.
func (s *Scene) AddMesh(name string, vertexCount int) handle.Handle[Mesh] {
	return s.meshes.Emplace(func(m *Mesh) {
		m.Name = name
		m.VertexCount = vertexCount
		m.onDrop = s.meshDropped
	})
}

func (s *Scene) meshDropped(*Mesh) {
	s.meshFrees++
}

// AddInstance creates an instance of mesh. The instance takes its own
// handle to the mesh; the caller keeps theirs.
func (s *Scene) AddInstance(name string, mesh handle.Handle[Mesh], position Vec3) (handle.Handle[Instance], error) {
	if mesh.Empty() {
		return handle.Handle[Instance]{}, errors.New(errors.PhaseEmplace, errors.KindEmptyHandle).
			Storage(s.instances.Name()).
			Detail("instance %q needs a mesh", name).
			Build()
	}
	if s.meshes.SlotOf(mesh) == nil {
		return handle.Handle[Instance]{}, errors.New(errors.PhaseEmplace, errors.KindStaleHandle).
			Storage(s.meshes.Name()).
			Value(mesh.ID()).
			Detail("mesh for instance %q is not live in this scene", name).
			Build()
	}

	return s.instances.Emplace(func(i *Instance) {
		i.Name = name
		i.Mesh = mesh.Clone()
		i.Position = position
	}), nil
}

// AddLight creates a light with default settings adjusted by init.
func (s *Scene) AddLight(name string, init func(*Light)) handle.Handle[Light] {
	return s.lighting.Create(name, init)
}

// Tick reclaims unreferenced objects and packs the light buffer for the
// next frame. Instances are swept before meshes so that meshes released by
// dropped instances are reclaimed in the same tick.
func (s *Scene) Tick() TickResult {
	s.tick++
	r := TickResult{Tick: s.tick}
	r.Instances = s.instances.Cleanup()
	r.Meshes = s.meshes.Cleanup()
	r.Lights = s.lighting.Cleanup()
	r.Frame = s.lighting.BeginFrame()

	if r.Reclaimed() > 0 {
		Logger().Debug("tick",
			zap.Uint64("tick", r.Tick),
			zap.Int("instances", r.Instances),
			zap.Int("meshes", r.Meshes),
			zap.Int("lights", r.Lights))
	}
	return r
}

// Stats returns a summary of every storage in the scene.
func (s *Scene) Stats() Stats {
	return Stats{
		Tick:      s.tick,
		MeshFrees: s.meshFrees,
		Meshes:    s.meshes.Stats(),
		Instances: s.instances.Stats(),
		Lights:    s.lighting.Storage().Stats(),
	}
}

// Sources returns the scene's storages as stats sources.
func (s *Scene) Sources() []handle.StatsSource {
	return []handle.StatsSource{s.meshes, s.instances, s.lighting.Storage()}
}
