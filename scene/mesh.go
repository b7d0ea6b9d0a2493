package scene

import (
	"go.uber.org/zap"

	"github.com/jglrxavpok/carrot-handles/handle"
)

// Mesh is a pooled piece of geometry.
type Mesh struct {
	handle.Self[Mesh]
	Name        string
	VertexCount int

	onDrop func(*Mesh)
}

// Drop releases the mesh's GPU-side resources.
func (m *Mesh) Drop() {
	Logger().Debug("mesh freed",
		zap.String("mesh", m.Name),
		zap.Int("vertices", m.VertexCount))
	if m.onDrop != nil {
		m.onDrop(m)
	}
}

// Instance places a mesh in the scene. It holds a strong handle to its
// mesh, so the mesh outlives every instance that uses it.
type Instance struct {
	handle.Self[Instance]
	Name     string
	Mesh     handle.Handle[Mesh]
	Position Vec3
}

// Drop releases the instance's mesh handle.
func (i *Instance) Drop() {
	i.Mesh.Release()
}
