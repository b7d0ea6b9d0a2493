// Package scene is a small engine scene built on handle storages.
//
// A Scene owns three storages: meshes, instances and lights. Instances
// hold strong handles to their meshes, so a mesh stays alive while any
// instance uses it and is reclaimed on the tick after its last instance
// goes away. Lights are packed into a flat buffer addressed by their slot
// index, the same way a GPU light buffer would be.
//
//	s := scene.New(scene.Options{})
//	cube := s.AddMesh("cube", 36)
//	inst, _ := s.AddInstance("crate", cube, scene.Vec3{0, 1, 0})
//	cube.Release()
//	inst.Release()
//	s.Tick() // reclaims the instance, then the cube
package scene
