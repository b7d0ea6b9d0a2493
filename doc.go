// Package carrothandles provides generation-tagged, ref-counted object
// storage for game engine resources.
//
// Objects live in fixed slots. Callers hold small handles that name a slot
// by index and generation; the storage destroys an object only when its
// owner calls Cleanup and no handles remain, then reuses the slot under a
// new generation so leftover handles are detectably stale.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	carrothandles/
//	├── handle/          Slot storage, Handle, Weak and self references
//	├── scene/           Meshes, instances and a slot-indexed light buffer
//	├── bridge/          wazero host modules exposing storages to wasm guests
//	├── scenario/        YAML scripts that drive a scene
//	├── metrics/         Prometheus collectors over storage stats
//	├── errors/          Structured error types for debugging
//	└── cmd/poolsim/     CLI and TUI for playing scenarios
//
// # Quick Start
//
//	type Light struct {
//	    handle.Self[Light]
//	    Intensity float32
//	}
//
//	lights := handle.NewStorage[Light]()
//	sun := lights.Emplace(func(l *Light) { l.Intensity = 2 })
//	other := sun.Clone()
//
//	sun.Release()
//	other.Release()
//	lights.Cleanup() // sun is destroyed here
package carrothandles
