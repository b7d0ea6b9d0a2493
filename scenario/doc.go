// Package scenario plays YAML scripts against a scene.
//
// A scenario names every object it creates so later steps can release it,
// probe it through the WebAssembly bridge, or check the scene's counters:
//
//	name: cascade
//	bank_size: 8
//	steps:
//	  - mesh: {name: cube, vertices: 36}
//	  - instance: {name: crate, mesh: cube, position: [0, 1, 0]}
//	  - light: {name: sun, type: directional, enabled: true}
//	  - release: cube
//	  - tick: 1
//	  - expect: {meshes: 1, instances: 1, active_lights: 1}
//	  - script: {call: retain, target: crate, want: 1}
//	  - release: crate
//	  - tick: 1
//	  - expect: {instances: 1, meshes: 1}
//	  - script: {call: release, target: crate, want: 1}
//	  - tick: 1
//	  - expect: {instances: 0, meshes: 0, reclaimed: 2}
//
// Run a scenario with a Runner:
//
//	sc, err := scenario.Load("cascade.yaml")
//	r, err := scenario.NewRunner(ctx, sc, scenario.Options{})
//	defer r.Close(ctx)
//	err = r.Run(ctx)
package scenario
