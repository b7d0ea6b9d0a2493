// Package bridge exposes handle storages to WebAssembly guests through
// wazero host modules.
//
// Guests cannot hold Go handles, so they name objects by packed handle.ID
// and ask the host to keep objects alive for them:
//
//	(import "lights" "retain"    (func (param i64) (result i32)))
//	(import "lights" "release"   (func (param i64) (result i32)))
//	(import "lights" "valid"     (func (param i64) (result i32)))
//	(import "lights" "ref-count" (func (param i64) (result i32)))
//
// The functions are declared with WIT types and flattened to core wasm
// types the same way component imports are:
//
//	retain: func(id: u64) -> bool
//	release: func(id: u64) -> bool
//	valid: func(id: u64) -> bool
//	ref-count: func(id: u64) -> s32
//
// Usage:
//
//	host := bridge.New(lights, bridge.Options{Locker: scene})
//	if _, err := host.Instantiate(ctx, runtime); err != nil {
//	    return err
//	}
//	defer host.Close(ctx)
//
// Handles retained by a guest and never released are dropped by Close.
package bridge
