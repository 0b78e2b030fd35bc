// Package registry aggregates singleton instances by hierarchy root and runs
// bulk operations over them.
//
// # Registry
//
//	reg, err := registry.New(arena, registry.WithWorkers(8))
//
//	// Create (or fetch) and attach
//	cache, err := registry.CreateAs[*Cache](reg)
//
//	// Typed lookup; fails with InstanceExistsMismatch when the stored
//	// instance is a different concrete type
//	cache, err = registry.GetAs[*Cache](reg)
//
//	// Count changes
//	reg.OnCountChanged(func(old, new int) { ... })
//
// Attaching a registry to an instance (SetManager) adds the instance under
// its root identity. Disposing a managed instance stores nil under that key;
// the key stays and keeps counting.
//
// # Modules
//
// Initialize consumes Modules. Every declaration is registered in the arena
// and each hierarchy whose policy opts in (InitByAttribute and
// CreateInternal) is created on a bounded worker pool:
//
//	err := reg.Initialize(ctx, cache.Module{}, registry.ModuleFunc("clock", clockDecls))
//
// # Teardown
//
// Dispose disposes every stored instance, swallowing only NoDispose, then
// clears the map. A disposed registry rejects CreateSingleton and Initialize
// with ErrDisposed.
package registry
