// Package singleton guarantees a single live instance per type hierarchy and
// manages the lifecycle of that instance.
//
// # Overview
//
// A hierarchy is a root type plus any number of specializing types, declared
// explicitly because Go has no class inheritance. Every guarded type embeds
// Base, which carries the instance's two-field identity (root, concrete) once
// it has been adopted.
//
// All state lives in an Arena: a table of declarations and per-identity slots.
// The package keeps a process-wide Default arena; pass nil wherever an arena
// is accepted to use it.
//
// # Declaring
//
//	type Root struct{ singleton.Base }
//	type Mid struct{ Root }
//	type Leaf struct{ Mid }
//
//	singleton.Declare[Root](nil, singleton.WithPolicy(singleton.NewPolicy(singleton.Disposable(true))))
//	singleton.Declare[Mid](nil, singleton.Extends[Root]())
//	singleton.Declare[Leaf](nil, singleton.Extends[Mid]())
//
// # Constructing
//
// Direct construction adopts a value you built yourself:
//
//	leaf, err := singleton.New(nil, &Leaf{})
//
// A second New of the same concrete type fails with InstanceExists while the
// first is alive. Constructing Leaf blocks Mid: lazy access through Mid fails
// with InstanceExistsMismatch until the hierarchy is reset.
//
// # Lazy access
//
//	inst, err := singleton.Default().CurrentInstance(singleton.IdentityOf[Root]())  // leaf
//	same, err := singleton.Current[*Leaf](nil)                                   // leaf
//
// Current asserts the instance to T, so asking for *Root while a *Leaf is
// live fails with InstanceExistsMismatch; use CurrentInstance or an interface
// type parameter to read through the root.
//
// The accessor returns the constructor-created instance if there is one, then
// the lazily created one, and otherwise builds a default instance with the
// declared constructor. Only the create-if-absent section is serialized.
// Constructors and event handlers must not construct into the same hierarchy
// while the accessor is creating it.
//
// # Disposal and reset
//
// Dispose honours the hierarchy Policy. Unmanaged disposable instances reset
// their hierarchy afterwards unless AutoReset is off. Reset rewinds a slot to
// its never-touched state; Teardown does so for the whole arena.
//
// Dispose and Reset are not synchronized against concurrent CurrentInstance
// calls; coordinate externally if disposal can race with access.
package singleton
