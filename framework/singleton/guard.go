package singleton

import (
	"sync"
)

// ── Contracts ─────────────────────────────────────────────────────────────────

// Manager aggregates instances by root identity. Attaching a manager to an
// instance adds the instance under its root identity; disposing it stores nil.
type Manager interface {
	AddOrUpdate(id Identity, instance Singleton) Singleton
}

// Singleton is implemented by every guarded value. The unexported guard
// method is only satisfied by embedding Base.
//
//	type Cache struct {
//	    singleton.Base
//	    entries map[string]string
//	}
type Singleton interface {
	RootIdentity() Identity
	ConcreteIdentity() Identity
	Manager() Manager
	SetManager(m Manager)
	Dispose() error
	guard() *Base
}

// ── Base ──────────────────────────────────────────────────────────────────────

// Base is the embeddable guard. Its fields are bound once when the
// enclosing value is adopted by an arena.
type Base struct {
	mu        sync.RWMutex
	arena     *Arena
	self      Singleton
	root      Identity
	concrete  Identity
	manager   Manager
	autoReset *bool
}

var baseIdentity = IdentityOf[Base]()

func (b *Base) guard() *Base { return b }

func (b *Base) bind(a *Arena, root, concrete Identity, self Singleton) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arena = a
	b.root = root
	b.concrete = concrete
	b.self = self
	if b.autoReset == nil {
		v := a.autoReset
		b.autoReset = &v
	}
}

func (b *Base) unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.arena = nil
	b.self = nil
	b.root = Identity{}
	b.concrete = Identity{}
}

// RootIdentity returns the identity of the hierarchy root.
func (b *Base) RootIdentity() Identity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.root
}

// ConcreteIdentity returns the identity of the value embedding b.
func (b *Base) ConcreteIdentity() Identity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.concrete
}

// Arena returns the arena the value was adopted by, or nil.
func (b *Base) Arena() *Arena {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.arena
}

// Manager returns the attached manager, or nil.
func (b *Base) Manager() Manager {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.manager
}

// SetManager attaches m. A newly attached manager receives the instance
// under the root identity. Passing nil detaches.
func (b *Base) SetManager(m Manager) {
	b.mu.Lock()
	if m == b.manager {
		b.mu.Unlock()
		return
	}
	b.manager = m
	a, root, self := b.arena, b.root, b.self
	b.mu.Unlock()

	if m != nil && self != nil {
		m.AddOrUpdate(root, self)
	}
	if a != nil {
		if s, ok := a.peek(root); ok {
			s.fire(PropertyManager, m)
		}
	}
}

// AutoReset reports whether an unmanaged Dispose rewinds the hierarchy.
func (b *Base) AutoReset() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.autoReset == nil {
		return true
	}
	return *b.autoReset
}

// SetAutoReset overrides the arena's AutoReset default for this instance.
func (b *Base) SetAutoReset(v bool) {
	b.mu.Lock()
	b.autoReset = &v
	b.mu.Unlock()
}

// Dispose tears the hierarchy down when its policy allows it. Disposing an
// instance that is no longer live is a no-op.
func (b *Base) Dispose() error {
	a := b.Arena()
	if a == nil {
		return nil
	}
	return a.dispose(b)
}

// ── Construction ──────────────────────────────────────────────────────────────

// New adopts v as the instance of its hierarchy in arena a (the default arena
// when a is nil). It is the direct-construction path.
//
//	leaf, err := singleton.New(nil, &Leaf{Name: "primary"})
func New[T Singleton](a *Arena, v T) (T, error) {
	if err := arenaOr(a).Construct(v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// Construct adopts v under the root declared for its type.
func (a *Arena) Construct(v any) error {
	concrete := IdentityFor(v)
	if concrete.IsZero() {
		return newError(MissingInheritance, concrete, "nil value")
	}
	return a.construct(v, concrete, a.declaration(concrete).Root)
}

// ConstructAnchored adopts v under an explicit root. A bare *Base may only be
// anchored at Object.
func (a *Arena) ConstructAnchored(v any, root Identity) error {
	concrete := IdentityFor(v)
	if concrete.IsZero() {
		return newError(MissingInheritance, root, "nil value")
	}
	return a.construct(v, concrete, root)
}

func (a *Arena) construct(v any, concrete, root Identity) error {
	// Ancestors are blocked before any check, even if construction fails.
	if concrete != root {
		a.blockBetween(concrete, root)
	}

	s, ok := v.(Singleton)
	if !ok || (concrete == baseIdentity && root != Object) {
		return newError(MissingInheritance, concrete, "%s must embed singleton.Base to be anchored at %s", concrete, root)
	}
	if !a.isA(concrete, root) {
		return newError(InstanceExistsMismatch, concrete, "%s is not part of the %s hierarchy", concrete, root)
	}

	slot := a.slot(root)
	if err := a.checkVacant(slot, concrete); err != nil {
		return err
	}

	b := s.guard()
	b.bind(a, root, concrete, s)
	ref := &instanceRef{v: s}
	var prev *instanceRef
	for {
		prev = slot.byCtor.Load()
		if prev != nil && IdentityFor(prev.v) == concrete {
			b.unbind()
			return newError(InstanceExists, concrete, "")
		}
		if slot.byCtor.CompareAndSwap(prev, ref) {
			break
		}
	}

	if prev != nil {
		a.logger.Debug("singleton superseded", "root", root.String(),
			"previous", IdentityFor(prev.v).String(), "concrete", concrete.String())
	}
	slot.setInitialized(true)
	slot.setDisposed(false)
	slot.fire(PropertyCurrentInstance, s)
	a.logger.Debug("singleton constructed", "root", root.String(), "concrete", concrete.String())
	return nil
}

// checkVacant rejects a second live instance of the same concrete type.
// A live instance of another type in the hierarchy is superseded instead.
func (a *Arena) checkVacant(slot *Slot, concrete Identity) error {
	if live := slot.current(); live != nil && IdentityFor(live) == concrete {
		return newError(InstanceExists, concrete, "")
	}
	return nil
}

// blockBetween marks every identity strictly between root and concrete as
// blocked and records them on the root slot.
func (a *Arena) blockBetween(concrete, root Identity) {
	chain, ok := a.between(concrete, root)
	if !ok || len(chain) == 0 {
		return
	}
	rs := a.slot(root)
	for _, id := range chain {
		rs.recordBlock(id)
		a.slot(id).setBlocked(true)
	}
}

// ── Lazy accessor ─────────────────────────────────────────────────────────────

// Current returns the live instance for T in arena a (the default arena when
// a is nil), creating it on first use.
//
//	cfg, err := singleton.Current[*Settings](nil)
func Current[T any](a *Arena) (T, error) {
	var zero T
	id := IdentityOf[T]()
	v, err := arenaOr(a).CurrentInstance(id)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, newError(InstanceExistsMismatch, id, "live instance is %s", IdentityFor(v))
	}
	return typed, nil
}

// CurrentInstance returns the live instance of id's hierarchy that is
// compatible with id, creating one with the declared constructor when none
// exists. Creation is double-checked under the root slot's lock.
func (a *Arena) CurrentInstance(id Identity) (Singleton, error) {
	if a.Blocked(id) {
		return nil, newError(InstanceExistsMismatch, id, "%s is blocked by a more specialized instance", id)
	}

	d := a.declaration(id)
	rs := a.slot(d.Root)
	if v := a.compatible(rs, id); v != nil {
		return v, nil
	}

	if p, declared := a.policyOf(rs); declared && !p.CreateInternal {
		return nil, newError(NoCreateInternal, id, "")
	}

	s, created, err := a.createLocked(rs, d, id)
	if err != nil || !created {
		return s, err
	}

	// Notifications run outside the create lock so handlers may call back
	// into the accessor.
	rs.setInitialized(true)
	rs.setDisposed(false)
	rs.fire(PropertyInstance, s)
	a.logger.Debug("singleton created lazily", "root", d.Root.String(), "concrete", s.ConcreteIdentity().String())
	return s, nil
}

// createLocked is the serialized create-if-absent section. created is false
// when another caller won the race and its instance is returned instead.
func (a *Arena) createLocked(rs *Slot, d Declaration, id Identity) (s Singleton, created bool, err error) {
	lock := rs.lock.Load()
	lock.Lock()
	defer lock.Unlock()

	if v := a.compatible(rs, id); v != nil {
		return v, false, nil
	}
	if live := rs.current(); live != nil {
		return nil, false, newError(InstanceExistsMismatch, id, "hierarchy %s already holds %s", d.Root, IdentityFor(live))
	}

	raw, err := d.construct()
	if err != nil {
		return nil, false, wrapError(id, err)
	}
	s, ok := raw.(Singleton)
	if !ok {
		return nil, false, newError(MissingInheritance, id, "constructor returned %T", raw)
	}
	concrete := IdentityFor(s)
	if concrete == baseIdentity && d.Root != Object {
		return nil, false, newError(MissingInheritance, id, "")
	}
	if !a.isA(concrete, id) {
		return nil, false, newError(InstanceExistsMismatch, id, "constructor returned %s", concrete)
	}
	if concrete != d.Root {
		a.blockBetween(concrete, d.Root)
	}

	s.guard().bind(a, d.Root, concrete, s)
	rs.byCall.Store(&instanceRef{v: s})
	return s, true, nil
}

// GetInstance is an alias of CurrentInstance.
func (a *Arena) GetInstance(id Identity) (Singleton, error) {
	return a.CurrentInstance(id)
}

// compatible returns the constructor-created instance, then the lazily
// created one, if it is-a id.
func (a *Arena) compatible(rs *Slot, id Identity) Singleton {
	if r := rs.byCtor.Load(); r != nil && a.isA(IdentityFor(r.v), id) {
		return r.v
	}
	if r := rs.byCall.Load(); r != nil && a.isA(IdentityFor(r.v), id) {
		return r.v
	}
	return nil
}

// ── Disposal ──────────────────────────────────────────────────────────────────

func (a *Arena) dispose(b *Base) error {
	root := b.RootIdentity()
	s := a.slot(root)
	p, declared := a.policyOf(s)

	if declared && !p.Disposable {
		if a.Strict() {
			return newError(NoDispose, root, "")
		}
		return nil
	}

	b.mu.RLock()
	self, manager := b.self, b.manager
	b.mu.RUnlock()

	disposedNow := false
	if s.holds(self) && !s.disposed.Load() {
		s.release(self)
		s.policy.Store(nil)
		s.setDisposed(true)
		s.setInitialized(false)
		disposedNow = true
		if manager != nil {
			manager.AddOrUpdate(root, nil)
		}
		a.logger.Debug("singleton disposed", "root", root.String(), "managed", manager != nil)
	}

	if disposedNow && shouldAutoReset(manager != nil, b.AutoReset(), p, declared) {
		a.Reset(root)
	}
	return nil
}
