package singleton

import (
	"sync"
	"sync/atomic"
)

// instanceRef boxes a live instance so it can sit behind an atomic pointer.
type instanceRef struct {
	v Singleton
}

type policyEntry struct {
	p        Policy
	declared bool
}

// Slot is the lifecycle state of one identity. Slots are created on first
// touch and live until the arena is torn down; Reset rewinds them in place.
//
// The instance fields are only meaningful on the slot of a hierarchy root.
// Intermediate identities use their slot for the blocked flag and their own
// subscribers.
type Slot struct {
	id    Identity
	arena *Arena

	// lock guards the create-if-absent section of the lazy accessor.
	lock atomic.Pointer[sync.Mutex]

	byCtor atomic.Pointer[instanceRef]
	byCall atomic.Pointer[instanceRef]

	initialized atomic.Bool
	disposed    atomic.Bool
	blocked     atomic.Bool

	policy atomic.Pointer[policyEntry]

	// blocks records the identities this root slot marked blocked, so Reset
	// can release them after the instance is gone.
	blocksMu sync.Mutex
	blocks   map[Identity]struct{}

	subs observers
}

func newSlot(a *Arena, id Identity) *Slot {
	s := &Slot{id: id, arena: a}
	s.lock.Store(new(sync.Mutex))
	return s
}

// Identity returns the identity this slot belongs to.
func (s *Slot) Identity() Identity { return s.id }

// current returns the constructor-created instance, falling back to the
// lazily-created one.
func (s *Slot) current() Singleton {
	if r := s.byCtor.Load(); r != nil {
		return r.v
	}
	if r := s.byCall.Load(); r != nil {
		return r.v
	}
	return nil
}

// sender is the value reported as Event.Sender.
func (s *Slot) sender() any {
	if r := s.byCall.Load(); r != nil {
		return r.v
	}
	if r := s.byCtor.Load(); r != nil {
		return r.v
	}
	return nil
}

// holds reports whether v is one of the slot's live instances.
func (s *Slot) holds(v Singleton) bool {
	if v == nil {
		return false
	}
	if r := s.byCtor.Load(); r != nil && r.v == v {
		return true
	}
	if r := s.byCall.Load(); r != nil && r.v == v {
		return true
	}
	return false
}

// release drops v from whichever reference holds it.
func (s *Slot) release(v Singleton) {
	if r := s.byCtor.Load(); r != nil && r.v == v {
		s.byCtor.CompareAndSwap(r, nil)
	}
	if r := s.byCall.Load(); r != nil && r.v == v {
		s.byCall.CompareAndSwap(r, nil)
	}
}

func (s *Slot) setInitialized(v bool) {
	if s.initialized.CompareAndSwap(!v, v) {
		s.fire(PropertyInitialized, v)
	}
}

func (s *Slot) setDisposed(v bool) {
	if s.disposed.CompareAndSwap(!v, v) {
		s.fire(PropertyDisposed, v)
	}
}

func (s *Slot) setBlocked(v bool) {
	if s.blocked.CompareAndSwap(!v, v) {
		s.fire(PropertyBlocked, v)
	}
}

func (s *Slot) recordBlock(id Identity) {
	s.blocksMu.Lock()
	if s.blocks == nil {
		s.blocks = make(map[Identity]struct{})
	}
	s.blocks[id] = struct{}{}
	s.blocksMu.Unlock()
}

func (s *Slot) takeBlocks() []Identity {
	s.blocksMu.Lock()
	defer s.blocksMu.Unlock()
	out := make([]Identity, 0, len(s.blocks))
	for id := range s.blocks {
		out = append(out, id)
	}
	s.blocks = nil
	return out
}

func (s *Slot) fire(p Property, v any) {
	ev := Event{Identity: s.id, Property: p, Value: v, Sender: s.sender()}
	s.subs.fire(ev)
	if s.arena != nil {
		s.arena.watch.fire(ev)
	}
}

// rewind restores the never-touched state. Subscribers are dropped before
// the flags move, so nobody is told about the rewind itself.
func (s *Slot) rewind() {
	s.lock.Store(new(sync.Mutex))
	s.subs.clear()
	s.policy.Store(nil)
	s.byCall.Store(nil)
	s.byCtor.Store(nil)
	s.initialized.Store(false)
	s.disposed.Store(false)
	s.blocked.Store(false)
}

// SlotState is a point-in-time view of a slot, used for diagnostics.
type SlotState struct {
	Identity      Identity
	Root          Identity
	Concrete      Identity
	Initialized   bool
	Disposed      bool
	Blocked       bool
	Policy        Policy
	PolicyDecl    bool
	Subscribers   int
	LazilyCreated bool
}

func (s *Slot) state(root Identity, p Policy, declared bool) SlotState {
	st := SlotState{
		Identity:    s.id,
		Root:        root,
		Initialized: s.initialized.Load(),
		Disposed:    s.disposed.Load(),
		Blocked:     s.blocked.Load(),
		Policy:      p,
		PolicyDecl:  declared,
		Subscribers: s.subs.len(),
	}
	if v := s.current(); v != nil {
		st.Concrete = IdentityFor(v)
		st.LazilyCreated = s.byCtor.Load() == nil
	}
	return st
}
