package singleton

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ── Arena ─────────────────────────────────────────────────────────────────────

// Arena is an explicit table of slots and declarations. Every hierarchy lives
// in exactly one arena; the package keeps a process-wide Default arena that
// the nil-arena helpers use.
//
// Reads of live instances are lock-free. The only serialized region is the
// create-if-absent section of CurrentInstance, guarded per root slot.
type Arena struct {
	mu    sync.RWMutex
	decls map[Identity]*Declaration
	slots map[Identity]*Slot

	strict    atomic.Bool
	autoReset bool
	policies  PolicySource
	logger    *slog.Logger

	// watch receives every event of every slot in the arena.
	watch observers
}

// Option configures an Arena.
type Option func(*Arena)

// WithStrict makes Dispose of a non-disposable hierarchy fail with NoDispose
// instead of returning silently.
func WithStrict(strict bool) Option {
	return func(a *Arena) { a.strict.Store(strict) }
}

// WithAutoReset sets the AutoReset default handed to newly bound instances.
func WithAutoReset(autoReset bool) Option {
	return func(a *Arena) { a.autoReset = autoReset }
}

// WithLogger sets the logger used for lifecycle transitions.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arena) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithPolicySource consults src for identities that declare no policy.
func WithPolicySource(src PolicySource) Option {
	return func(a *Arena) { a.policies = src }
}

// NewArena creates an empty arena. AutoReset defaults to true and strict
// mode to false.
func NewArena(opts ...Option) *Arena {
	a := &Arena{
		decls:     make(map[Identity]*Declaration),
		slots:     make(map[Identity]*Slot),
		autoReset: true,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultArena atomic.Pointer[Arena]

func init() {
	defaultArena.Store(NewArena())
}

// Default returns the process-wide arena.
func Default() *Arena { return defaultArena.Load() }

// SetDefault replaces the process-wide arena and returns the previous one.
// A nil a installs a fresh empty arena.
func SetDefault(a *Arena) *Arena {
	if a == nil {
		a = NewArena()
	}
	return defaultArena.Swap(a)
}

func arenaOr(a *Arena) *Arena {
	if a != nil {
		return a
	}
	return Default()
}

// Strict reports whether strict mode is on.
func (a *Arena) Strict() bool { return a.strict.Load() }

// SetStrict toggles strict mode.
func (a *Arena) SetStrict(strict bool) { a.strict.Store(strict) }

// Logger returns the arena's logger.
func (a *Arena) Logger() *slog.Logger { return a.logger }

// slot returns the slot for id, creating it on first touch.
func (a *Arena) slot(id Identity) *Slot {
	a.mu.RLock()
	s, ok := a.slots[id]
	a.mu.RUnlock()
	if ok {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.slots[id]; ok {
		return s
	}
	s = newSlot(a, id)
	a.slots[id] = s
	return s
}

// peek returns the slot for id without creating it.
func (a *Arena) peek(id Identity) (*Slot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.slots[id]
	return s, ok
}

// policyOf returns the cached policy of s, reading it on first use.
func (a *Arena) policyOf(s *Slot) (Policy, bool) {
	if e := s.policy.Load(); e != nil {
		return e.p, e.declared
	}
	e := &policyEntry{p: DefaultPolicy()}
	if d := a.declaration(s.id); d.Policy != nil {
		e.p, e.declared = *d.Policy, true
	} else if a.policies != nil {
		if p, ok := a.policies.PolicyFor(s.id); ok {
			e.p, e.declared = p, true
		}
	}
	s.policy.CompareAndSwap(nil, e)
	return e.p, e.declared
}

// ── Static-scope operations ───────────────────────────────────────────────────

// Policy returns the policy of id and whether it was declared (explicitly or
// through the policy source). Undeclared identities report DefaultPolicy.
func (a *Arena) Policy(id Identity) (Policy, bool) {
	return a.policyOf(a.slot(id))
}

// Blocked reports whether lazy access through id is blocked.
func (a *Arena) Blocked(id Identity) bool {
	if s, ok := a.peek(id); ok {
		return s.blocked.Load()
	}
	return false
}

// SetBlocked sets the blocked flag of id.
func (a *Arena) SetBlocked(id Identity, blocked bool) {
	a.slot(id).setBlocked(blocked)
}

// Initialized reports whether the slot of id holds a constructed instance.
func (a *Arena) Initialized(id Identity) bool {
	if s, ok := a.peek(id); ok {
		return s.initialized.Load()
	}
	return false
}

// Disposed reports whether the slot of id has been disposed.
func (a *Arena) Disposed(id Identity) bool {
	if s, ok := a.peek(id); ok {
		return s.disposed.Load()
	}
	return false
}

// Instance returns the last lazily-created instance of id's hierarchy when it
// is compatible with id, or nil.
func (a *Arena) Instance(id Identity) Singleton {
	root := a.Root(id)
	s, ok := a.peek(root)
	if !ok {
		return nil
	}
	if r := s.byCall.Load(); r != nil && a.isA(IdentityFor(r.v), id) {
		return r.v
	}
	return nil
}

// Subscribe adds h to the slot of id. Handlers run synchronously on every
// state transition of that slot until Unsubscribe or Reset.
func (a *Arena) Subscribe(id Identity, h Handler) Subscription {
	return a.slot(id).subs.add(h)
}

// Unsubscribe removes a handler added with Subscribe.
func (a *Arena) Unsubscribe(id Identity, sub Subscription) bool {
	if s, ok := a.peek(id); ok {
		return s.subs.remove(sub)
	}
	return false
}

// Observe adds h for every slot of the arena. Arena observers survive Reset.
func (a *Arena) Observe(h Handler) Subscription {
	return a.watch.add(h)
}

// Unobserve removes a handler added with Observe.
func (a *Arena) Unobserve(sub Subscription) bool {
	return a.watch.remove(sub)
}

// State returns a diagnostic snapshot of the slot of id.
func (a *Arena) State(id Identity) SlotState {
	s := a.slot(id)
	p, declared := a.policyOf(s)
	return s.state(a.Root(id), p, declared)
}

// States returns snapshots of every slot touched so far (order unspecified).
func (a *Arena) States() []SlotState {
	a.mu.RLock()
	ids := make([]Identity, 0, len(a.slots))
	for id := range a.slots {
		ids = append(ids, id)
	}
	a.mu.RUnlock()

	out := make([]SlotState, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.State(id))
	}
	return out
}

// Reset restores the slot of id to its never-touched state: new lock, no
// subscribers, no cached policy, no instances, all flags false. Identities
// this slot blocked are released too. Reset always reports true.
func (a *Arena) Reset(id Identity) bool {
	s := a.slot(id)
	for _, blocked := range s.takeBlocks() {
		if bs, ok := a.peek(blocked); ok {
			bs.setBlocked(false)
		}
	}
	s.rewind()
	a.logger.Debug("singleton reset", "identity", id.String())
	return true
}

// Teardown resets every slot and forgets every declaration.
func (a *Arena) Teardown() {
	a.mu.Lock()
	slots := a.slots
	a.slots = make(map[Identity]*Slot)
	a.decls = make(map[Identity]*Declaration)
	a.mu.Unlock()

	for _, s := range slots {
		s.takeBlocks()
		s.rewind()
	}
	a.logger.Debug("singleton arena torn down", "slots", len(slots))
}
