package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/km-arc/go-singleton/framework/metrics"
	"github.com/km-arc/go-singleton/framework/singleton"
)

// DefaultWorkers bounds concurrent creation in Initialize.
const DefaultWorkers = 4

// ErrDisposed is returned by operations that are invalid once the registry
// has been disposed.
var ErrDisposed = errors.New("registry: disposed")

// ── Registry ──────────────────────────────────────────────────────────────────

// Registry aggregates live instances by root identity and performs bulk
// discovery and teardown over them. It implements singleton.Manager: an
// instance attached to a Registry mirrors its disposal into the map.
//
// AddOrUpdate, Contains and GetInstance are safe for concurrent use.
// Initialize and Dispose iterate the map and are not atomic as a whole.
type Registry struct {
	arena   *singleton.Arena
	logger  *slog.Logger
	metrics *metrics.Metrics
	workers int
	types   []singleton.Identity

	// mu guards count and the count handlers; m holds root identity → entry.
	mu       sync.Mutex
	m        sync.Map
	count    int
	handlers []func(old, new int)

	initialized atomic.Bool
	disposed    atomic.Bool
}

var _ singleton.Manager = (*Registry)(nil)

// entry boxes a possibly nil instance; cleared keys stay present.
type entry struct {
	v singleton.Singleton
}

// Option configures a Registry.
type Option func(*Registry)

// WithTypes eagerly creates and attaches the given hierarchies in New. A
// registry built with types starts out Initialized.
func WithTypes(ids ...singleton.Identity) Option {
	return func(r *Registry) { r.types = append(r.types, ids...) }
}

// WithLogger sets the registry logger. Defaults to the arena's.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records entry counts and failures on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithWorkers bounds concurrent creation in Initialize. Values below one
// fall back to DefaultWorkers.
func WithWorkers(n int) Option {
	return func(r *Registry) { r.workers = n }
}

// New creates a registry over arena a (the default arena when a is nil).
//
//	reg, err := registry.New(nil, registry.WithTypes(singleton.IdentityOf[Cache]()))
func New(a *singleton.Arena, opts ...Option) (*Registry, error) {
	if a == nil {
		a = singleton.Default()
	}
	r := &Registry{arena: a, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = a.Logger()
	}
	if r.workers < 1 {
		r.workers = DefaultWorkers
	}

	for _, id := range r.types {
		if _, err := r.CreateSingleton(id); err != nil {
			return nil, fmt.Errorf("registry: create %s: %w", id, err)
		}
	}
	if len(r.types) > 0 {
		r.initialized.Store(true)
	}
	return r, nil
}

// Arena returns the arena the registry creates instances in.
func (r *Registry) Arena() *singleton.Arena { return r.arena }

// Count returns the number of keys present, including cleared ones.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Initialized reports whether Initialize completed (or New was given types).
func (r *Registry) Initialized() bool { return r.initialized.Load() }

// Disposed reports whether Dispose or Reset has run.
func (r *Registry) Disposed() bool { return r.disposed.Load() }

// OnCountChanged subscribes fn to count changes. fn runs synchronously
// after the count moved, never while the registry lock is held.
func (r *Registry) OnCountChanged(fn func(old, new int)) {
	r.mu.Lock()
	r.handlers = append(r.handlers, fn)
	r.mu.Unlock()
}

func (r *Registry) countChanged(old, n int) {
	r.mu.Lock()
	handlers := append([]func(int, int){}, r.handlers...)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetRegistryEntries(n)
	}
	for _, fn := range handlers {
		fn(old, n)
	}
}

// ── Map operations ────────────────────────────────────────────────────────────

// AddOrUpdate stores instance under the root of id's hierarchy and returns
// it. A nil instance keeps the key present. After Dispose it is a no-op.
func (r *Registry) AddOrUpdate(id singleton.Identity, instance singleton.Singleton) singleton.Singleton {
	if r.disposed.Load() {
		return instance
	}
	id = r.arena.Root(id)

	r.mu.Lock()
	old := r.count
	if _, loaded := r.m.Swap(id, entry{v: instance}); !loaded {
		r.count++
	}
	n := r.count
	r.mu.Unlock()

	r.logger.Debug("registry entry updated", "root", id.String(), "present", instance != nil)
	if n != old {
		r.countChanged(old, n)
	}
	return instance
}

// Lookup returns the stored instance for id's hierarchy and whether the key
// is present at all. A present key may hold nil.
func (r *Registry) Lookup(id singleton.Identity) (singleton.Singleton, bool) {
	v, ok := r.m.Load(r.arena.Root(id))
	if !ok {
		return nil, false
	}
	return v.(entry).v, true
}

// GetInstance returns the stored instance for id's hierarchy, or nil.
func (r *Registry) GetInstance(id singleton.Identity) singleton.Singleton {
	v, _ := r.Lookup(id)
	return v
}

// Contains reports whether id's hierarchy holds a non-nil instance.
func (r *Registry) Contains(id singleton.Identity) bool {
	return r.GetInstance(id) != nil
}

// Entry is one row of the registry map.
type Entry struct {
	Root     singleton.Identity
	Instance singleton.Singleton
}

// Concrete returns the identity of the stored instance, or the zero Identity
// for a cleared key.
func (e Entry) Concrete() singleton.Identity {
	if e.Instance == nil {
		return singleton.Identity{}
	}
	return e.Instance.ConcreteIdentity()
}

// Entries returns a snapshot of the map (order is unspecified).
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, 0, r.Count())
	r.m.Range(func(key, value any) bool {
		entries = append(entries, Entry{
			Root:     key.(singleton.Identity),
			Instance: value.(entry).v,
		})
		return true
	})
	return entries
}

// ── Creation ──────────────────────────────────────────────────────────────────

// CreateSingleton materializes id's hierarchy through the lazy accessor, or
// fetches the live instance, and attaches the registry to it.
func (r *Registry) CreateSingleton(id singleton.Identity) (singleton.Singleton, error) {
	if r.disposed.Load() {
		return nil, ErrDisposed
	}
	s, err := r.arena.CurrentInstance(id)
	if err != nil {
		r.fail(id, err)
		return nil, err
	}
	if s.Manager() == singleton.Manager(r) {
		r.AddOrUpdate(s.RootIdentity(), s)
	} else {
		s.SetManager(r)
	}
	return s, nil
}

// CreateAs is the typed form of CreateSingleton.
//
//	cache, err := registry.CreateAs[*Cache](reg)
func CreateAs[T singleton.Singleton](r *Registry) (T, error) {
	var zero T
	s, err := r.CreateSingleton(singleton.IdentityOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := s.(T)
	if !ok {
		return zero, &singleton.Error{
			Cause:    singleton.InstanceExistsMismatch,
			Identity: singleton.IdentityOf[T](),
			Message:  "live instance is " + s.ConcreteIdentity().String(),
		}
	}
	return typed, nil
}

// GetAs returns the stored instance for T's hierarchy. It fails with
// InstanceExistsMismatch when the stored instance's concrete type is not T,
// and returns the zero T with a nil error when nothing is stored.
func GetAs[T singleton.Singleton](r *Registry) (T, error) {
	var zero T
	id := singleton.IdentityOf[T]()
	s := r.GetInstance(id)
	if s == nil {
		return zero, nil
	}
	typed, ok := s.(T)
	if !ok || singleton.IdentityFor(s) != id {
		err := &singleton.Error{
			Cause:    singleton.InstanceExistsMismatch,
			Identity: id,
			Message:  "stored instance is " + singleton.IdentityFor(s).String(),
		}
		r.fail(id, err)
		return zero, err
	}
	return typed, nil
}

// Initialize registers the declarations of mods in the arena and creates
// every hierarchy whose policy is declared with InitByAttribute and
// CreateInternal, skipping those already present. Creation runs on a bounded
// worker pool. Re-running is a no-op for present entries.
func (r *Registry) Initialize(ctx context.Context, mods ...Module) error {
	if r.disposed.Load() {
		return ErrDisposed
	}

	var pending []singleton.Identity
	roots := make(map[singleton.Identity]bool)
	for _, d := range Discover(mods...) {
		if err := r.arena.Register(d); err != nil {
			return fmt.Errorf("registry: declare %s: %w", d.Identity, err)
		}
		p, declared := r.arena.Policy(d.Identity)
		if !declared || !p.InitByAttribute || !p.CreateInternal {
			continue
		}
		root := r.arena.Root(d.Identity)
		if roots[root] || r.Contains(root) {
			continue
		}
		roots[root] = true
		pending = append(pending, d.Identity)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, id := range pending {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := r.CreateSingleton(id); err != nil {
				return fmt.Errorf("registry: initialize %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.initialized.Store(true)
	r.logger.Debug("registry initialized", "modules", len(mods), "created", len(pending))
	return nil
}

// ── Teardown ──────────────────────────────────────────────────────────────────

// Dispose disposes every stored instance, then clears the map. Only
// NoDispose failures are swallowed; any other failure aborts and leaves the
// registry usable. Disposing twice is a no-op.
func (r *Registry) Dispose() error {
	return r.teardown(false)
}

// Reset is Dispose without per-hierarchy auto-reset: unmanaged entries are
// attached to the registry before they are disposed.
func (r *Registry) Reset() error {
	return r.teardown(true)
}

func (r *Registry) teardown(attach bool) error {
	if r.disposed.Load() {
		return nil
	}

	var firstErr error
	r.m.Range(func(key, value any) bool {
		s := value.(entry).v
		if s == nil {
			return true
		}
		if attach && s.Manager() == nil {
			s.SetManager(r)
		}
		if err := s.Dispose(); err != nil {
			if singleton.CauseOf(err) == singleton.NoDispose {
				r.logger.Info("registry kept non-disposable singleton", "root", key.(singleton.Identity).String())
				return true
			}
			r.fail(key.(singleton.Identity), err)
			firstErr = err
			return false
		}
		return true
	})
	if firstErr != nil {
		return firstErr
	}

	r.mu.Lock()
	old := r.count
	r.m.Range(func(key, _ any) bool {
		r.m.Delete(key)
		return true
	})
	r.count = 0
	r.disposed.Store(true)
	r.initialized.Store(false)
	r.mu.Unlock()

	r.logger.Debug("registry disposed", "entries", old)
	if old != 0 {
		r.countChanged(old, 0)
	}
	return nil
}

func (r *Registry) fail(id singleton.Identity, err error) {
	r.logger.Warn("registry operation failed", "identity", id.String(), "error", err)
	if r.metrics != nil {
		r.metrics.RecordFailure(err)
	}
}
