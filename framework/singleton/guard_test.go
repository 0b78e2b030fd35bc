package singleton_test

import (
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-singleton/framework/singleton"
)

// ── fixtures ──────────────────────────────────────────────────────────────────

type Root struct {
	singleton.Base
	Name string
}

type Mid struct{ Root }

type Leaf struct{ Mid }

type Permanent struct{ singleton.Base }

type ExplicitOnly struct {
	singleton.Base
	Greeting string
}

type NeedsArgs struct{ singleton.Base }

type Broken struct{ singleton.Base }

type plain struct{ Name string }

var (
	rootID = singleton.IdentityOf[Root]()
	midID  = singleton.IdentityOf[Mid]()
	leafID = singleton.IdentityOf[Leaf]()
)

// hierarchy declares Root <- Mid <- Leaf with a disposable policy.
func hierarchy(t *testing.T, opts ...singleton.Option) *singleton.Arena {
	t.Helper()
	a := singleton.NewArena(opts...)
	require.NoError(t, singleton.Declare[Root](a, singleton.WithPolicy(singleton.NewPolicy(singleton.Disposable(true)))))
	require.NoError(t, singleton.Declare[Mid](a, singleton.Extends[Root]()))
	require.NoError(t, singleton.Declare[Leaf](a, singleton.Extends[Mid]()))
	return a
}

// ── Construct ─────────────────────────────────────────────────────────────────

func TestConstruct_SecondInstanceFailsWithInstanceExists(t *testing.T) {
	a := hierarchy(t)

	_, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)

	_, err = singleton.New(a, &Leaf{})
	require.Error(t, err)
	assert.ErrorIs(t, err, singleton.ErrInstanceExists)
	assert.Equal(t, singleton.InstanceExists, singleton.CauseOf(err))
}

func TestConstruct_BindsIdentities(t *testing.T) {
	a := hierarchy(t)

	leaf, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)

	assert.Equal(t, rootID, leaf.RootIdentity())
	assert.Equal(t, leafID, leaf.ConcreteIdentity())
	assert.Same(t, a, leaf.Arena())
	assert.True(t, a.Initialized(rootID))
	assert.False(t, a.Disposed(rootID))
}

func TestConstruct_BlocksAncestorsStrictlyBetweenRootAndLeaf(t *testing.T) {
	a := hierarchy(t)

	_, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)

	assert.True(t, a.Blocked(midID), "Mid sits between Root and Leaf")
	assert.False(t, a.Blocked(rootID), "the root is never blocked by its own hierarchy")
	assert.False(t, a.Blocked(leafID), "the constructed type itself stays unblocked")

	_, err = singleton.Current[*Mid](a)
	assert.ErrorIs(t, err, singleton.ErrInstanceExistsMismatch)
}

func TestConstruct_BlocksEvenWhenConstructionFails(t *testing.T) {
	a := hierarchy(t)

	_, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)
	a.SetBlocked(midID, false)
	require.False(t, a.Blocked(midID))

	_, err = singleton.New(a, &Leaf{})
	assert.ErrorIs(t, err, singleton.ErrInstanceExists)
	assert.True(t, a.Blocked(midID))
}

func TestConstruct_OtherConcreteTypeSupersedesLiveInstance(t *testing.T) {
	a := hierarchy(t)
	var events []singleton.Event
	a.Subscribe(rootID, func(ev singleton.Event) { events = append(events, ev) })

	leaf, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)

	root, err := singleton.New(a, &Root{Name: "root"})
	require.NoError(t, err)
	got, err := a.CurrentInstance(rootID)
	require.NoError(t, err)
	assert.Same(t, root, got)

	mid, err := singleton.New(a, &Mid{})
	require.NoError(t, err)
	got, err = a.CurrentInstance(rootID)
	require.NoError(t, err)
	assert.Same(t, mid, got)
	assert.True(t, a.Initialized(rootID))
	assert.False(t, a.Disposed(rootID))

	var adopted []any
	for _, ev := range events {
		if ev.Property == singleton.PropertyCurrentInstance {
			adopted = append(adopted, ev.Value)
		}
	}
	assert.Equal(t, []any{leaf, root, mid}, adopted)

	require.NoError(t, leaf.Dispose(), "a superseded instance disposes as a no-op")
	assert.False(t, a.Disposed(rootID))
	got, err = a.CurrentInstance(rootID)
	require.NoError(t, err)
	assert.Same(t, mid, got)

	_, err = singleton.New(a, &Mid{})
	assert.ErrorIs(t, err, singleton.ErrInstanceExists)
}

func TestConstruct_MissingInheritance(t *testing.T) {
	a := hierarchy(t)

	err := a.Construct(&plain{Name: "x"})
	assert.ErrorIs(t, err, singleton.ErrMissingInheritance)

	err = a.ConstructAnchored(&singleton.Base{}, rootID)
	assert.ErrorIs(t, err, singleton.ErrMissingInheritance)

	err = a.Construct(nil)
	assert.ErrorIs(t, err, singleton.ErrMissingInheritance)
}

func TestConstruct_BareGuardAllowedUnderObject(t *testing.T) {
	a := singleton.NewArena()

	base := &singleton.Base{}
	require.NoError(t, a.ConstructAnchored(base, singleton.Object))
	assert.Equal(t, singleton.Object, base.RootIdentity())

	got, err := a.CurrentInstance(singleton.Object)
	require.NoError(t, err)
	assert.Same(t, base, got)
}

func TestConstruct_OutsideHierarchyIsMismatch(t *testing.T) {
	a := hierarchy(t)

	err := a.ConstructAnchored(&Permanent{}, rootID)
	assert.ErrorIs(t, err, singleton.ErrInstanceExistsMismatch)
}

// ── CurrentInstance ───────────────────────────────────────────────────────────

func TestCurrent_ReferenceIdentityAcrossHierarchy(t *testing.T) {
	a := hierarchy(t)

	leaf, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)

	viaRoot, err := a.CurrentInstance(rootID)
	require.NoError(t, err)
	viaLeaf, err := singleton.Current[*Leaf](a)
	require.NoError(t, err)
	viaAlias, err := a.GetInstance(rootID)
	require.NoError(t, err)

	assert.Same(t, leaf, viaRoot)
	assert.Same(t, leaf, viaLeaf)
	assert.Same(t, leaf, viaAlias)
}

func TestCurrent_RootBeforeAnyConstruction(t *testing.T) {
	a := hierarchy(t)

	root, err := singleton.Current[*Root](a)
	require.NoError(t, err)
	require.NotNil(t, root)

	again, err := singleton.Current[*Root](a)
	require.NoError(t, err)
	assert.Same(t, root, again)
	assert.Same(t, root, a.Instance(rootID))
	assert.True(t, a.Initialized(rootID))
}

func TestCurrent_ConstructorPrecedesLazyInstance(t *testing.T) {
	a := hierarchy(t)

	byCtor, err := singleton.New(a, &Root{Name: "ctor"})
	require.NoError(t, err)

	got, err := singleton.Current[*Root](a)
	require.NoError(t, err)
	assert.Same(t, byCtor, got)
	assert.Nil(t, a.Instance(rootID), "nothing was created lazily")
}

func TestCurrent_IncompatibleLiveInstanceIsMismatch(t *testing.T) {
	a := hierarchy(t)

	_, err := singleton.New(a, &Root{})
	require.NoError(t, err)

	_, err = singleton.Current[*Leaf](a)
	assert.ErrorIs(t, err, singleton.ErrInstanceExistsMismatch)
}

func TestCurrent_ConcurrentCallersShareOneInstance(t *testing.T) {
	a := hierarchy(t)

	workers := runtime.GOMAXPROCS(0) * 4
	results := make([]*Root, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(i int) {
			defer wg.Done()
			r, err := singleton.Current[*Root](a)
			if err != nil {
				t.Errorf("Current: %v", err)
				return
			}
			results[i] = r
		}(w)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestCurrent_UndeclaredTypeIsSelfRooted(t *testing.T) {
	a := singleton.NewArena()

	p, err := singleton.Current[*Permanent](a)
	require.NoError(t, err)
	assert.Equal(t, singleton.IdentityOf[Permanent](), p.RootIdentity())

	_, declared := a.Policy(singleton.IdentityOf[Permanent]())
	assert.False(t, declared)
}

// ── Policy-driven scenarios ───────────────────────────────────────────────────

func TestScenario_ExplicitOnly(t *testing.T) {
	a := singleton.NewArena()
	require.NoError(t, singleton.Declare[ExplicitOnly](a,
		singleton.WithPolicy(singleton.NewPolicy(singleton.CreateInternal(false))),
	))

	_, err := singleton.Current[*ExplicitOnly](a)
	require.Error(t, err)
	assert.Equal(t, singleton.NoCreateInternal, singleton.CauseOf(err))

	built, err := singleton.New(a, &ExplicitOnly{Greeting: "hello"})
	require.NoError(t, err)

	got, err := singleton.Current[*ExplicitOnly](a)
	require.NoError(t, err)
	assert.Same(t, built, got)
	assert.Equal(t, "hello", got.Greeting)
}

func TestScenario_PermanentDisposeIsSilentWhenNotStrict(t *testing.T) {
	a := singleton.NewArena()
	require.NoError(t, singleton.Declare[Permanent](a, singleton.WithPolicy(singleton.DefaultPolicy())))

	p, err := singleton.Current[*Permanent](a)
	require.NoError(t, err)

	require.NoError(t, p.Dispose())
	assert.False(t, a.Disposed(singleton.IdentityOf[Permanent]()))

	again, err := singleton.Current[*Permanent](a)
	require.NoError(t, err)
	assert.Same(t, p, again)
}

func TestScenario_PermanentDisposeFailsWhenStrict(t *testing.T) {
	a := singleton.NewArena(singleton.WithStrict(true))
	require.NoError(t, singleton.Declare[Permanent](a, singleton.WithPolicy(singleton.DefaultPolicy())))

	p, err := singleton.Current[*Permanent](a)
	require.NoError(t, err)

	err = p.Dispose()
	assert.ErrorIs(t, err, singleton.ErrNoDispose)
	assert.True(t, a.Initialized(singleton.IdentityOf[Permanent]()))
}

func TestConstructor_RequiresParameters(t *testing.T) {
	a := singleton.NewArena()
	require.NoError(t, singleton.Declare[NeedsArgs](a,
		singleton.WithConstructor(func() (*NeedsArgs, error) {
			return nil, singleton.RequiresParameters[NeedsArgs]()
		}),
	))

	_, err := singleton.Current[*NeedsArgs](a)
	require.Error(t, err)
	assert.Equal(t, singleton.InstanceRequiresParameters, singleton.CauseOf(err))
	assert.NotErrorIs(t, err, singleton.ErrInstanceExistsMismatch)
	assert.False(t, a.Initialized(singleton.IdentityOf[NeedsArgs]()))
}

func TestConstructor_ForeignErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	a := singleton.NewArena()
	require.NoError(t, singleton.Declare[Broken](a,
		singleton.WithConstructor(func() (*Broken, error) { return nil, boom }),
	))

	_, err := singleton.Current[*Broken](a)
	assert.ErrorIs(t, err, singleton.ErrInternalException)
	assert.ErrorIs(t, err, boom)
}

// ── Dispose / Reset ───────────────────────────────────────────────────────────

func TestDispose_RecreateYieldsNewInstance(t *testing.T) {
	a := hierarchy(t)

	first, err := singleton.Current[*Root](a)
	require.NoError(t, err)
	require.NoError(t, first.Dispose())

	second, err := singleton.Current[*Root](a)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestDispose_SetsFlagsWithoutAutoReset(t *testing.T) {
	a := hierarchy(t, singleton.WithAutoReset(false))

	leaf, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)
	require.NoError(t, leaf.Dispose())

	assert.True(t, a.Disposed(rootID))
	assert.False(t, a.Initialized(rootID))
	assert.False(t, a.Disposed(midID), "only the root slot carries lifecycle flags")
	assert.True(t, a.Blocked(midID), "blocking survives dispose until reset")

	require.NoError(t, leaf.Dispose(), "re-disposal is a no-op")
	assert.True(t, a.Disposed(rootID))
}

func TestDispose_AutoResetReleasesBlockedAncestors(t *testing.T) {
	a := hierarchy(t)

	leaf, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)
	require.NoError(t, leaf.Dispose())

	assert.False(t, a.Disposed(rootID), "auto-reset rewinds the flags")
	assert.False(t, a.Blocked(midID))
	assert.Nil(t, a.Instance(rootID))
}

func TestDispose_StaleInstanceDoesNotTouchSuccessor(t *testing.T) {
	a := hierarchy(t)

	first, err := singleton.Current[*Root](a)
	require.NoError(t, err)
	require.NoError(t, first.Dispose())

	second, err := singleton.Current[*Root](a)
	require.NoError(t, err)
	require.NoError(t, first.Dispose())

	still, err := singleton.Current[*Root](a)
	require.NoError(t, err)
	assert.Same(t, second, still)
}

func TestDispose_UnboundBaseIsNoop(t *testing.T) {
	var b singleton.Base
	assert.NoError(t, b.Dispose())
}

func TestReset_IsIdempotent(t *testing.T) {
	a := hierarchy(t)

	_, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		assert.True(t, a.Reset(rootID))
		assert.False(t, a.Blocked(rootID))
		assert.False(t, a.Blocked(midID))
		assert.False(t, a.Disposed(rootID))
		assert.False(t, a.Initialized(rootID))
		assert.Nil(t, a.Instance(rootID))
	}

	_, err = singleton.New(a, &Leaf{})
	assert.NoError(t, err, "reset frees the slot for a new instance")
}

func TestReset_ClearsSubscribers(t *testing.T) {
	a := hierarchy(t)

	calls := 0
	a.Subscribe(rootID, func(singleton.Event) { calls++ })
	a.Reset(rootID)

	_, err := singleton.New(a, &Root{})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestTeardown_ForgetsDeclarations(t *testing.T) {
	a := hierarchy(t)
	_, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)

	a.Teardown()

	assert.False(t, a.Declared(leafID))
	assert.False(t, a.Initialized(rootID))
	assert.Equal(t, leafID, a.Root(leafID), "undeclared types are self-rooted")
}

// ── Manager attachment ────────────────────────────────────────────────────────

type recordingManager struct {
	mu      sync.Mutex
	entries map[singleton.Identity]singleton.Singleton
}

func (m *recordingManager) AddOrUpdate(id singleton.Identity, inst singleton.Singleton) singleton.Singleton {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[singleton.Identity]singleton.Singleton)
	}
	m.entries[id] = inst
	return inst
}

func TestManager_AttachAddsUnderRootAndDisposeClears(t *testing.T) {
	a := hierarchy(t)
	m := &recordingManager{}

	leaf, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)
	leaf.SetManager(m)

	assert.Same(t, leaf, m.entries[rootID])
	assert.Equal(t, m, leaf.Manager())

	require.NoError(t, leaf.Dispose())
	v, ok := m.entries[rootID]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.True(t, a.Disposed(rootID), "managed instances are not auto-reset")
}

// ── Events ────────────────────────────────────────────────────────────────────

func TestEvents_LifecycleTransitionsInOrder(t *testing.T) {
	a := hierarchy(t, singleton.WithAutoReset(false))

	var got []singleton.Event
	a.Subscribe(rootID, func(ev singleton.Event) { got = append(got, ev) })

	leaf, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)
	require.NoError(t, leaf.Dispose())

	props := make([]singleton.Property, 0, len(got))
	for _, ev := range got {
		props = append(props, ev.Property)
		assert.Equal(t, rootID, ev.Identity)
	}
	assert.Equal(t, []singleton.Property{
		singleton.PropertyInitialized,
		singleton.PropertyCurrentInstance,
		singleton.PropertyDisposed,
		singleton.PropertyInitialized,
	}, props)
	assert.Equal(t, true, got[0].Value)
	assert.Same(t, leaf, got[0].Sender)
	assert.Equal(t, true, got[2].Value)
	assert.Equal(t, false, got[3].Value)
}

func TestEvents_BlockedFiresOnIntermediateSlot(t *testing.T) {
	a := hierarchy(t)

	var blocked []bool
	a.Subscribe(midID, func(ev singleton.Event) {
		if ev.Property == singleton.PropertyBlocked {
			blocked = append(blocked, ev.Value.(bool))
		}
	})

	_, err := singleton.New(a, &Leaf{})
	require.NoError(t, err)
	a.Reset(rootID)

	assert.Equal(t, []bool{true, false}, blocked)
}

func TestEvents_UnsubscribeAndObserve(t *testing.T) {
	a := hierarchy(t)

	slotCalls, arenaCalls := 0, 0
	sub := a.Subscribe(rootID, func(singleton.Event) { slotCalls++ })
	a.Observe(func(singleton.Event) { arenaCalls++ })
	assert.True(t, a.Unsubscribe(rootID, sub))
	assert.False(t, a.Unsubscribe(rootID, sub))

	_, err := singleton.New(a, &Root{})
	require.NoError(t, err)

	assert.Zero(t, slotCalls)
	assert.Positive(t, arenaCalls)
}

// ── Default arena ─────────────────────────────────────────────────────────────

func TestDefaultArena_NilArenaHelpers(t *testing.T) {
	prev := singleton.SetDefault(nil)
	t.Cleanup(func() { singleton.SetDefault(prev) })

	require.NoError(t, singleton.Declare[Root](nil))
	r, err := singleton.Current[*Root](nil)
	require.NoError(t, err)
	assert.Same(t, singleton.Default(), r.Arena())
}
