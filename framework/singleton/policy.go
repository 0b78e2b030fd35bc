package singleton

const (
	// DefaultDisposable is the default for Policy.Disposable.
	DefaultDisposable = false
	// DefaultCreateInternal is the default for Policy.CreateInternal.
	DefaultCreateInternal = true
	// DefaultInitByAttribute is the default for Policy.InitByAttribute.
	DefaultInitByAttribute = true
)

// Policy is the declared behaviour contract of one hierarchy.
// It is passed by value and treated as immutable once read.
type Policy struct {
	// Disposable allows Dispose to tear the hierarchy down. When false,
	// Dispose fails with NoDispose in strict mode and is a no-op otherwise.
	Disposable bool `toml:"disposable"`

	// CreateInternal allows the lazy accessor to build a default instance.
	// When false the instance must be constructed explicitly.
	CreateInternal bool `toml:"create_internal"`

	// InitByAttribute lets Registry.Initialize create the hierarchy during
	// discovery.
	InitByAttribute bool `toml:"init_by_attribute"`
}

// DefaultPolicy returns {Disposable: false, CreateInternal: true, InitByAttribute: true}.
func DefaultPolicy() Policy {
	return Policy{
		Disposable:      DefaultDisposable,
		CreateInternal:  DefaultCreateInternal,
		InitByAttribute: DefaultInitByAttribute,
	}
}

// PolicyOption mutates a Policy during NewPolicy.
type PolicyOption func(*Policy)

// NewPolicy starts from DefaultPolicy and applies opts in order.
//
//	p := singleton.NewPolicy(singleton.Disposable(true), singleton.CreateInternal(false))
func NewPolicy(opts ...PolicyOption) Policy {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Disposable sets Policy.Disposable.
func Disposable(v bool) PolicyOption {
	return func(p *Policy) { p.Disposable = v }
}

// CreateInternal sets Policy.CreateInternal.
func CreateInternal(v bool) PolicyOption {
	return func(p *Policy) { p.CreateInternal = v }
}

// InitByAttribute sets Policy.InitByAttribute.
func InitByAttribute(v bool) PolicyOption {
	return func(p *Policy) { p.InitByAttribute = v }
}

// PolicySource resolves a policy for identities that did not declare one,
// typically backed by a startup configuration table.
type PolicySource interface {
	PolicyFor(id Identity) (Policy, bool)
}

// PolicySourceFunc adapts a plain function to PolicySource.
type PolicySourceFunc func(id Identity) (Policy, bool)

// PolicyFor implements PolicySource.
func (f PolicySourceFunc) PolicyFor(id Identity) (Policy, bool) { return f(id) }

// shouldAutoReset decides whether Dispose rewinds the hierarchy afterwards.
// Only unmanaged instances with auto-reset on, in a hierarchy whose declared
// policy is disposable, qualify. An undeclared policy never auto-resets.
func shouldAutoReset(managed, autoReset bool, p Policy, declared bool) bool {
	if managed || !autoReset {
		return false
	}
	return declared && p.Disposable
}
