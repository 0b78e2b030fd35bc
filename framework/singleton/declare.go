package singleton

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrZeroIdentity is returned when a declaration names no type.
	ErrZeroIdentity = errors.New("singleton: declaration has no identity")
	// ErrUndeclaredParent is returned when a declaration extends a type that
	// has not been declared yet.
	ErrUndeclaredParent = errors.New("singleton: parent is not declared")
	// ErrInvalidAnchor is returned when a declaration's root is neither the
	// type itself nor one of its ancestors.
	ErrInvalidAnchor = errors.New("singleton: root is not an ancestor")
	// ErrConflictingDeclaration indicates an attempt to re-declare a type
	// with a different parent, root or policy.
	ErrConflictingDeclaration = errors.New("singleton: conflicting declaration")
)

// Constructor builds a default instance for the lazy accessor.
type Constructor func() (any, error)

// Declaration states where a type sits in a hierarchy and how it behaves.
// Go has no class inheritance, so the "is-a" chain is declared explicitly
// through Parent.
type Declaration struct {
	// Identity is the declared type.
	Identity Identity
	// Parent is the type this one specializes; zero for a hierarchy root.
	Parent Identity
	// Root anchors the hierarchy slot. Zero means "same root as Parent",
	// or the type itself when Parent is zero.
	Root Identity
	// Policy is the declared behaviour contract; nil when undeclared.
	Policy *Policy
	// New builds a default instance; nil means the zero value of the type.
	New Constructor
}

// DeclOption configures a Declaration built by Declare.
type DeclOption func(*Declaration)

// Extends sets the parent of the declared type to P.
func Extends[P any]() DeclOption {
	return func(d *Declaration) { d.Parent = IdentityOf[P]() }
}

// AnchoredAt sets the hierarchy root of the declared type to R.
func AnchoredAt[R any]() DeclOption {
	return func(d *Declaration) { d.Root = IdentityOf[R]() }
}

// WithPolicy attaches a declared policy.
func WithPolicy(p Policy) DeclOption {
	return func(d *Declaration) { d.Policy = &p }
}

// WithConstructor sets the default constructor used by the lazy accessor.
func WithConstructor[T any](fn func() (T, error)) DeclOption {
	return func(d *Declaration) {
		d.New = func() (any, error) {
			v, err := fn()
			if err != nil {
				return nil, err
			}
			return v, nil
		}
	}
}

// Declare registers T in arena a (the default arena when a is nil).
//
//	singleton.Declare[Root](nil, singleton.WithPolicy(singleton.NewPolicy(singleton.Disposable(true))))
//	singleton.Declare[Mid](nil, singleton.Extends[Root]())
//	singleton.Declare[Leaf](nil, singleton.Extends[Mid]())
func Declare[T any](a *Arena, opts ...DeclOption) error {
	return arenaOr(a).Register(Describe[T](opts...))
}

// Describe builds the declaration of T without registering it. Modules use
// it to hand declarations to a registry.
func Describe[T any](opts ...DeclOption) Declaration {
	d := Declaration{Identity: IdentityOf[T]()}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Register adds d to the arena's declaration table. Re-registering an equal
// declaration is a no-op.
func (a *Arena) Register(d Declaration) error {
	if d.Identity.IsZero() {
		return ErrZeroIdentity
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !d.Parent.IsZero() {
		parent, ok := a.decls[d.Parent]
		if !ok {
			return fmt.Errorf("%w: %s extends %s", ErrUndeclaredParent, d.Identity, d.Parent)
		}
		if d.Root.IsZero() {
			d.Root = parent.Root
		}
	}
	if d.Root.IsZero() {
		d.Root = d.Identity
	}
	if d.Root != d.Identity && d.Root != Object && !a.ancestorLocked(d.Parent, d.Root) {
		return fmt.Errorf("%w: %s is not an ancestor of %s", ErrInvalidAnchor, d.Root, d.Identity)
	}

	if old, ok := a.decls[d.Identity]; ok {
		if sameDeclaration(old, &d) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrConflictingDeclaration, d.Identity)
	}

	stored := d
	a.decls[d.Identity] = &stored
	a.logger.Debug("singleton declared",
		"identity", d.Identity.String(),
		"parent", d.Parent.String(),
		"root", d.Root.String(),
	)
	return nil
}

// Declared reports whether id has an explicit declaration.
func (a *Arena) Declared(id Identity) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.decls[id]
	return ok
}

// Declarations returns a snapshot of the declaration table (order unspecified).
func (a *Arena) Declarations() []Declaration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Declaration, 0, len(a.decls))
	for _, d := range a.decls {
		out = append(out, *d)
	}
	return out
}

// Root returns the hierarchy root of id.
func (a *Arena) Root(id Identity) Identity {
	return a.declaration(id).Root
}

// declaration returns the declared entry for id or an implicit self-rooted
// one. The bare guard is implicitly anchored at Object.
func (a *Arena) declaration(id Identity) Declaration {
	a.mu.RLock()
	d, ok := a.decls[id]
	a.mu.RUnlock()
	if ok {
		return *d
	}
	root := id
	if id == baseIdentity {
		root = Object
	}
	return Declaration{Identity: id, Root: root}
}

// construct runs the declared constructor or builds a zero value.
func (d Declaration) construct() (any, error) {
	if d.New != nil {
		return d.New()
	}
	t := d.Identity.Type()
	switch {
	case t == nil:
		return nil, ErrZeroIdentity
	case d.Identity == Object:
		return &Base{}, nil
	case t.Kind() == reflect.Interface:
		return nil, &Error{Cause: InstanceRequiresParameters, Identity: d.Identity,
			Message: "interface identities need a constructor"}
	}
	return reflect.New(t).Interface(), nil
}

// isA reports whether concrete is target or declares target as an ancestor.
func (a *Arena) isA(concrete, target Identity) bool {
	if concrete == target || target == Object {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ancestorLocked(concrete, target)
}

// ancestorLocked walks the parent chain starting at from (inclusive).
func (a *Arena) ancestorLocked(from, target Identity) bool {
	for id := from; !id.IsZero(); {
		if id == target {
			return true
		}
		d, ok := a.decls[id]
		if !ok {
			return false
		}
		id = d.Parent
	}
	return false
}

// between returns the identities strictly between root and concrete on the
// declared parent chain. ok is false when root is not an ancestor.
func (a *Arena) between(concrete, root Identity) (chain []Identity, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, found := a.decls[concrete]
	if !found {
		return nil, false
	}
	for id := d.Parent; !id.IsZero(); {
		if id == root {
			return chain, true
		}
		chain = append(chain, id)
		p, found := a.decls[id]
		if !found {
			return nil, false
		}
		id = p.Parent
	}
	return nil, false
}

func sameDeclaration(a, b *Declaration) bool {
	if a.Identity != b.Identity || a.Parent != b.Parent || a.Root != b.Root {
		return false
	}
	switch {
	case a.Policy == nil && b.Policy == nil:
		return true
	case a.Policy == nil || b.Policy == nil:
		return false
	default:
		return *a.Policy == *b.Policy
	}
}
