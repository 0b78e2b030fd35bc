package singleton

import (
	"reflect"
)

// Identity names one type taking part in a guarded hierarchy.
//
// Pointer and value forms of a type share an identity, so IdentityOf[*Cache]()
// and IdentityOf[Cache]() are equal. The zero Identity names nothing.
type Identity struct {
	t reflect.Type
}

// Object is the identity of `any`. A hierarchy anchored at Object accepts the
// bare Base guard without an embedding type.
var Object = Identity{t: reflect.TypeOf((*any)(nil)).Elem()}

// IdentityOf returns the identity of T.
//
//	id := singleton.IdentityOf[*Cache]()  // same as IdentityOf[Cache]()
func IdentityOf[T any]() Identity {
	return Identity{t: normalize(reflect.TypeOf((*T)(nil)).Elem())}
}

// IdentityFor returns the identity of v's dynamic type.
func IdentityFor(v any) Identity {
	if v == nil {
		return Identity{}
	}
	return Identity{t: normalize(reflect.TypeOf(v))}
}

// Type returns the underlying reflect.Type (nil for the zero Identity).
func (id Identity) Type() reflect.Type { return id.t }

// IsZero reports whether id names no type.
func (id Identity) IsZero() bool { return id.t == nil }

// String returns the package-qualified type name, e.g. "example.com/app.Cache".
func (id Identity) String() string {
	if id.t == nil {
		return "<nil>"
	}
	if id == Object {
		return "any"
	}
	if id.t.PkgPath() == "" {
		return id.t.String()
	}
	return id.t.PkgPath() + "." + id.t.Name()
}

// normalize strips pointer wrappers down to the nearest named type.
// Unnamed types are returned as-is so they still get a stable identity.
func normalize(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr && t.Name() == "" {
		t = t.Elem()
	}
	return t
}
