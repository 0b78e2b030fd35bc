package registry

import (
	"github.com/km-arc/go-singleton/framework/singleton"
)

// ── Module interface ──────────────────────────────────────────────────────────

// Module is the discovery unit consumed by Registry.Initialize. A module
// names itself and hands over the declarations of the types it owns,
// parents before children.
//
//	type CacheModule struct{}
//
//	func (CacheModule) Name() string { return "cache" }
//
//	func (CacheModule) Declarations() []singleton.Declaration {
//	    return []singleton.Declaration{
//	        singleton.Describe[Store](singleton.WithPolicy(singleton.NewPolicy(singleton.Disposable(true)))),
//	        singleton.Describe[LRUStore](singleton.Extends[Store]()),
//	    }
//	}
type Module interface {
	// Name identifies the module. Two modules with the same name are the
	// same module for discovery purposes.
	Name() string

	// Declarations returns the types this module contributes.
	Declarations() []singleton.Declaration
}

// ── ModuleFunc ────────────────────────────────────────────────────────────────

type moduleFunc struct {
	name string
	fn   func() []singleton.Declaration
}

func (m moduleFunc) Name() string                          { return m.name }
func (m moduleFunc) Declarations() []singleton.Declaration { return m.fn() }

// ModuleFunc adapts a function to Module.
//
//	registry.ModuleFunc("clock", func() []singleton.Declaration {
//	    return []singleton.Declaration{singleton.Describe[Clock]()}
//	})
func ModuleFunc(name string, fn func() []singleton.Declaration) Module {
	return moduleFunc{name: name, fn: fn}
}

// ── ModuleSet ─────────────────────────────────────────────────────────────────

// ModuleSet collects modules in registration order, ignoring repeats.
type ModuleSet struct {
	ordered    []Module
	registered map[string]bool
}

// Modules builds a ModuleSet from mods.
func Modules(mods ...Module) *ModuleSet {
	s := &ModuleSet{registered: make(map[string]bool)}
	for _, m := range mods {
		s.Register(m)
	}
	return s
}

// Register adds m unless a module with the same name is already present.
func (s *ModuleSet) Register(m Module) {
	if m == nil || s.registered[m.Name()] {
		return
	}
	s.registered[m.Name()] = true
	s.ordered = append(s.ordered, m)
}

// All returns the registered modules in order.
func (s *ModuleSet) All() []Module { return s.ordered }

// Declarations flattens the modules in order. A type declared by more than
// one module keeps its first declaration.
func (s *ModuleSet) Declarations() []singleton.Declaration {
	seen := make(map[singleton.Identity]bool)
	var out []singleton.Declaration
	for _, m := range s.ordered {
		for _, d := range m.Declarations() {
			if d.Identity.IsZero() || seen[d.Identity] {
				continue
			}
			seen[d.Identity] = true
			out = append(out, d)
		}
	}
	return out
}

// Discover is Modules(mods...).Declarations().
func Discover(mods ...Module) []singleton.Declaration {
	return Modules(mods...).Declarations()
}
