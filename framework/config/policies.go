package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/km-arc/go-singleton/framework/singleton"
)

// ErrUnknownPolicyKey is returned when a policy table entry carries a key
// other than disposable, create_internal or init_by_attribute.
var ErrUnknownPolicyKey = errors.New("config: unknown policy key")

// PolicyTable maps fully qualified type names ("example.com/app.Cache") to
// policies. It implements singleton.PolicySource.
//
//	[policies."example.com/app.Cache"]
//	disposable = true
//	create_internal = false
type PolicyTable map[string]singleton.Policy

type policyFile struct {
	Policies map[string]toml.Primitive `toml:"policies"`
}

// LoadPolicies reads a TOML policy table. Keys missing from an entry take
// the singleton.DefaultPolicy values.
func LoadPolicies(path string) (PolicyTable, error) {
	var raw policyFile
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return decodePolicies(md, raw)
}

// ParsePolicies is LoadPolicies for an in-memory document.
func ParsePolicies(doc string) (PolicyTable, error) {
	var raw policyFile
	md, err := toml.Decode(doc, &raw)
	if err != nil {
		return nil, fmt.Errorf("config: decode policies: %w", err)
	}
	return decodePolicies(md, raw)
}

func decodePolicies(md toml.MetaData, raw policyFile) (PolicyTable, error) {
	table := make(PolicyTable, len(raw.Policies))
	for name, prim := range raw.Policies {
		p := singleton.DefaultPolicy()
		if err := md.PrimitiveDecode(prim, &p); err != nil {
			return nil, fmt.Errorf("config: policy %q: %w", name, err)
		}
		table[name] = p
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicyKey, undecoded[0])
	}
	return table, nil
}

// PolicyFor implements singleton.PolicySource.
func (t PolicyTable) PolicyFor(id singleton.Identity) (singleton.Policy, bool) {
	p, ok := t[id.String()]
	return p, ok
}

// Names returns the table keys in sorted order.
func (t PolicyTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
