package locator

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Chain is an ordered, immutable list of descriptors for one logical element.
// The first entry is the preferred one; later entries are fallbacks.
type Chain struct {
	name        string
	descriptors []Descriptor
}

// NewChain parses every descriptor text. Any malformed entry fails the chain.
func NewChain(name string, texts ...string) (Chain, error) {
	if len(texts) == 0 {
		return Chain{}, fmt.Errorf("chain %q has no descriptors", name)
	}
	descs := make([]Descriptor, 0, len(texts))
	for i, text := range texts {
		d, err := Parse(text)
		if err != nil {
			return Chain{}, fmt.Errorf("chain %q entry %d: %w", name, i, err)
		}
		descs = append(descs, d)
	}
	return Chain{name: name, descriptors: descs}, nil
}

// MustChain is NewChain for package-level tables.
func MustChain(name string, texts ...string) Chain {
	c, err := NewChain(name, texts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Chain) Name() string { return c.name }
func (c Chain) Len() int     { return len(c.descriptors) }

// Descriptors returns a copy of the chain in priority order.
func (c Chain) Descriptors() []Descriptor {
	out := make([]Descriptor, len(c.descriptors))
	copy(out, c.descriptors)
	return out
}

// Strings returns the raw descriptor texts in priority order.
func (c Chain) Strings() []string {
	out := make([]string, len(c.descriptors))
	for i, d := range c.descriptors {
		out[i] = d.Raw
	}
	return out
}

func (c Chain) String() string {
	return fmt.Sprintf("%s%v", c.name, c.Strings())
}

// Registry is a read-only set of named chains.
type Registry struct {
	chains map[string]Chain
}

// NewRegistry builds a registry from already parsed chains.
func NewRegistry(chains ...Chain) (*Registry, error) {
	r := &Registry{chains: make(map[string]Chain, len(chains))}
	for _, c := range chains {
		if _, dup := r.chains[c.name]; dup {
			return nil, fmt.Errorf("duplicate chain %q", c.name)
		}
		r.chains[c.name] = c
	}
	return r, nil
}

// LoadRegistry reads a YAML document mapping chain names to descriptor lists:
//
//	NAV_CART:
//	  - "id:cartur"
//	  - "xpath://a[text()='Cart']"
func LoadRegistry(src io.Reader) (*Registry, error) {
	var raw map[string][]string
	if err := yaml.NewDecoder(src).Decode(&raw); err != nil {
		if err == io.EOF {
			return &Registry{chains: map[string]Chain{}}, nil
		}
		return nil, fmt.Errorf("failed to decode locator repository: %w", err)
	}

	chains := make([]Chain, 0, len(raw))
	for _, name := range sortedKeys(raw) {
		c, err := NewChain(name, raw[name]...)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return NewRegistry(chains...)
}

// Chain returns the named chain.
func (r *Registry) Chain(name string) (Chain, error) {
	c, ok := r.chains[name]
	if !ok {
		return Chain{}, fmt.Errorf("no locator chain named %q", name)
	}
	return c, nil
}

// MustChain returns the named chain or panics. Page objects use it for chains
// that ship with the binary.
func (r *Registry) MustChain(name string) Chain {
	c, err := r.Chain(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Names lists the registered chains in sorted order.
func (r *Registry) Names() []string {
	return sortedKeys(r.chains)
}

// Overlay returns a new registry where chains in other replace same-named
// chains in r. Neither input is modified.
func (r *Registry) Overlay(other *Registry) *Registry {
	merged := &Registry{chains: make(map[string]Chain, len(r.chains)+len(other.chains))}
	for k, v := range r.chains {
		merged.chains[k] = v
	}
	for k, v := range other.chains {
		merged.chains[k] = v
	}
	return merged
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
