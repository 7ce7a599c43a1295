package directory

import (
	"fmt"
	"strings"
)

// Scope determines which foreign keys a permission grant must carry.
type Scope int

const (
	ScopeUnknown Scope = iota
	ScopeRoot
	ScopeContainer
	ScopeAsset
)

func (s Scope) String() string {
	switch s {
	case ScopeRoot:
		return "root"
	case ScopeContainer:
		return "container"
	case ScopeAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// Identify converts a display permission name to its identifier form:
// lowercase, spaces replaced with dashes.
func Identify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Catalog is the classification lookup derived from an app's declared
// permission sets. Identifiers are stored normalized.
type Catalog struct {
	scopes map[string]Scope
}

// NewCatalog validates and indexes an app's permission declaration. The three
// sets must be pairwise disjoint after normalization; a repeated identifier
// fails with ErrInvalidInput.
func NewCatalog(p AppPermission) (Catalog, error) {
	c := Catalog{scopes: make(map[string]Scope, len(p.Root)+len(p.Container)+len(p.Asset))}
	for _, entry := range []struct {
		names []string
		scope Scope
	}{
		{p.Root, ScopeRoot},
		{p.Container, ScopeContainer},
		{p.Asset, ScopeAsset},
	} {
		for _, name := range entry.names {
			ident := Identify(name)
			if ident == "" {
				return Catalog{}, fmt.Errorf("%w: empty permission identifier", ErrInvalidInput)
			}
			if _, dup := c.scopes[ident]; dup {
				return Catalog{}, fmt.Errorf("%w: duplicate permission %q across catalog sets", ErrInvalidInput, ident)
			}
			c.scopes[ident] = entry.scope
		}
	}
	return c, nil
}

// Classify returns the scope an identifier belongs to, or ScopeUnknown when
// the app never declared it.
func (c Catalog) Classify(identifier string) Scope {
	if c.scopes == nil {
		return ScopeUnknown
	}
	return c.scopes[Identify(identifier)]
}

// Identifiers returns every normalized identifier in the catalog.
func (c Catalog) Identifiers() []string {
	out := make([]string, 0, len(c.scopes))
	for ident := range c.scopes {
		out = append(out, ident)
	}
	return out
}

// RemovedIdentifiers returns the normalized identifiers present in the old
// declaration but absent from the new one. Grants carrying them become invalid
// when an app narrows its catalog.
func RemovedIdentifiers(old, updated AppPermission) []string {
	keep := make(map[string]struct{})
	for _, set := range [][]string{updated.Root, updated.Container, updated.Asset} {
		for _, name := range set {
			keep[Identify(name)] = struct{}{}
		}
	}
	var removed []string
	seen := make(map[string]struct{})
	for _, set := range [][]string{old.Root, old.Container, old.Asset} {
		for _, name := range set {
			ident := Identify(name)
			if _, ok := keep[ident]; ok {
				continue
			}
			if _, dup := seen[ident]; dup {
				continue
			}
			seen[ident] = struct{}{}
			removed = append(removed, ident)
		}
	}
	return removed
}
