package directory

import (
	"errors"
	"testing"
)

func TestIdentify(t *testing.T) {
	cases := map[string]string{
		"Root":            "root",
		"  Manage Users ": "manage-users",
		"already-done":    "already-done",
		"Mixed CASE Name": "mixed-case-name",
	}
	for in, want := range cases {
		if got := Identify(in); got != want {
			t.Errorf("Identify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCatalogClassify(t *testing.T) {
	c, err := NewCatalog(AppPermission{
		Root:      []string{"Administer"},
		Container: []string{"Manage Projects"},
		Asset:     []string{"Read Document"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Classify("administer"); got != ScopeRoot {
		t.Fatalf("administer classified as %v", got)
	}
	if got := c.Classify("Manage Projects"); got != ScopeContainer {
		t.Fatalf("display name not normalized before lookup: %v", got)
	}
	if got := c.Classify("read-document"); got != ScopeAsset {
		t.Fatalf("read-document classified as %v", got)
	}
	if got := c.Classify("never-declared"); got != ScopeUnknown {
		t.Fatalf("undeclared identifier classified as %v", got)
	}
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog(AppPermission{
		Root:      []string{"Manage"},
		Container: []string{"manage"},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for cross-set duplicate, got %v", err)
	}

	_, err = NewCatalog(AppPermission{Root: []string{"  "}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty identifier, got %v", err)
	}
}

func TestRemovedIdentifiers(t *testing.T) {
	old := AppPermission{
		Root:      []string{"Administer"},
		Container: []string{"Manage Projects", "View Projects"},
		Asset:     []string{"Read Document"},
	}
	updated := AppPermission{
		Root:      []string{"Administer"},
		Container: []string{"View Projects"},
	}
	removed := RemovedIdentifiers(old, updated)
	want := map[string]bool{"manage-projects": true, "read-document": true}
	if len(removed) != len(want) {
		t.Fatalf("removed = %v, want 2 identifiers", removed)
	}
	for _, ident := range removed {
		if !want[ident] {
			t.Fatalf("unexpected removed identifier %q", ident)
		}
	}
}

func TestRemovedIdentifiersSurvivesScopeMove(t *testing.T) {
	// Moving an identifier between sets keeps it valid.
	old := AppPermission{Container: []string{"Manage"}}
	updated := AppPermission{Root: []string{"Manage"}}
	if removed := RemovedIdentifiers(old, updated); len(removed) != 0 {
		t.Fatalf("scope move reported removals: %v", removed)
	}
}
