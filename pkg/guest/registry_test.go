package guest

import (
	"context"
	"testing"
)

func staticDetector(match bool) func() Detector {
	return func() Detector {
		return DetectorFunc(func(ctx context.Context, m Machine) (bool, error) {
			return match, nil
		})
	}
}

func TestRegistry_Register_Validation(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(Definition{NewDetector: staticDetector(false)}); err == nil {
		t.Error("expected error for empty guest ID")
	}

	if err := reg.Register(Definition{ID: "linux"}); err == nil {
		t.Error("expected error for missing detector factory")
	}

	if err := reg.Register(Definition{ID: "linux", Parent: "linux", NewDetector: staticDetector(false)}); err == nil {
		t.Error("expected error for self-parent")
	}

	if err := reg.Register(Definition{ID: "linux", NewDetector: staticDetector(false)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := reg.Register(Definition{ID: "linux", NewDetector: staticDetector(false)}); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestRegistry_IDs_PreservesRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	order := []ID{"linux", "debian", "redhat", "ubuntu", "darwin"}

	for _, id := range order {
		if err := reg.Register(Definition{ID: id, NewDetector: staticDetector(false)}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	got := reg.IDs()
	if len(got) != len(order) {
		t.Fatalf("expected %d IDs, got %d", len(order), len(got))
	}
	for i, id := range order {
		if got[i] != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i])
		}
	}
}

func TestRegistry_Depth(t *testing.T) {
	reg := NewRegistry()
	defs := []Definition{
		{ID: "linux", NewDetector: staticDetector(false)},
		{ID: "debian", Parent: "linux", NewDetector: staticDetector(false)},
		{ID: "ubuntu", Parent: "debian", NewDetector: staticDetector(false)},
		{ID: "orphan", Parent: "missing", NewDetector: staticDetector(false)},
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.ID, err)
		}
	}

	tests := []struct {
		id    ID
		depth int
	}{
		{"linux", 0},
		{"debian", 1},
		{"ubuntu", 2},
		// An unregistered parent ends the ancestry.
		{"orphan", 0},
	}

	for _, tt := range tests {
		depth, err := reg.Depth(tt.id)
		if err != nil {
			t.Fatalf("depth of %s: %v", tt.id, err)
		}
		if depth != tt.depth {
			t.Errorf("depth of %s: expected %d, got %d", tt.id, tt.depth, depth)
		}
	}

	if _, err := reg.Depth("unknown"); err == nil {
		t.Error("expected error for unregistered guest")
	}
}

func TestRegistry_Depth_Cycle(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Definition{ID: "a", Parent: "b", NewDetector: staticDetector(false)}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(Definition{ID: "b", Parent: "a", NewDetector: staticDetector(false)}); err != nil {
		t.Fatal(err)
	}

	_, err := reg.Depth("a")
	if !IsCycle(err) {
		t.Errorf("expected cycle error, got %v", err)
	}
}

func TestCapabilityRegistry_Register(t *testing.T) {
	caps := NewCapabilityRegistry()

	noop := func(ctx context.Context, m Machine, args ...any) (any, error) {
		return nil, nil
	}

	if err := caps.Register("", "x", noop); err == nil {
		t.Error("expected error for empty guest ID")
	}
	if err := caps.Register("linux", "", noop); err == nil {
		t.Error("expected error for empty capability name")
	}

	if err := caps.Register("linux", "hostname.set", noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := caps.Register("linux", "hostname.set", noop); err == nil {
		t.Error("expected error for duplicate capability")
	}

	// Nil bindings are recorded so dispatch can report them as invalid.
	if err := caps.Register("windows", "service.restart", nil); err != nil {
		t.Fatalf("unexpected error for nil binding: %v", err)
	}

	set := caps.Lookup("windows")
	if set == nil {
		t.Fatal("expected capability set for windows")
	}
	if fn, ok := set["service.restart"]; !ok || fn != nil {
		t.Errorf("expected recorded nil binding, got ok=%v fn=%v", ok, fn)
	}

	if set := caps.Lookup("darwin"); set != nil {
		t.Errorf("expected nil set for guest with no capabilities, got %v", set)
	}
}
