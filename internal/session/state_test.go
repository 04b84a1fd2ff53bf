package session

import "testing"

func TestGetOrDefault_SeedsOnFirstAccess(t *testing.T) {
	st := NewState()

	if got := st.GetOrDefault("window", 6); got != 6 {
		t.Fatalf("first access: got %v, want 6", got)
	}
	// A different default must not override the seeded value.
	if got := st.GetOrDefault("window", 10); got != 6 {
		t.Fatalf("second access: got %v, want 6", got)
	}
}

func TestSet_OverridesDefault(t *testing.T) {
	st := NewState()
	st.GetOrDefault("mode", "combined")
	st.Set("mode", "per-source")

	if got := st.GetOrDefault("mode", "combined"); got != "per-source" {
		t.Fatalf("got %v, want per-source", got)
	}
}

func TestReset_OverwritesManagedKeys(t *testing.T) {
	st := NewState()
	st.Set("window", 12)
	st.Set("mode", "per-source")
	st.Set("unmanaged", "keep")

	st.Reset(map[string]any{"window": 6, "mode": "combined"})

	if got := Value(st, "window", 0); got != 6 {
		t.Errorf("window: got %d, want 6", got)
	}
	if got := Value(st, "mode", ""); got != "combined" {
		t.Errorf("mode: got %q, want combined", got)
	}
	if got, _ := st.Get("unmanaged"); got != "keep" {
		t.Errorf("unmanaged: got %v, want keep", got)
	}
}

func TestValue_ReplacesMistypedValue(t *testing.T) {
	st := NewState()
	st.Set("window", "six")

	if got := Value(st, "window", 6); got != 6 {
		t.Fatalf("got %d, want 6", got)
	}
	if got, ok := Lookup[int](st, "window"); !ok || got != 6 {
		t.Fatalf("Lookup: got %d/%v, want 6/true", got, ok)
	}
}

func TestDeletePrefix(t *testing.T) {
	st := NewState()
	st.Set("liquid.toggle.A", true)
	st.Set("liquid.toggle.B", false)
	st.Set("liquid.window", 6)

	st.DeletePrefix("liquid.toggle.")

	if _, ok := st.Get("liquid.toggle.A"); ok {
		t.Error("liquid.toggle.A should be gone")
	}
	if _, ok := st.Get("liquid.window"); !ok {
		t.Error("liquid.window should survive")
	}
}
