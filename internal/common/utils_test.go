package common

import (
	"reflect"
	"testing"
)

func TestHasAnySuffix(t *testing.T) {
	if !HasAnySuffix("TQ2_Au_L", "_S", "_L") {
		t.Fatal("expected TQ2_Au_L to match _L")
	}
	if HasAnySuffix("TQ2_Au_X", "_S", "_L") {
		t.Fatal("expected TQ2_Au_X not to match")
	}
	if HasAnySuffix("anything") {
		t.Fatal("expected no suffixes to never match")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" A, B ,,C ")
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := SplitList(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
