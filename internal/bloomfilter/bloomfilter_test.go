package bloomfilter

import "testing"

func TestTestAndAddDetectsDuplicate(t *testing.T) {
	f := New()

	if already := f.TestAndAdd("sparrow"); already {
		t.Fatal("first insertion should report not already present")
	}
	if already := f.TestAndAdd("sparrow"); !already {
		t.Fatal("second insertion of the same value should report already present")
	}
}

func TestVersionBumpsOnlyOnNewValue(t *testing.T) {
	f := New()
	f.TestAndAdd("sparrow")
	v1 := f.Version()
	f.TestAndAdd("sparrow")
	v2 := f.Version()
	if v1 != v2 {
		t.Fatalf("version bumped on a duplicate insert: %d -> %d", v1, v2)
	}
	f.TestAndAdd("robin")
	v3 := f.Version()
	if v3 <= v2 {
		t.Fatalf("version did not bump on a new value: %d -> %d", v2, v3)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	f := New()
	f.Add("sparrow")
	f.Add("robin")

	data, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	restored := New()
	if err := restored.Unmarshal(data, 7); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !restored.Contains("sparrow") || !restored.Contains("robin") {
		t.Fatal("restored filter lost a known member")
	}
	if restored.Version() != 7 {
		t.Fatalf("version = %d, want 7 (carried from SyncCheck, not recomputed)", restored.Version())
	}
}

func TestRebuildContainsSeenValues(t *testing.T) {
	values := []string{"a", "b", "c"}
	f := Rebuild(values)
	for _, v := range values {
		if !f.Contains(v) {
			t.Fatalf("rebuilt filter missing seeded value %q", v)
		}
	}
	if f.Contains("never-seen") == true {
		// Allowed by the false-positive rate, but vanishingly unlikely for
		// this tiny input; surfacing it would indicate a sizing bug.
		t.Log("false positive on an unseen value (statistically possible, watch if this test flakes)")
	}
}

func TestRebuildMinimumCapacity(t *testing.T) {
	f := Rebuild(nil)
	f.Add("anything")
	if !f.Contains("anything") {
		t.Fatal("filter built from zero seen values should still accept inserts")
	}
}
