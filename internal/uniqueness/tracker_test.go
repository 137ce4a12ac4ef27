package uniqueness

import "testing"

func TestFilterUniquePreservesOrderAndDropsDuplicates(t *testing.T) {
	tr := New()

	first := tr.FilterUnique([]string{"sparrow", "robin", "sparrow"})
	if len(first) != 2 || first[0] != "sparrow" || first[1] != "robin" {
		t.Fatalf("got %v", first)
	}

	second := tr.FilterUnique([]string{"robin", "finch"})
	if len(second) != 1 || second[0] != "finch" {
		t.Fatalf("got %v, want only finch (robin already accepted)", second)
	}

	if tr.Count() != 3 {
		t.Fatalf("count = %d, want 3", tr.Count())
	}
}

func TestDrainIterationResetsAccumulator(t *testing.T) {
	tr := New()
	tr.FilterUnique([]string{"a", "b"})

	drained := tr.DrainIteration()
	if len(drained) != 2 {
		t.Fatalf("got %v", drained)
	}

	if again := tr.DrainIteration(); len(again) != 0 {
		t.Fatalf("expected empty accumulator after drain, got %v", again)
	}

	tr.FilterUnique([]string{"c"})
	if next := tr.DrainIteration(); len(next) != 1 || next[0] != "c" {
		t.Fatalf("got %v", next)
	}
}

func TestOrderedReturnsFullAcceptedHistoryAcrossIterations(t *testing.T) {
	tr := New()
	tr.FilterUnique([]string{"a", "b"})
	tr.DrainIteration()
	tr.FilterUnique([]string{"c"})

	ordered := tr.Ordered()
	if len(ordered) != 3 || ordered[0] != "a" || ordered[1] != "b" || ordered[2] != "c" {
		t.Fatalf("got %v", ordered)
	}
}

func TestShouldDistributeBloomFilterTracksVersionAdvance(t *testing.T) {
	tr := New()
	if tr.ShouldDistributeBloomFilter() {
		t.Fatal("empty tracker with no prior distribution mark should report nothing new to distribute")
	}

	tr.FilterUnique([]string{"a"})
	if !tr.ShouldDistributeBloomFilter() {
		t.Fatal("expected a pending distribution after the bloom changed")
	}

	tr.MarkDistributed()
	if tr.ShouldDistributeBloomFilter() {
		t.Fatal("expected no pending distribution right after marking distributed")
	}

	tr.FilterUnique([]string{"b"})
	if !tr.ShouldDistributeBloomFilter() {
		t.Fatal("expected a pending distribution again after a further change")
	}
}

func TestGetBloomFilterDataRoundTrips(t *testing.T) {
	tr := New()
	tr.FilterUnique([]string{"a", "b"})

	data, err := tr.GetBloomFilterData()
	if err != nil {
		t.Fatalf("GetBloomFilterData: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty serialized bloom")
	}
}
