package uniqueness

import (
	"testing"

	"github.com/igentai/genorch/internal/sharedtypes"
)

func TestProcessResponseSplitsOnNewlineCommaAndCR(t *testing.T) {
	p := NewProcessor()
	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "sparrow,robin\r\nfinch")
	if stats.TotalExtracted != 3 {
		t.Fatalf("got %d tokens, want 3: %+v", stats.TotalExtracted, stats)
	}
	if len(stats.NewValues) != 3 || stats.DuplicateCount != 0 {
		t.Fatalf("got %+v", stats)
	}
}

func TestProcessResponseNormalizesCase(t *testing.T) {
	p := NewProcessor()
	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "Sparrow")
	if len(stats.NewValues) != 1 || stats.NewValues[0] != "sparrow" {
		t.Fatalf("got %+v", stats.NewValues)
	}
}

func TestProcessResponseRejectsDigitsAndShortTokens(t *testing.T) {
	p := NewProcessor()
	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "sparrow,123,ab,a1b")
	if len(stats.NewValues) != 1 || stats.NewValues[0] != "sparrow" {
		t.Fatalf("got %+v", stats.NewValues)
	}
	if stats.TotalExtracted != 1 {
		t.Fatalf("total extracted should only count tokens that survive normalization, got %d", stats.TotalExtracted)
	}
}

func TestProcessResponseRejectsOverlongPhrases(t *testing.T) {
	p := NewProcessor()
	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "one two three four five six seven")
	if len(stats.NewValues) != 0 {
		t.Fatalf("expected a 7-word phrase to be rejected, got %+v", stats.NewValues)
	}
}

func TestProcessResponseAllowsUpToSixWords(t *testing.T) {
	p := NewProcessor()
	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "one two three four five six")
	if len(stats.NewValues) != 1 {
		t.Fatalf("expected a 6-word phrase to be accepted, got %+v", stats.NewValues)
	}
}

func TestProcessResponseCollapsesInternalWhitespace(t *testing.T) {
	p := NewProcessor()
	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "red   breasted robin")
	if len(stats.NewValues) != 1 || stats.NewValues[0] != "red breasted robin" {
		t.Fatalf("got %+v", stats.NewValues)
	}
}

func TestProcessResponseDetectsDuplicatesAcrossCalls(t *testing.T) {
	p := NewProcessor()
	p.ProcessResponse(sharedtypes.ProviderOpenAI, "sparrow")
	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "sparrow,robin")
	if stats.DuplicateCount != 1 || len(stats.NewValues) != 1 || stats.NewValues[0] != "robin" {
		t.Fatalf("got %+v", stats)
	}
}

func TestApplyBloomBytesFastPath(t *testing.T) {
	tr := New()
	tr.FilterUnique([]string{"sparrow"})
	data, err := tr.GetBloomFilterData()
	if err != nil {
		t.Fatalf("GetBloomFilterData: %v", err)
	}

	p := NewProcessor()
	if err := p.ApplyBloomBytes(data, tr.Version()); err != nil {
		t.Fatalf("ApplyBloomBytes: %v", err)
	}

	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "sparrow")
	if stats.DuplicateCount != 1 {
		t.Fatalf("expected synced bloom to already know about sparrow, got %+v", stats)
	}
}

func TestRebuildFromSeenValuesFallbackPath(t *testing.T) {
	p := NewProcessor()
	p.RebuildFromSeenValues([]string{"sparrow", "robin"})

	stats := p.ProcessResponse(sharedtypes.ProviderOpenAI, "sparrow,finch")
	if stats.DuplicateCount != 1 || len(stats.NewValues) != 1 || stats.NewValues[0] != "finch" {
		t.Fatalf("got %+v", stats)
	}
}
