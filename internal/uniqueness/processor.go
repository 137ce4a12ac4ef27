package uniqueness

import (
	"strings"
	"sync"
	"unicode"

	"github.com/igentai/genorch/internal/bloomfilter"
	"github.com/igentai/genorch/internal/sharedtypes"
)

// ProcessingStats summarizes one call to Processor.ProcessResponse.
type ProcessingStats struct {
	TotalExtracted int
	DuplicateCount int
	Provider       sharedtypes.ProviderID
	NewValues      []string
}

// Processor is the worker-side mirror of the orchestrator's Tracker: its
// own bloom, kept in sync via SyncCheck messages rather than grown purely
// from local inserts.
type Processor struct {
	mu     sync.Mutex
	filter *bloomfilter.Filter
}

// NewProcessor creates a Processor with an empty bloom, sized for the
// default capacity until the first sync replaces or rebuilds it.
func NewProcessor() *Processor {
	return &Processor{filter: bloomfilter.New()}
}

// ApplyBloomBytes replaces the local bloom with bytes received from a
// SyncCheck. This is the fast path: the worker trusts the orchestrator's
// serialization outright.
func (p *Processor) ApplyBloomBytes(data []byte, version uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter.Unmarshal(data, version)
}

// RebuildFromSeenValues replaces the local bloom by re-inserting every
// value in seenValues, sized at max(10000, 2*len(seenValues)). This is the
// fallback path taken when a SyncCheck carries seen_values instead of (or
// because the worker failed to deserialize) bloom bytes; it is expected to
// be slower than ApplyBloomBytes and callers should log when they take it.
func (p *Processor) RebuildFromSeenValues(seenValues []string) {
	rebuilt := bloomfilter.Rebuild(seenValues)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = rebuilt
}

// ProcessResponse extracts candidate attribute strings from raw LLM
// content, normalizes each token, and partitions them into new values
// (inserted into the local bloom) and duplicates (already present).
func (p *Processor) ProcessResponse(provider sharedtypes.ProviderID, content string) ProcessingStats {
	tokens := extractTokens(content)

	stats := ProcessingStats{
		TotalExtracted: len(tokens),
		Provider:       provider,
		NewValues:      make([]string, 0, len(tokens)),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tok := range tokens {
		if p.filter.TestAndAdd(tok) {
			stats.DuplicateCount++
			continue
		}
		stats.NewValues = append(stats.NewValues, tok)
	}
	return stats
}

// extractTokens splits raw provider content on newline, carriage return,
// and comma, then normalizes and filters each resulting token.
func extractTokens(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if norm, ok := normalize(f); ok {
			tokens = append(tokens, norm)
		}
	}
	return tokens
}

// normalize lowercases a token, retains only alphabetic characters and
// single spaces (collapsing runs of whitespace), and rejects it outright if
// it is pure-numeric, shorter than 3 characters, contains any digit, or
// spans more than 6 whitespace-separated words.
func normalize(token string) (string, bool) {
	var b strings.Builder
	lastWasSpace := false
	hasDigit := false

	for _, r := range strings.TrimSpace(token) {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
			lastWasSpace = false
		case unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		}
	}

	result := strings.TrimSpace(b.String())
	if hasDigit {
		return "", false
	}
	if len(result) < 3 {
		return "", false
	}
	if len(strings.Fields(result)) > 6 {
		return "", false
	}
	return result, true
}
