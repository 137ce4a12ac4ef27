package providerapi

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/igentai/genorch/internal/sharedtypes"
)

// RandomClient is an in-process stub standing in for a real
// LLM: it never calls the network, never rate-limits, and needs no API
// key, making it useful for exercising the routing and uniqueness layers
// without external dependencies.
type RandomClient struct {
	rng *rand.Rand
}

// NewRandomClient creates a client seeded from the current time. Each
// instance produces its own stream of candidate attributes, so multiple
// workers running Random in parallel don't all emit identical batches.
func NewRandomClient() *RandomClient {
	return &RandomClient{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

var randomAdjectives = []string{"red", "blue", "swift", "quiet", "golden", "ancient", "tiny", "bold"}
var randomNouns = []string{"sparrow", "river", "lantern", "comet", "meadow", "anchor", "willow", "forge"}

// Generate fabricates a short phrase built from two word lists rather than
// an LLM call, returning immediately with a synthetic, small token count.
func (c *RandomClient) Generate(ctx context.Context, model, prompt string) (Response, error) {
	adj := randomAdjectives[c.rng.Intn(len(randomAdjectives))]
	noun := randomNouns[c.rng.Intn(len(randomNouns))]
	content := strings.Join([]string{adj, noun}, " ")

	return Response{
		Content:      fmt.Sprintf("%s\n%s %s\n%s %s", content, adj, noun, noun, adj),
		ModelUsed:    "random-stub",
		Tokens:       sharedtypes.TokenUsage{Input: 10, Output: 10},
		ResponseTime: time.Microsecond,
	}, nil
}
