package tokenizer

import (
	"strings"
)

// CountTokens provides a rough token count estimate, used when a provider does not report
// usage.
func CountTokens(text string) int {
	// Rough estimate: ~4 chars per token for English
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return max(len(words)*4/3, 1)
}

// UsageRatio is the fraction of a context window consumed by tokens, clamped to [0, 1].
func UsageRatio(tokens, window int) float64 {
	if window <= 0 || tokens <= 0 {
		return 0
	}
	return min(float64(tokens)/float64(window), 1)
}
