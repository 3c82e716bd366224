package claude

import (
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// EstimateTokens approximates the token count of a prompt before sending it.
// Claude does not publish its tokenizer, so the cl100k_base encoding is used
// as a close stand-in for preflight cost checks.
func EstimateTokens(text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, nil
	}
	enc, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return 0, err
	}
	return enc.Count(trimmed)
}

// EstimateCost converts a token count into an estimated USD cost using the
// configured per-token rate.
func EstimateCost(tokens int, costPerToken float64) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) * costPerToken
}
