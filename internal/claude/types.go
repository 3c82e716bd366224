package claude

import (
	"fmt"

	"github.com/optisuite/optisuite/internal/usage"
)

// MessageRequest describes a single Claude messages API call.
type MessageRequest struct {
	// Prompt is the user message content.
	Prompt string `json:"prompt"`

	// System is an optional system prompt.
	System string `json:"system,omitempty"`

	// MaxTokens overrides the configured response cap when > 0.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// MessageResponse is the parsed result of a successful messages API call.
type MessageResponse struct {
	// ID is the provider-assigned message identifier.
	ID string `json:"id"`

	// Model echoes the model that produced the response.
	Model string `json:"model"`

	// Text is the concatenated text content of the response.
	Text string `json:"text"`

	// StopReason reports why generation ended.
	StopReason string `json:"stop_reason"`

	// Usage holds the token accounting reported by the API.
	Usage usage.Detail `json:"usage"`

	// Raw is the unmodified response body, kept for results persistence.
	Raw []byte `json:"-"`
}

// APIError is a structured error response from the upstream API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("claude: api error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("claude: api error %d: %s", e.StatusCode, e.Message)
}
