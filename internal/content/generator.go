// Package content generates deliverable content (blog posts, code, analysis,
// marketing copy) through the Claude API using per-type prompt templates, and
// rewrites prompts for better results.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/optisuite/optisuite/internal/claude"
)

// Messenger is the slice of the Claude client the generator needs.
type Messenger interface {
	Messages(ctx context.Context, req claude.MessageRequest) (*claude.MessageResponse, error)
}

// templates maps a content type to its prompt template. The placeholders
// %[1]s and %[2]s receive the topic and the JSON-encoded requirements.
var templates = map[string]string{
	"blog_post": `Write a comprehensive blog post about %[1]s.
Requirements: %[2]s
Include: engaging title, introduction, main points, conclusion, and CTA.`,

	"code": `Generate production-ready code for %[1]s.
Requirements: %[2]s
Include: documentation, error handling, and best practices.`,

	"analysis": `Provide a detailed analysis of %[1]s.
Requirements: %[2]s
Include: data insights, recommendations, and action items.`,

	"marketing": `Create marketing content for %[1]s.
Requirements: %[2]s
Include: headlines, value propositions, and call-to-action.`,
}

// genericTemplate is used for unknown content types.
const genericTemplate = `Generate content about %[1]s.
Requirements: %[2]s`

// Generator produces content through a Claude messenger.
type Generator struct {
	messenger Messenger
}

// NewGenerator creates a content generator.
func NewGenerator(messenger Messenger) *Generator {
	return &Generator{messenger: messenger}
}

// Types lists the known content types.
func Types() []string {
	return []string{"analysis", "blog_post", "code", "marketing"}
}

// BuildPrompt renders the template for the given content type. Unknown types
// fall back to a generic template rather than failing.
func BuildPrompt(contentType, topic string, requirements map[string]any) (string, error) {
	reqJSON, err := json.Marshal(requirements)
	if err != nil {
		return "", fmt.Errorf("content: encode requirements failed: %w", err)
	}
	if requirements == nil {
		reqJSON = []byte("{}")
	}
	template, ok := templates[contentType]
	if !ok {
		template = genericTemplate
	}
	return fmt.Sprintf(template, topic, string(reqJSON)), nil
}

// Generate produces content of the given type about the topic and returns the
// response text.
func (g *Generator) Generate(ctx context.Context, contentType, topic string, requirements map[string]any) (string, error) {
	prompt, err := BuildPrompt(contentType, topic, requirements)
	if err != nil {
		return "", err
	}
	resp, err := g.messenger.Messages(ctx, claude.MessageRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// OptimizePrompt rewrites a prompt to better serve the given goal. An empty
// goal defaults to "clarity".
func (g *Generator) OptimizePrompt(ctx context.Context, original, goal string) (string, error) {
	if strings.TrimSpace(original) == "" {
		return "", fmt.Errorf("content: original prompt is empty")
	}
	if goal == "" {
		goal = "clarity"
	}

	optimizationPrompt := fmt.Sprintf(`Optimize the following prompt for %s:

Original prompt: %s

Provide an improved version that is:
1. More clear and specific
2. Structured better
3. Likely to produce better results

Return only the optimized prompt.`, goal, original)

	resp, err := g.messenger.Messages(ctx, claude.MessageRequest{Prompt: optimizationPrompt})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
