// Package replygen produces reply text for page comments, either through a
// local Ollama model or a static fallback when no model is configured.
package replygen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/merezhko/pagebot/internal/graph"
	"github.com/merezhko/pagebot/internal/ollama"
)

const generationTimeout = 15 * time.Second

// maxReplyLen caps generated replies; anything longer is cut at a rune
// boundary. Keeps model runaways out of the page feed.
const maxReplyLen = 900

// missingPostPlaceholder stands in for the post context when the parent
// post has no message (e.g. a bare photo post).
const missingPostPlaceholder = "(a recent post on our page)"

// StaticReply is the neutral acknowledgment used when no generative
// backend is configured or available.
const StaticReply = "Thanks for reaching out! We'll get back to you shortly."

// Generator produces reply text from a comment and its parent post's message.
type Generator interface {
	Generate(ctx context.Context, comment graph.Comment, postMessage string) (string, error)
}

// OllamaChatter is the chat-completion seam, satisfied by *ollama.Client.
type OllamaChatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// OllamaGenerator generates replies with a local Ollama model.
type OllamaGenerator struct {
	client   OllamaChatter
	model    string
	pageName string
}

// NewOllamaGenerator creates a generator for the given client and model.
// pageName is woven into the persona prompt.
func NewOllamaGenerator(client OllamaChatter, model, pageName string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model, pageName: pageName}
}

type replyResult struct {
	Reply string `json:"reply"`
}

// Generate asks the model for a short contextual reply. A missing post
// message is substituted with a neutral placeholder and is never an error.
func (g *OllamaGenerator) Generate(ctx context.Context, comment graph.Comment, postMessage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	raw, err := g.client.Chat(ctx, g.model, buildPrompt(g.pageName, comment, postMessage), replySchema())
	if err != nil {
		return "", fmt.Errorf("generating reply for comment %s: %w", comment.ID, err)
	}

	var result replyResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", fmt.Errorf("parsing generated reply for comment %s: %w", comment.ID, err)
	}

	text := sanitize(result.Reply)
	if text == "" {
		return "", fmt.Errorf("model returned an empty reply for comment %s", comment.ID)
	}
	return text, nil
}

func replySchema() *ollama.Schema {
	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"reply": {Type: "string", Description: "The reply text to post under the comment"},
		},
		Required: []string{"reply"},
	}
}

// sanitize trims, collapses internal whitespace runs, and caps length.
func sanitize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxReplyLen {
		s = string(runes[:maxReplyLen])
	}
	return s
}

// StaticGenerator returns a fixed acknowledgment for every comment.
// Used when no generative backend is configured; generation is never a
// reason to abort a run.
type StaticGenerator struct {
	text string
}

// NewStaticGenerator creates a StaticGenerator. An empty text falls back
// to StaticReply.
func NewStaticGenerator(text string) *StaticGenerator {
	if text == "" {
		text = StaticReply
	}
	return &StaticGenerator{text: text}
}

func (g *StaticGenerator) Generate(_ context.Context, _ graph.Comment, _ string) (string, error) {
	return g.text, nil
}
