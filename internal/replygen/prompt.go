package replygen

import (
	"fmt"
	"strings"

	"github.com/merezhko/pagebot/internal/graph"
	"github.com/merezhko/pagebot/internal/ollama"
)

// commentExcerptLen bounds how much of a long comment goes into the prompt.
const commentExcerptLen = 500

// buildPrompt assembles the system persona and user turn for a reply
// generation call.
func buildPrompt(pageName string, comment graph.Comment, postMessage string) []ollama.Message {
	if postMessage == "" {
		postMessage = missingPostPlaceholder
	}
	if pageName == "" {
		pageName = "the page"
	}

	var sb strings.Builder
	sb.WriteString("You write short, friendly replies to comments on behalf of ")
	sb.WriteString(pageName)
	sb.WriteString(", a social media page.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- One or two sentences, conversational tone.\n")
	sb.WriteString("- Address the commenter by first name when a name is given.\n")
	sb.WriteString("- Never promise anything specific; never invent facts about the page.\n")
	sb.WriteString("- No hashtags, no links.\n")

	user := fmt.Sprintf("Post:\n%s\n\nComment from %s:\n%s\n\nWrite the reply.",
		excerpt(postMessage, commentExcerptLen),
		displayName(comment.AuthorName),
		excerpt(comment.Message, commentExcerptLen))

	return []ollama.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: user},
	}
}

func displayName(name string) string {
	if name == "" {
		return "a visitor"
	}
	return name
}

func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
