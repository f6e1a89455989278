package replygen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/merezhko/pagebot/internal/graph"
	"github.com/merezhko/pagebot/internal/ollama"
)

type mockChatter struct {
	chatFn func(ctx context.Context, model string, messages []ollama.Message, schema *ollama.Schema) (string, error)
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []ollama.Message, schema *ollama.Schema) (string, error) {
	return m.chatFn(ctx, model, messages, schema)
}

var testComment = graph.Comment{
	ID:         "c1",
	AuthorID:   "u9",
	AuthorName: "Ada Lovelace",
	Message:    "Do you ship internationally?",
}

func TestGenerate_ReturnsModelReply(t *testing.T) {
	g := NewOllamaGenerator(&mockChatter{
		chatFn: func(_ context.Context, model string, _ []ollama.Message, schema *ollama.Schema) (string, error) {
			if model != "llama3.2" {
				t.Errorf("model = %q", model)
			}
			if schema == nil {
				t.Error("expected a JSON schema")
			}
			return `{"reply":"Hi Ada, yes we do!"}`, nil
		},
	}, "llama3.2", "Test Shop")

	out, err := g.Generate(context.Background(), testComment, "New products this week")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Hi Ada, yes we do!" {
		t.Errorf("reply = %q", out)
	}
}

func TestGenerate_MissingPostMessageUsesPlaceholder(t *testing.T) {
	var gotPrompt string
	g := NewOllamaGenerator(&mockChatter{
		chatFn: func(_ context.Context, _ string, messages []ollama.Message, _ *ollama.Schema) (string, error) {
			for _, m := range messages {
				if m.Role == "user" {
					gotPrompt = m.Content
				}
			}
			return `{"reply":"ok"}`, nil
		},
	}, "llama3.2", "Test Shop")

	if _, err := g.Generate(context.Background(), testComment, ""); err != nil {
		t.Fatalf("Generate with empty post message: %v", err)
	}
	if !strings.Contains(gotPrompt, missingPostPlaceholder) {
		t.Errorf("prompt should contain placeholder, got %q", gotPrompt)
	}
}

func TestGenerate_ChatErrorPropagates(t *testing.T) {
	g := NewOllamaGenerator(&mockChatter{
		chatFn: func(context.Context, string, []ollama.Message, *ollama.Schema) (string, error) {
			return "", errors.New("connection refused")
		},
	}, "llama3.2", "")

	if _, err := g.Generate(context.Background(), testComment, "post"); err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerate_MalformedJSONIsError(t *testing.T) {
	g := NewOllamaGenerator(&mockChatter{
		chatFn: func(context.Context, string, []ollama.Message, *ollama.Schema) (string, error) {
			return "sure, here's a reply:", nil
		},
	}, "llama3.2", "")

	if _, err := g.Generate(context.Background(), testComment, "post"); err == nil {
		t.Fatal("expected error for non-JSON model output")
	}
}

func TestGenerate_EmptyReplyIsError(t *testing.T) {
	g := NewOllamaGenerator(&mockChatter{
		chatFn: func(context.Context, string, []ollama.Message, *ollama.Schema) (string, error) {
			return `{"reply":"   "}`, nil
		},
	}, "llama3.2", "")

	if _, err := g.Generate(context.Background(), testComment, "post"); err == nil {
		t.Fatal("expected error for empty reply")
	}
}

func TestSanitize_CapsLength(t *testing.T) {
	long := strings.Repeat("word ", 400)
	out := sanitize(long)
	if len([]rune(out)) > maxReplyLen {
		t.Errorf("sanitized length %d exceeds cap %d", len([]rune(out)), maxReplyLen)
	}
}

func TestSanitize_CollapsesWhitespace(t *testing.T) {
	out := sanitize("  hello\n\n  world\t! ")
	if out != "hello world !" {
		t.Errorf("sanitize = %q", out)
	}
}

func TestStaticGenerator(t *testing.T) {
	g := NewStaticGenerator("")
	out, err := g.Generate(context.Background(), testComment, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != StaticReply {
		t.Errorf("reply = %q, want default static reply", out)
	}

	custom := NewStaticGenerator("Thanks!")
	out, _ = custom.Generate(context.Background(), testComment, "")
	if out != "Thanks!" {
		t.Errorf("reply = %q", out)
	}
}
