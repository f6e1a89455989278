package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/merezhko/pagebot/internal/draft"
	"github.com/merezhko/pagebot/internal/responder"
	"github.com/merezhko/pagebot/internal/storage"
)

// NewMCPServer exposes the queue and the responder as MCP tools so an
// agent can drive the page over stdio.
func NewMCPServer(deps AppDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"pagebot",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("queue_post",
		mcp.WithDescription("Add a post draft to the publishing queue. Drafts need approval before publishing."),
		mcp.WithString("message",
			mcp.Description("Post text"),
			mcp.Required(),
		),
		mcp.WithString("link",
			mcp.Description("Optional link to attach to the post"),
		),
	), handleQueuePostTool(deps))

	s.AddTool(mcp.NewTool("list_queue",
		mcp.WithDescription("List posts in the publishing queue."),
		mcp.WithString("status",
			mcp.Description("Filter by status: draft, approved or published. Empty lists everything."),
		),
	), handleListQueueTool(deps))

	s.AddTool(mcp.NewTool("respond_comments",
		mcp.WithDescription("Scan recent page posts and reply to unanswered comments."),
		mcp.WithBoolean("dry_run",
			mcp.Description("Report what would be replied without posting anything"),
		),
		mcp.WithNumber("max_replies",
			mcp.Description("Cap on replies for this run (default 10)"),
		),
		mcp.WithNumber("posts_to_scan",
			mcp.Description("How many recent posts to scan (default 5)"),
		),
	), handleRespondTool(deps))

	s.AddTool(mcp.NewTool("recent_interactions",
		mcp.WithDescription("Show the most recent comment replies from the interaction log."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to return (default 20)"),
		),
	), handleInteractionsTool(deps))

	return s
}

// ServeMCP runs the MCP server over stdio until ctx is cancelled.
func ServeMCP(ctx context.Context, s *server.MCPServer) error {
	return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
}

func handleQueuePostTool(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError(err.Error()), nil
		}

		d, err := draft.FromText(message)
		if err != nil {
			return mcpError(fmt.Sprintf("building draft: %v", err)), nil
		}
		d.LinkURL = req.GetString("link", "")

		post := storage.QueuedPost{
			ID:      uuid.New().String(),
			Message: d.Message,
			LinkURL: d.LinkURL,
		}
		if err := deps.Store.EnqueuePost(post); err != nil {
			return mcpError(fmt.Sprintf("enqueueing post: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("queued draft %s", post.ID)), nil
	}
}

func handleListQueueTool(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := req.GetString("status", "")
		switch status {
		case "", storage.StatusDraft, storage.StatusApproved, storage.StatusPublished:
		default:
			return mcpError(fmt.Sprintf("unknown status %q", status)), nil
		}

		posts, err := deps.Store.ListQueue(status)
		if err != nil {
			return mcpError(fmt.Sprintf("listing queue: %v", err)), nil
		}

		out := make([]queuedPostJSON, 0, len(posts))
		for _, p := range posts {
			out = append(out, toQueuedPostJSON(p))
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("encoding queue: %v", err)), nil
		}
		return mcpText(string(data)), nil
	}
}

func handleRespondTool(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		opts := responder.Options{
			DryRun:      req.GetBool("dry_run", false),
			MaxReplies:  req.GetInt("max_replies", 0),
			PostsToScan: req.GetInt("posts_to_scan", 0),
		}

		sum, err := deps.Respond(ctx, opts)
		if err != nil {
			return mcpError(fmt.Sprintf("respond run failed: %v", err)), nil
		}

		if opts.DryRun {
			return mcpText(fmt.Sprintf("dry run: would reply to %d comment(s)", sum.RepliedCount)), nil
		}
		return mcpText(fmt.Sprintf("replied to %d comment(s)", sum.RepliedCount)), nil
	}
}

func handleInteractionsTool(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			return mcpError("limit must be positive"), nil
		}

		entries, err := deps.Interactions.Recent(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("reading interactions: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcpText("no interactions logged yet"), nil
		}

		var out string
		for _, e := range entries {
			out += fmt.Sprintf("[%s] %s on post %s: %q -> %q\n",
				e.Timestamp.Format(time.RFC3339), e.CommentFrom, e.PostID, e.CommentText, e.Reply)
		}
		return mcpText(out), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
		IsError: true,
	}
}
