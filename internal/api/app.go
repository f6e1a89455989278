// Package api exposes the management surface: a localhost HTTP API for the
// queue and the responder, and an MCP tool server for agent integrations.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/merezhko/pagebot/internal/draft"
	"github.com/merezhko/pagebot/internal/interlog"
	"github.com/merezhko/pagebot/internal/responder"
	"github.com/merezhko/pagebot/internal/storage"
)

const maxBodySize = 1 << 20 // 1MB

// RespondFunc runs one responder pass. Injected so handlers stay testable
// without a remote service.
type RespondFunc func(ctx context.Context, opts responder.Options) (responder.Summary, error)

// InteractionReader lists recent interaction-log entries.
type InteractionReader interface {
	Recent(limit int) ([]interlog.Entry, error)
}

type AppDeps struct {
	Store        *storage.Store
	Respond      RespondFunc
	Interactions InteractionReader
	Token        string
	HTTPClient   *http.Client // used for URL drafts
}

// NewAppHandler builds the management router. /health is open; everything
// else sits behind bearer auth.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/queue", handleListQueue(deps))
		r.Post("/queue", handleQueuePost(deps))
		r.Post("/queue/{id}/approve", handleApprovePost(deps))
		r.Delete("/queue/{id}", handleDeletePost(deps))
		r.Post("/respond", handleRespond(deps))
		r.Get("/interactions", handleListInteractions(deps))
	})

	return r
}

// QueuePostRequest enqueues a draft from literal text or a URL.
type QueuePostRequest struct {
	Message string `json:"message"`
	URL     string `json:"url"`
	LinkURL string `json:"link_url"`
}

func handleQueuePost(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req QueuePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of message or url is required")
			return
		}

		var d draft.Draft
		var err error
		if req.Message != "" {
			d, err = draft.FromText(req.Message)
			d.LinkURL = req.LinkURL
		} else {
			d, err = draft.FromURL(r.Context(), deps.HTTPClient, req.URL)
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "building draft: %v", err)
			return
		}

		post := storage.QueuedPost{
			ID:      uuid.New().String(),
			Message: d.Message,
			LinkURL: d.LinkURL,
		}
		if err := deps.Store.EnqueuePost(post); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "enqueueing post: %v", err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"id": post.ID})
	}
}

func handleListQueue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		switch status {
		case "", storage.StatusDraft, storage.StatusApproved, storage.StatusPublished:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", status)
			return
		}

		posts, err := deps.Store.ListQueue(status)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing queue: %v", err)
			return
		}

		out := make([]queuedPostJSON, 0, len(posts))
		for _, p := range posts {
			out = append(out, toQueuedPostJSON(p))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleApprovePost(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Store.ApprovePost(id, time.Now()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "no post %s", id)
				return
			}
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": storage.StatusApproved})
	}
}

func handleDeletePost(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Store.DeletePost(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "no post %s", id)
				return
			}
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RespondRequest triggers one responder pass.
type RespondRequest struct {
	DryRun      bool `json:"dry_run"`
	MaxReplies  int  `json:"max_replies"`
	PostsToScan int  `json:"posts_to_scan"`
}

func handleRespond(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		// An empty body means "run with defaults".
		var req RespondRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		sum, err := deps.Respond(r.Context(), responder.Options{
			DryRun:      req.DryRun,
			MaxReplies:  req.MaxReplies,
			PostsToScan: req.PostsToScan,
		})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "respond run failed: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":       sum.Success,
			"replied_count": sum.RepliedCount,
			"dry_run":       req.DryRun,
		})
	}
}

func handleListInteractions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			limit = n
		}

		entries, err := deps.Interactions.Recent(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading interactions: %v", err)
			return
		}
		if entries == nil {
			entries = []interlog.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

type queuedPostJSON struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	LinkURL      string `json:"link_url,omitempty"`
	Status       string `json:"status"`
	Position     int64  `json:"position"`
	CreatedAt    string `json:"created_at"`
	PublishedAt  string `json:"published_at,omitempty"`
	RemotePostID string `json:"remote_post_id,omitempty"`
}

func toQueuedPostJSON(p storage.QueuedPost) queuedPostJSON {
	out := queuedPostJSON{
		ID:        p.ID,
		Message:   p.Message,
		LinkURL:   p.LinkURL,
		Status:    p.Status,
		Position:  p.Position,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if !p.PublishedAt.IsZero() {
		out.PublishedAt = p.PublishedAt.Format(time.RFC3339)
		out.RemotePostID = p.RemotePostID
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
