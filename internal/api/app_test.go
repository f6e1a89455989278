package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/merezhko/pagebot/internal/interlog"
	"github.com/merezhko/pagebot/internal/responder"
	"github.com/merezhko/pagebot/internal/storage"
)

const testToken = "test-token"

type stubInteractions struct {
	entries []interlog.Entry
	err     error
}

func (s *stubInteractions) Recent(limit int) ([]interlog.Entry, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.entries) {
		return s.entries[:limit], nil
	}
	return s.entries, nil
}

func testDeps(t *testing.T) (AppDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	deps := AppDeps{
		Store: store,
		Respond: func(ctx context.Context, opts responder.Options) (responder.Summary, error) {
			return responder.Summary{Success: true, RepliedCount: 3}, nil
		},
		Interactions: &stubInteractions{},
		Token:        testToken,
	}
	return deps, store
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsOpen(t *testing.T) {
	deps, _ := testDeps(t)
	h := NewAppHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without auth, got %d", rec.Code)
	}
}

func TestQueueRequiresAuth(t *testing.T) {
	deps, _ := testDeps(t)
	h := NewAppHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/queue", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestQueuePostAndList(t *testing.T) {
	deps, _ := testDeps(t)
	h := NewAppHandler(deps)

	rec := doRequest(t, h, http.MethodPost, "/queue", `{"message":"Hello page","link_url":"https://example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created["id"] == "" {
		t.Fatal("expected an id in the response")
	}

	rec = doRequest(t, h, http.MethodGet, "/queue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var posts []queuedPostJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &posts); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 queued post, got %d", len(posts))
	}
	if posts[0].Message != "Hello page" || posts[0].Status != storage.StatusDraft {
		t.Fatalf("unexpected post: %+v", posts[0])
	}
}

func TestQueuePostRejectsEmpty(t *testing.T) {
	deps, _ := testDeps(t)
	h := NewAppHandler(deps)

	rec := doRequest(t, h, http.MethodPost, "/queue", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListQueueRejectsUnknownStatus(t *testing.T) {
	deps, _ := testDeps(t)
	h := NewAppHandler(deps)

	rec := doRequest(t, h, http.MethodGet, "/queue?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestApproveAndDelete(t *testing.T) {
	deps, store := testDeps(t)
	h := NewAppHandler(deps)

	post := storage.QueuedPost{ID: "p1", Message: "draft"}
	if err := store.EnqueuePost(post); err != nil {
		t.Fatalf("enqueueing: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/queue/p1/approve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := store.GetPost("p1")
	if err != nil {
		t.Fatalf("getting post: %v", err)
	}
	if got.Status != storage.StatusApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}

	// A second approve hits the draft-only guard.
	rec = doRequest(t, h, http.MethodPost, "/queue/p1/approve", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double approve, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodDelete, "/queue/p1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, err := store.GetPost("p1"); err == nil {
		t.Fatal("expected post to be gone")
	}
}

func TestApproveMissingPost(t *testing.T) {
	deps, _ := testDeps(t)
	h := NewAppHandler(deps)

	rec := doRequest(t, h, http.MethodPost, "/queue/nope/approve", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRespondPassesOptions(t *testing.T) {
	deps, _ := testDeps(t)
	var got responder.Options
	deps.Respond = func(ctx context.Context, opts responder.Options) (responder.Summary, error) {
		got = opts
		return responder.Summary{Success: true, RepliedCount: 1}, nil
	}
	h := NewAppHandler(deps)

	rec := doRequest(t, h, http.MethodPost, "/respond", `{"dry_run":true,"max_replies":2,"posts_to_scan":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !got.DryRun || got.MaxReplies != 2 || got.PostsToScan != 1 {
		t.Fatalf("options not forwarded: %+v", got)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["replied_count"].(float64) != 1 {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestListInteractions(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Interactions = &stubInteractions{entries: []interlog.Entry{
		{ID: "i1", Timestamp: time.Now().UTC(), PostID: "p1", CommentFrom: "Ada", CommentText: "hi", Reply: "hello"},
		{ID: "i2", Timestamp: time.Now().UTC(), PostID: "p1", CommentFrom: "Bob", CommentText: "?", Reply: "!"},
	}}
	h := NewAppHandler(deps)

	rec := doRequest(t, h, http.MethodGet, "/interactions?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var entries []interlog.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decoding entries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "i1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestListInteractionsBadLimit(t *testing.T) {
	deps, _ := testDeps(t)
	h := NewAppHandler(deps)

	rec := doRequest(t, h, http.MethodGet, "/interactions?limit=zero", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
