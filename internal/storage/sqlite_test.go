package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, s *Store, message string) QueuedPost {
	t.Helper()
	p := QueuedPost{
		ID:      uuid.New().String(),
		Message: message,
	}
	if err := s.EnqueuePost(p); err != nil {
		t.Fatalf("EnqueuePost: %v", err)
	}
	got, err := s.GetPost(p.ID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	return got
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// no migration is re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestEnqueueAssignsAscendingPositions(t *testing.T) {
	s := openTestStore(t)

	first := enqueue(t, s, "first")
	second := enqueue(t, s, "second")

	if second.Position <= first.Position {
		t.Errorf("positions not ascending: %d then %d", first.Position, second.Position)
	}
	if first.Status != StatusDraft {
		t.Errorf("status = %q, want draft", first.Status)
	}
	if first.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestListQueueOrderAndFilter(t *testing.T) {
	s := openTestStore(t)

	a := enqueue(t, s, "a")
	b := enqueue(t, s, "b")
	enqueue(t, s, "c")

	if err := s.ApprovePost(a.ID, time.Now()); err != nil {
		t.Fatalf("ApprovePost: %v", err)
	}
	if err := s.ApprovePost(b.ID, time.Now()); err != nil {
		t.Fatalf("ApprovePost: %v", err)
	}

	all, err := s.ListQueue("")
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d posts, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Position <= all[i-1].Position {
			t.Error("queue not in position order")
		}
	}

	approved, err := s.ListQueue(StatusApproved)
	if err != nil {
		t.Fatal(err)
	}
	if len(approved) != 2 {
		t.Errorf("got %d approved, want 2", len(approved))
	}
}

func TestApproveRejectsNonDraft(t *testing.T) {
	s := openTestStore(t)
	p := enqueue(t, s, "post")

	if err := s.ApprovePost(p.ID, time.Now()); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if err := s.ApprovePost(p.ID, time.Now()); err == nil {
		t.Error("second approve should fail")
	}
}

func TestNextApprovedIsLowestPosition(t *testing.T) {
	s := openTestStore(t)

	a := enqueue(t, s, "a")
	b := enqueue(t, s, "b")
	// Approve out of order; publish order must still follow position.
	if err := s.ApprovePost(b.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.ApprovePost(a.ID, time.Now()); err != nil {
		t.Fatal(err)
	}

	next, err := s.NextApproved()
	if err != nil {
		t.Fatalf("NextApproved: %v", err)
	}
	if next == nil || next.ID != a.ID {
		t.Errorf("NextApproved = %+v, want post a", next)
	}
}

func TestNextApprovedEmpty(t *testing.T) {
	s := openTestStore(t)
	enqueue(t, s, "draft only")

	next, err := s.NextApproved()
	if err != nil {
		t.Fatalf("NextApproved: %v", err)
	}
	if next != nil {
		t.Errorf("NextApproved = %+v, want nil", next)
	}
}

func TestMarkPublished(t *testing.T) {
	s := openTestStore(t)
	p := enqueue(t, s, "post")
	if err := s.ApprovePost(p.ID, time.Now()); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	if err := s.MarkPublished(p.ID, "page_123", at); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}

	got, err := s.GetPost(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPublished || got.RemotePostID != "page_123" {
		t.Errorf("post = %+v", got)
	}
	if !got.PublishedAt.Equal(at) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, at)
	}

	if err := s.MarkPublished(p.ID, "again", at); err == nil {
		t.Error("publishing twice should fail")
	}
}

func TestDeletePost(t *testing.T) {
	s := openTestStore(t)
	p := enqueue(t, s, "post")

	if err := s.DeletePost(p.ID); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	if _, err := s.GetPost(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeletePublishedRefused(t *testing.T) {
	s := openTestStore(t)
	p := enqueue(t, s, "post")
	s.ApprovePost(p.ID, time.Now())
	s.MarkPublished(p.ID, "r1", time.Now())

	if err := s.DeletePost(p.ID); err == nil {
		t.Error("deleting a published post should fail")
	}
}

func TestCountByStatus(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		enqueue(t, s, fmt.Sprintf("draft %d", i))
	}
	a := enqueue(t, s, "to approve")
	s.ApprovePost(a.ID, time.Now())

	counts, err := s.CountByStatus()
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusDraft] != 3 || counts[StatusApproved] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestGetPostNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetPost("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
