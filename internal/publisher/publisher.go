// Package publisher drains the approved post queue to the page feed,
// strictly in queue order, one blocking request at a time with a fixed
// delay between publishes.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/merezhko/pagebot/internal/graph"
	"github.com/merezhko/pagebot/internal/storage"
)

// QueueStore is the queue seam, satisfied by *storage.Store.
type QueueStore interface {
	NextApproved() (*storage.QueuedPost, error)
	ListQueue(status string) ([]storage.QueuedPost, error)
	MarkPublished(id, remotePostID string, at time.Time) error
}

// PageClient is the remote publishing seam, satisfied by *graph.Client.
type PageClient interface {
	ResolvePage(ctx context.Context) (graph.Page, error)
	PublishPost(ctx context.Context, page graph.Page, message, linkURL string) (string, error)
}

// Summary is the result of one publishing pass.
type Summary struct {
	PublishedCount int
	// Remaining is how many approved posts are still queued after the pass.
	Remaining int
}

// Publisher publishes approved queue entries.
type Publisher struct {
	store  QueueStore
	client PageClient
	delay  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Publisher. delay is the fixed pause between publishes;
// zero disables it.
func New(store QueueStore, client PageClient, delay time.Duration) *Publisher {
	return &Publisher{
		store:  store,
		client: client,
		delay:  delay,
		logger: slog.Default(),
		now:    time.Now,
	}
}

// PublishApproved publishes up to max approved posts in position order.
// max <= 0 means "all approved". A publish failure stops the whole pass:
// the queue is a sequence, and publishing around a failed entry would
// reorder it.
func (p *Publisher) PublishApproved(ctx context.Context, max int) (Summary, error) {
	page, err := p.client.ResolvePage(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("resolving page: %w", err)
	}

	published := 0
	for max <= 0 || published < max {
		next, err := p.store.NextApproved()
		if err != nil {
			return Summary{PublishedCount: published}, fmt.Errorf("reading queue: %w", err)
		}
		if next == nil {
			break
		}

		remoteID, err := p.client.PublishPost(ctx, page, next.Message, next.LinkURL)
		if err != nil {
			p.logger.Warn("publish failed, stopping the sequence",
				"post_id", next.ID, "error", err)
			return Summary{PublishedCount: published, Remaining: p.countApproved()},
				fmt.Errorf("publishing post %s: %w", next.ID, err)
		}

		if err := p.store.MarkPublished(next.ID, remoteID, p.now().UTC()); err != nil {
			// The post is live but the queue row is stale; stop before
			// the same entry is published twice.
			return Summary{PublishedCount: published, Remaining: p.countApproved()},
				fmt.Errorf("recording publish of %s: %w", next.ID, err)
		}

		published++
		p.logger.Info("published post", "post_id", next.ID, "remote_id", remoteID)

		if p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				return Summary{PublishedCount: published, Remaining: p.countApproved()}, ctx.Err()
			}
		}
	}

	return Summary{PublishedCount: published, Remaining: p.countApproved()}, nil
}

// Pending returns the approved posts that a publish pass would send, in order.
func (p *Publisher) Pending() ([]storage.QueuedPost, error) {
	return p.store.ListQueue(storage.StatusApproved)
}

func (p *Publisher) countApproved() int {
	posts, err := p.store.ListQueue(storage.StatusApproved)
	if err != nil {
		return 0
	}
	return len(posts)
}
