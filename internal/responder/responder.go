// Package responder is the comment auto-responder: it scans a page's
// recent posts for unanswered comments, generates contextual replies, and
// posts them, keeping a persisted dedup set so repeated runs never reply
// to the same comment twice.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/merezhko/pagebot/internal/dedup"
	"github.com/merezhko/pagebot/internal/graph"
	"github.com/merezhko/pagebot/internal/interlog"
)

const (
	// DefaultMaxReplies is the run-wide reply budget.
	DefaultMaxReplies = 10
	// DefaultPostsToScan bounds how many recent posts are examined.
	DefaultPostsToScan = 5
	// commentsPerPost bounds the comment listing per post.
	commentsPerPost = 25
)

// SocialClient is the remote service seam, satisfied by *graph.Client.
type SocialClient interface {
	ResolvePage(ctx context.Context) (graph.Page, error)
	ListPosts(ctx context.Context, page graph.Page, limit int) ([]graph.Post, error)
	ListComments(ctx context.Context, page graph.Page, postID string, limit int) ([]graph.Comment, error)
	HasPageReplied(ctx context.Context, page graph.Page, commentID string) (bool, error)
	ReplyToComment(ctx context.Context, page graph.Page, commentID, text string) (string, error)
}

// Generator produces reply text, satisfied by the replygen generators.
type Generator interface {
	Generate(ctx context.Context, comment graph.Comment, postMessage string) (string, error)
}

// DedupStore persists the set of handled comment ids between runs.
type DedupStore interface {
	Load() *dedup.BoundedSet
	Save(*dedup.BoundedSet) error
}

// InteractionLog records one entry per posted reply.
type InteractionLog interface {
	Append(interlog.Entry) error
}

// Options controls a single respond run.
type Options struct {
	// DryRun walks the full decision path but posts nothing and leaves
	// all persisted state untouched.
	DryRun bool
	// MaxReplies is the hard run-wide reply ceiling. <= 0 uses the default.
	MaxReplies int
	// PostsToScan is how many recent posts to examine. <= 0 uses the default.
	PostsToScan int
}

func (o Options) withDefaults() Options {
	if o.MaxReplies <= 0 {
		o.MaxReplies = DefaultMaxReplies
	}
	if o.PostsToScan <= 0 {
		o.PostsToScan = DefaultPostsToScan
	}
	return o
}

// Summary is the aggregate result of one run. In a dry run RepliedCount
// counts the comments that would have been replied to.
type Summary struct {
	Success      bool
	RepliedCount int
}

// Responder orchestrates one scan-and-reply pass. All collaborators are
// injected; the responder holds no global state.
type Responder struct {
	client     SocialClient
	generator  Generator
	dedupStore DedupStore
	log        InteractionLog
	replyDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Responder. replyDelay is the fixed pause after each posted
// reply; zero disables it.
func New(client SocialClient, generator Generator, store DedupStore, log InteractionLog, replyDelay time.Duration) *Responder {
	return &Responder{
		client:     client,
		generator:  generator,
		dedupStore: store,
		log:        log,
		replyDelay: replyDelay,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// Respond runs one pass: resolve the page, scan its recent posts, reply to
// unanswered comments until the budget is exhausted, then persist the dedup
// set exactly once. Processing is strictly sequential, posts then comments,
// in remote-returned order; the remote call ordering (check reply, then
// post) is what keeps re-runs duplicate-free, so no fan-out.
//
// Page resolution and the post listing fail the whole run; everything past
// that degrades per item.
func (r *Responder) Respond(ctx context.Context, opts Options) (Summary, error) {
	opts = opts.withDefaults()

	page, err := r.client.ResolvePage(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("resolving page: %w", err)
	}
	r.logger.Info("responding as page", "page", page.Name, "page_id", page.ID, "dry_run", opts.DryRun)

	posts, err := r.client.ListPosts(ctx, page, opts.PostsToScan)
	if err != nil {
		return Summary{}, fmt.Errorf("listing recent posts: %w", err)
	}

	set := r.dedupStore.Load()
	replied := 0

	for _, post := range posts {
		if replied >= opts.MaxReplies {
			break
		}

		comments, err := r.client.ListComments(ctx, page, post.ID, commentsPerPost)
		if err != nil {
			// One post's comment listing is best-effort; scan the rest.
			r.logger.Warn("skipping post, comment listing failed", "post_id", post.ID, "error", err)
			continue
		}
		if len(comments) == 0 {
			continue
		}

		for _, comment := range comments {
			if replied >= opts.MaxReplies {
				break
			}
			if set.Has(comment.ID) {
				// Local cache is trusted for skip decisions.
				continue
			}

			if r.alreadyReplied(ctx, page, comment.ID) {
				// Heal the local cache so the next run skips without a
				// remote round trip. Never persisted on dry runs.
				set.Add(comment.ID)
				continue
			}

			text, err := r.generator.Generate(ctx, comment, post.Message)
			if err != nil {
				r.logger.Warn("reply generation failed",
					"post_id", post.ID, "comment_id", comment.ID,
					"comment", excerpt(comment.Message), "error", err)
				continue
			}

			if opts.DryRun {
				r.logger.Info("dry run: would reply",
					"post_id", post.ID, "comment_id", comment.ID,
					"from", comment.AuthorName, "reply", excerpt(text))
				replied++
				continue
			}

			if _, err := r.client.ReplyToComment(ctx, page, comment.ID, text); err != nil {
				// Non-fatal; the id stays out of the dedup set so the
				// next run retries this comment.
				r.logger.Warn("posting reply failed",
					"post_id", post.ID, "comment_id", comment.ID,
					"comment", excerpt(comment.Message), "error", err)
				continue
			}

			r.appendLogEntry(post, comment, text)
			set.Add(comment.ID)
			replied++
			r.logger.Info("replied to comment",
				"post_id", post.ID, "comment_id", comment.ID, "from", comment.AuthorName)

			if r.replyDelay > 0 {
				select {
				case <-time.After(r.replyDelay):
				case <-ctx.Done():
				}
			}
		}
	}

	if !opts.DryRun {
		// The set is advisory: a failed save just means extra remote
		// re-checks next run, so it does not fail the run.
		if err := r.dedupStore.Save(set); err != nil {
			r.logger.Error("saving dedup set failed", "error", err)
		}
	}

	return Summary{Success: true, RepliedCount: replied}, nil
}

// alreadyReplied is the live re-check against the remote service. A remote
// error is treated as "not yet replied": a flaky lookup here can produce a
// duplicate reply if posting then succeeds. Accepted risk; the local set
// heals on the next successful lookup.
func (r *Responder) alreadyReplied(ctx context.Context, page graph.Page, commentID string) bool {
	replied, err := r.client.HasPageReplied(ctx, page, commentID)
	if err != nil {
		r.logger.Warn("reply lookup failed, assuming not replied", "comment_id", commentID, "error", err)
		return false
	}
	return replied
}

func (r *Responder) appendLogEntry(post graph.Post, comment graph.Comment, reply string) {
	entry := interlog.Entry{
		ID:          uuid.New().String(),
		Timestamp:   r.now().UTC(),
		PostID:      post.ID,
		CommentFrom: comment.AuthorName,
		CommentText: comment.Message,
		Reply:       reply,
	}
	if err := r.log.Append(entry); err != nil {
		// The reply is already live; losing a log line must not stop the run.
		r.logger.Warn("interaction log append failed", "comment_id", comment.ID, "error", err)
	}
}

func excerpt(s string) string {
	const max = 80
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
