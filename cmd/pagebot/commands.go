package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/merezhko/pagebot/internal/config"
	"github.com/merezhko/pagebot/internal/dedup"
	"github.com/merezhko/pagebot/internal/draft"
	"github.com/merezhko/pagebot/internal/graph"
	"github.com/merezhko/pagebot/internal/interlog"
	"github.com/merezhko/pagebot/internal/ollama"
	"github.com/merezhko/pagebot/internal/publisher"
	"github.com/merezhko/pagebot/internal/replygen"
	"github.com/merezhko/pagebot/internal/responder"
	"github.com/merezhko/pagebot/internal/storage"
)

// --- shared wiring ---

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newGraphClient(cfg config.Config) *graph.Client {
	return graph.NewClient(cfg.Page.BaseURL, cfg.Page.AccessToken, cfg.Page.ID)
}

// newGenerator picks the reply backend. A configured model that is not
// actually available falls back to the static reply rather than failing
// the run.
func newGenerator(ctx context.Context, cfg config.Config) responder.Generator {
	if cfg.Ollama.Model == "" {
		return replygen.NewStaticGenerator("")
	}

	client := ollama.New(cfg.Ollama.BaseURL)
	if !client.IsRunning(ctx) {
		printWarning("Ollama not reachable at %s, using static replies", cfg.Ollama.BaseURL)
		return replygen.NewStaticGenerator("")
	}
	if !client.HasModel(ctx, cfg.Ollama.Model) {
		printWarning("model %s not available, using static replies", cfg.Ollama.Model)
		return replygen.NewStaticGenerator("")
	}
	return replygen.NewOllamaGenerator(client, cfg.Ollama.Model, "")
}

func newResponder(ctx context.Context, cfg config.Config) *responder.Responder {
	replyDelay, err := time.ParseDuration(cfg.Respond.ReplyDelay)
	if err != nil {
		printWarning("invalid respond.reply_delay %q, using 2s", cfg.Respond.ReplyDelay)
		replyDelay = 2 * time.Second
	}

	dedupStore := dedup.NewFileStore(
		filepath.Join(cfg.Storage.DataDir, "replied_comments.json"),
		dedup.DefaultCapacity,
	)
	ilog := interlog.New(filepath.Join(cfg.Storage.DataDir, "interactions"))

	return responder.New(newGraphClient(cfg), newGenerator(ctx, cfg), dedupStore, ilog, replyDelay)
}

// --- respond ---

var respondCmd = &cobra.Command{
	Use:   "respond",
	Short: "Reply to unanswered comments on recent posts",
	Long: `Scan the page's recent posts and reply to comments that have not
been answered yet.

Examples:
  pagebot respond
  pagebot respond --dry-run
  pagebot respond --limit 3 --posts 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		limit, _ := cmd.Flags().GetInt("limit")
		posts, _ := cmd.Flags().GetInt("posts")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if limit == 0 {
			limit = cfg.Respond.MaxReplies
		}
		if posts == 0 {
			posts = cfg.Respond.PostsToScan
		}

		ctx, stop := signalContext()
		defer stop()

		r := newResponder(ctx, cfg)
		sum, err := r.Respond(ctx, responder.Options{
			DryRun:      dryRun,
			MaxReplies:  limit,
			PostsToScan: posts,
		})
		if err != nil {
			return err
		}

		if dryRun {
			printSuccess("Dry run: would reply to %d comment(s)", sum.RepliedCount)
		} else {
			printSuccess("Replied to %d comment(s)", sum.RepliedCount)
		}
		return nil
	},
}

func init() {
	respondCmd.Flags().BoolP("dry-run", "d", false, "report what would be replied without posting")
	respondCmd.Flags().Int("limit", 0, "maximum replies for this run (default from config)")
	respondCmd.Flags().Int("posts", 0, "number of recent posts to scan (default from config)")
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the post queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a post draft to the queue",
	Long: `Add a post draft to the queue. Drafts need approval before publishing.

Examples:
  pagebot queue add --text "We are open this Saturday!"
  pagebot queue add --url https://example.com/article --link https://example.com/article
  pagebot queue add --file ./announcement.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		link, _ := cmd.Flags().GetString("link")

		if text == "" && url == "" && file == "" {
			return fmt.Errorf("one of --text, --url, or --file is required")
		}

		ctx, stop := signalContext()
		defer stop()

		var d draft.Draft
		var err error
		switch {
		case text != "":
			d, err = draft.FromText(text)
		case url != "":
			d, err = draft.FromURL(ctx, nil, url)
			if link == "" {
				link = url
			}
		case file != "":
			d, err = draft.FromFile(file)
		}
		if err != nil {
			return fmt.Errorf("building draft: %w", err)
		}
		d.LinkURL = link

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		post := storage.QueuedPost{
			ID:      uuid.New().String(),
			Message: d.Message,
			LinkURL: d.LinkURL,
		}
		if err := store.EnqueuePost(post); err != nil {
			return err
		}

		printSuccess("Queued draft %s", post.ID)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		posts, err := store.ListQueue(status)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, p := range posts {
			msg := p.Message
			if len(msg) > 80 {
				msg = msg[:80] + "..."
			}
			fmt.Printf("%s  %-9s  %s\n",
				colorize(colorCyan, p.ID[:8]),
				p.Status,
				msg,
			)
		}
		return nil
	},
}

var queueApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a draft for publishing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		id, err := resolveQueueID(store, args[0])
		if err != nil {
			return err
		}
		if err := store.ApprovePost(id, time.Now()); err != nil {
			return err
		}

		printSuccess("Approved %s", id)
		return nil
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a post from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		id, err := resolveQueueID(store, args[0])
		if err != nil {
			return err
		}
		if err := store.DeletePost(id); err != nil {
			return err
		}

		printSuccess("Removed %s", id)
		return nil
	},
}

// resolveQueueID accepts a full id or a unique prefix, matching what
// queue list prints.
func resolveQueueID(store *storage.Store, arg string) (string, error) {
	if _, err := store.GetPost(arg); err == nil {
		return arg, nil
	}

	posts, err := store.ListQueue("")
	if err != nil {
		return "", err
	}
	var match string
	for _, p := range posts {
		if len(p.ID) >= len(arg) && p.ID[:len(arg)] == arg {
			if match != "" {
				return "", fmt.Errorf("ambiguous id prefix %q", arg)
			}
			match = p.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no queued post matching %q", arg)
	}
	return match, nil
}

func init() {
	queueAddCmd.Flags().String("text", "", "post text")
	queueAddCmd.Flags().String("url", "", "URL to fetch a draft from")
	queueAddCmd.Flags().String("file", "", "file to build a draft from")
	queueAddCmd.Flags().String("link", "", "link to attach to the post")
	queueListCmd.Flags().String("status", "", "filter by status: draft, approved or published")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueApproveCmd)
	queueCmd.AddCommand(queueRemoveCmd)
}

// --- publish ---

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish approved posts in queue order",
	RunE: func(cmd *cobra.Command, args []string) error {
		max, _ := cmd.Flags().GetInt("max")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		delay, err := time.ParseDuration(cfg.Publish.Delay)
		if err != nil {
			printWarning("invalid publish.delay %q, using 5s", cfg.Publish.Delay)
			delay = 5 * time.Second
		}

		pub := publisher.New(store, newGraphClient(cfg), delay)

		if dryRun {
			pending, err := pub.Pending()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("Nothing approved to publish.")
				return nil
			}
			for _, p := range pending {
				msg := p.Message
				if len(msg) > 80 {
					msg = msg[:80] + "..."
				}
				fmt.Printf("%s  %s\n", colorize(colorCyan, p.ID[:8]), msg)
			}
			printSuccess("Dry run: %d post(s) would publish", len(pending))
			return nil
		}

		ctx, stop := signalContext()
		defer stop()

		sum, err := pub.PublishApproved(ctx, max)
		if err != nil {
			if sum.PublishedCount > 0 {
				printWarning("published %d post(s) before failing", sum.PublishedCount)
			}
			return err
		}

		printSuccess("Published %d post(s), %d remaining", sum.PublishedCount, sum.Remaining)
		return nil
	},
}

func init() {
	publishCmd.Flags().Int("max", 0, "maximum posts to publish (0 means all approved)")
	publishCmd.Flags().Bool("dry-run", false, "list what would publish without posting")
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Inspect the comment reply log",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent comment replies",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ilog := interlog.New(filepath.Join(cfg.Storage.DataDir, "interactions"))
		entries, err := ilog.Recent(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No interactions logged yet.")
			return nil
		}

		for _, e := range entries {
			comment := e.CommentText
			if len(comment) > 60 {
				comment = comment[:60] + "..."
			}
			fmt.Printf("%s  %s  %s: %q\n",
				e.Timestamp.Format("2006-01-02 15:04"),
				colorize(colorCyan, e.PostID),
				e.CommentFrom,
				comment,
			)
			fmt.Printf("    %s %s\n", colorize(colorBold, "reply:"), e.Reply)
		}
		return nil
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum entries to list")
	interactionsCmd.AddCommand(interactionsListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
