package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the post publishing queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "pagebot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// EnqueuePost appends a draft to the end of the queue.
func (s *Store) EnqueuePost(p QueuedPost) error {
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var maxPos sql.NullInt64
	if err := tx.QueryRow("SELECT MAX(position) FROM queued_posts").Scan(&maxPos); err != nil {
		return fmt.Errorf("finding queue tail: %w", err)
	}
	position := maxPos.Int64 + 1

	_, err = tx.Exec(`INSERT INTO queued_posts
		(id, message, link_url, status, position, created_at, approved_at, published_at, remote_post_id)
		VALUES (?, ?, ?, ?, ?, ?, '', '', '')`,
		p.ID, p.Message, p.LinkURL, p.Status, position, encodeTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting queued post: %w", err)
	}
	return tx.Commit()
}

const queuedPostCols = "id, message, link_url, status, position, created_at, approved_at, published_at, remote_post_id"

// ListQueue returns queued posts in position order. An empty status lists
// everything; otherwise only posts with that status.
func (s *Store) ListQueue(status string) ([]QueuedPost, error) {
	query := "SELECT " + queuedPostCols + " FROM queued_posts"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY position"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing queue: %w", err)
	}
	defer rows.Close()

	var posts []QueuedPost
	for rows.Next() {
		p, err := scanQueuedPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// GetPost returns a queued post by id, or ErrNotFound.
func (s *Store) GetPost(id string) (QueuedPost, error) {
	row := s.db.QueryRow("SELECT "+queuedPostCols+" FROM queued_posts WHERE id = ?", id)
	p, err := scanQueuedPost(row)
	if err == sql.ErrNoRows {
		return QueuedPost{}, ErrNotFound
	}
	if err != nil {
		return QueuedPost{}, fmt.Errorf("loading post %s: %w", id, err)
	}
	return p, nil
}

// ApprovePost moves a draft to approved. Approving a non-draft is an error.
func (s *Store) ApprovePost(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE queued_posts SET status = ?, approved_at = ?
		WHERE id = ? AND status = ?`,
		StatusApproved, encodeTime(at.UTC()), id, StatusDraft)
	if err != nil {
		return fmt.Errorf("approving post %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		p, getErr := s.GetPost(id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("post %s is %s, only drafts can be approved", id, p.Status)
	}
	return nil
}

// DeletePost removes a draft or approved post from the queue. Published
// posts are kept as the publish record.
func (s *Store) DeletePost(id string) error {
	res, err := s.db.Exec("DELETE FROM queued_posts WHERE id = ? AND status != ?", id, StatusPublished)
	if err != nil {
		return fmt.Errorf("deleting post %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		p, getErr := s.GetPost(id)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("post %s is %s and cannot be removed", id, p.Status)
	}
	return nil
}

// NextApproved returns the approved post with the lowest position, or nil
// when the approved queue is empty.
func (s *Store) NextApproved() (*QueuedPost, error) {
	row := s.db.QueryRow("SELECT "+queuedPostCols+
		" FROM queued_posts WHERE status = ? ORDER BY position LIMIT 1", StatusApproved)
	p, err := scanQueuedPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding next approved post: %w", err)
	}
	return &p, nil
}

// MarkPublished records a successful publish.
func (s *Store) MarkPublished(id, remotePostID string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE queued_posts SET status = ?, published_at = ?, remote_post_id = ?
		WHERE id = ? AND status = ?`,
		StatusPublished, encodeTime(at.UTC()), remotePostID, id, StatusApproved)
	if err != nil {
		return fmt.Errorf("marking post %s published: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("post %s is not approved", id)
	}
	return nil
}

// CountByStatus returns queue sizes per status.
func (s *Store) CountByStatus() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM queued_posts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting queue: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueuedPost(row rowScanner) (QueuedPost, error) {
	var p QueuedPost
	var createdAt, approvedAt, publishedAt string
	err := row.Scan(&p.ID, &p.Message, &p.LinkURL, &p.Status, &p.Position,
		&createdAt, &approvedAt, &publishedAt, &p.RemotePostID)
	if err != nil {
		return QueuedPost{}, err
	}
	p.CreatedAt = decodeTime(createdAt)
	p.ApprovedAt = decodeTime(approvedAt)
	p.PublishedAt = decodeTime(publishedAt)
	return p, nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
