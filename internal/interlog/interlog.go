// Package interlog is the append-only interaction log: one JSON line per
// successful reply, partitioned into one file per UTC calendar day. The
// responder only ever appends; reads exist for the CLI and API surfaces.
package interlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Entry records one posted reply.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	PostID      string    `json:"post_id"`
	CommentFrom string    `json:"comment_from"`
	CommentText string    `json:"comment_text"`
	Reply       string    `json:"reply"`
}

// Log writes day-partitioned JSONL files under dir.
type Log struct {
	dir string
}

// New creates a Log rooted at dir. The directory is created on first append.
func New(dir string) *Log {
	return &Log{dir: dir}
}

// Append writes one entry to the current UTC day's file.
func (l *Log) Append(e Entry) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating interaction log dir: %w", err)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding interaction entry: %w", err)
	}

	path := l.dayPath(e.Timestamp.UTC())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening interaction log %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending interaction entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first, walking day files
// backwards. Missing or partially corrupt files are skipped, never fatal;
// unreadable lines within a file are dropped.
func (l *Log) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "interactions-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing interaction logs: %w", err)
	}
	// Day-stamped names sort chronologically; newest file last.
	sort.Strings(files)

	var out []Entry
	for i := len(files) - 1; i >= 0 && len(out) < limit; i-- {
		entries := readDayFile(files[i])
		// Within a day, entries were appended oldest first.
		for j := len(entries) - 1; j >= 0 && len(out) < limit; j-- {
			out = append(out, entries[j])
		}
	}
	return out, nil
}

func readDayFile(path string) []Entry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func (l *Log) dayPath(t time.Time) string {
	return filepath.Join(l.dir, "interactions-"+t.Format("2006-01-02")+".jsonl")
}
