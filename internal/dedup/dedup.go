// Package dedup persists the set of comment ids already handled across
// runs. The set is a conservative cache: membership means "never reply
// again", absence means "re-check remotely". It is loaded once and saved
// once per run; no concurrent writers are assumed.
package dedup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultCapacity bounds the persisted set to the most recent entries.
const DefaultCapacity = 1000

// BoundedSet is an insertion-ordered string set with a fixed capacity.
// When full, adding a new id evicts the earliest addition.
type BoundedSet struct {
	capacity int
	ids      []string // insertion order, oldest first
	index    map[string]struct{}
}

// NewBoundedSet creates an empty set. capacity <= 0 uses DefaultCapacity.
func NewBoundedSet(capacity int) *BoundedSet {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BoundedSet{
		capacity: capacity,
		index:    make(map[string]struct{}),
	}
}

// Has reports whether id is in the set.
func (s *BoundedSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Add inserts id, evicting the oldest entry if the set is at capacity.
// Returns false if id was already present.
func (s *BoundedSet) Add(id string) bool {
	if s.Has(id) {
		return false
	}
	if len(s.ids) >= s.capacity {
		s.evictOldest()
	}
	s.ids = append(s.ids, id)
	s.index[id] = struct{}{}
	return true
}

// evictOldest drops the earliest-added entry. Retention policy: the most
// recently added ids survive.
func (s *BoundedSet) evictOldest() {
	if len(s.ids) == 0 {
		return
	}
	oldest := s.ids[0]
	s.ids = s.ids[1:]
	delete(s.index, oldest)
}

// Len returns the number of ids in the set.
func (s *BoundedSet) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the ids in insertion order, oldest first.
func (s *BoundedSet) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// FileStore persists a BoundedSet as a JSON array of ids.
type FileStore struct {
	path     string
	capacity int
}

// NewFileStore creates a store writing to path. capacity <= 0 uses
// DefaultCapacity.
func NewFileStore(path string, capacity int) *FileStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FileStore{path: path, capacity: capacity}
}

// Load reads the persisted set. Missing or corrupt state is non-fatal and
// yields an empty set: nothing replied yet, the remote re-check is the
// backstop. If a legacy file holds more ids than the capacity, the newest
// ones (end of the array) are kept.
func (f *FileStore) Load() *BoundedSet {
	set := NewBoundedSet(f.capacity)

	data, err := os.ReadFile(f.path)
	if err != nil {
		return set
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return set
	}

	if len(ids) > f.capacity {
		ids = ids[len(ids)-f.capacity:]
	}
	for _, id := range ids {
		set.Add(id)
	}
	return set
}

// Save overwrites the persisted state with the set's ids, oldest first.
// The write goes through a temp file and rename so a crash never leaves a
// truncated file behind.
func (f *FileStore) Save(set *BoundedSet) error {
	data, err := json.Marshal(set.IDs())
	if err != nil {
		return fmt.Errorf("encoding dedup set: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating dedup dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".replied-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing dedup set: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing dedup file: %w", err)
	}
	return nil
}
