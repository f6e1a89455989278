package dedup

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestBoundedSet_AddAndHas(t *testing.T) {
	s := NewBoundedSet(10)
	if s.Has("a") {
		t.Error("empty set should not contain a")
	}
	if !s.Add("a") {
		t.Error("first Add should return true")
	}
	if s.Add("a") {
		t.Error("duplicate Add should return false")
	}
	if !s.Has("a") {
		t.Error("set should contain a after Add")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestBoundedSet_EvictsOldestFirst(t *testing.T) {
	s := NewBoundedSet(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.Add(id)
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	for _, gone := range []string{"a", "b"} {
		if s.Has(gone) {
			t.Errorf("%q should have been evicted", gone)
		}
	}
	want := []string{"c", "d", "e"}
	got := s.IDs()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("IDs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBoundedSet_InsertionOrderPreserved(t *testing.T) {
	s := NewBoundedSet(0)
	for i := 0; i < 5; i++ {
		s.Add(fmt.Sprintf("id-%d", i))
	}
	ids := s.IDs()
	for i, id := range ids {
		if id != fmt.Sprintf("id-%d", i) {
			t.Fatalf("IDs[%d] = %q, order not preserved", i, id)
		}
	}
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "replied.json"), 0)
	set := store.Load()
	if set.Len() != 0 {
		t.Errorf("Len = %d, want 0 for missing file", set.Len())
	}
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replied.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	set := NewFileStore(path, 0).Load()
	if set.Len() != 0 {
		t.Errorf("Len = %d, want 0 for corrupt file", set.Len())
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replied.json")
	store := NewFileStore(path, 0)

	set := NewBoundedSet(0)
	set.Add("c1")
	set.Add("c2")
	if err := store.Save(set); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := store.Load()
	if loaded.Len() != 2 || !loaded.Has("c1") || !loaded.Has("c2") {
		t.Errorf("loaded set = %v", loaded.IDs())
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replied.json")
	store := NewFileStore(path, 0)

	first := NewBoundedSet(0)
	first.Add("old")
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}

	second := NewBoundedSet(0)
	second.Add("new")
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	loaded := store.Load()
	if loaded.Has("old") {
		t.Error("old entry survived an overwriting save")
	}
	if !loaded.Has("new") {
		t.Error("new entry missing after save")
	}
}

func TestFileStore_BoundAtCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replied.json")
	store := NewFileStore(path, 1000)

	set := NewBoundedSet(1000)
	for i := 0; i < 1200; i++ {
		set.Add(fmt.Sprintf("c%d", i))
	}
	if err := store.Save(set); err != nil {
		t.Fatal(err)
	}

	loaded := store.Load()
	if loaded.Len() != 1000 {
		t.Fatalf("Len = %d, want 1000", loaded.Len())
	}
	// The most recently added 1000 survive: c200..c1199.
	if loaded.Has("c199") {
		t.Error("c199 should have been evicted")
	}
	if !loaded.Has("c200") || !loaded.Has("c1199") {
		t.Error("newest entries missing")
	}
}

func TestFileStore_LoadTruncatesOversizedLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replied.json")

	// Write an oversized array directly, as an older build might have.
	var ids []string
	for i := 0; i < 1050; i++ {
		ids = append(ids, fmt.Sprintf("c%d", i))
	}
	data := "["
	for i, id := range ids {
		if i > 0 {
			data += ","
		}
		data += fmt.Sprintf("%q", id)
	}
	data += "]"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded := NewFileStore(path, 1000).Load()
	if loaded.Len() != 1000 {
		t.Fatalf("Len = %d, want 1000", loaded.Len())
	}
	if loaded.Has("c49") {
		t.Error("oldest legacy entries should be dropped")
	}
	if !loaded.Has("c1049") {
		t.Error("newest legacy entry should be kept")
	}
}
