package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestMetadataDBRoundTrip verifies save, upsert, get and newest-first listing.
func TestMetadataDBRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := NewMetadataDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewMetadataDB() error = %v", err)
	}
	defer db.Close()

	older := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	if err := db.SaveTranscript(ctx, Record{TaskID: "a", Title: "first", SourceType: "url", Format: "txt", LocalPath: "/a.txt", CreatedAt: older}); err != nil {
		t.Fatalf("SaveTranscript(a) error = %v", err)
	}
	if err := db.SaveTranscript(ctx, Record{TaskID: "b", Title: "second", SourceType: "file", Format: "srt", LocalPath: "/b.srt", WordCount: 12, CreatedAt: newer}); err != nil {
		t.Fatalf("SaveTranscript(b) error = %v", err)
	}
	if err := db.SaveTranscript(ctx, Record{TaskID: "a", Title: "first again", SourceType: "url", Format: "txt", LocalPath: "/a2.txt", CreatedAt: older}); err != nil {
		t.Fatalf("SaveTranscript(a) upsert error = %v", err)
	}

	rec, err := db.GetTranscript(ctx, "a")
	if err != nil {
		t.Fatalf("GetTranscript() error = %v", err)
	}
	if rec.Title != "first again" || rec.LocalPath != "/a2.txt" || !rec.CreatedAt.Equal(older) {
		t.Fatalf("record = %+v", rec)
	}

	list, err := db.ListTranscripts(ctx, 10)
	if err != nil {
		t.Fatalf("ListTranscripts() error = %v", err)
	}
	if len(list) != 2 || list[0].TaskID != "b" || list[0].WordCount != 12 {
		t.Fatalf("list = %+v", list)
	}

	if _, err := db.GetTranscript(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing error = %v, want ErrNotFound", err)
	}

	n, err := db.DeleteByLocalPath(ctx, "/b.srt")
	if err != nil || n != 1 {
		t.Fatalf("DeleteByLocalPath() = %d, %v; want 1, nil", n, err)
	}
	if _, err := db.GetTranscript(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted record error = %v, want ErrNotFound", err)
	}
}

// TestSaveArtifactDatedLayout verifies the dated directory and sidecar.
func TestSaveArtifactDatedLayout(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)
	ls.now = func() time.Time { return time.Date(2025, 1, 23, 14, 30, 22, 0, time.Local) }

	path, err := ls.SaveArtifact(`my: "talk"/part 1`, "srt", strings.NewReader("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), map[string]string{"task_id": "t-1"})
	if err != nil {
		t.Fatalf("SaveArtifact() error = %v", err)
	}

	want := filepath.Join(dir, "2025", "01", "23", `20250123_143022_my_ _talk__part 1.srt`)
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "hi") {
		t.Fatalf("artifact = %q, %v", data, err)
	}
	meta, err := os.ReadFile(strings.TrimSuffix(path, ".srt") + "_meta.json")
	if err != nil || !strings.Contains(string(meta), `"task_id": "t-1"`) {
		t.Fatalf("meta = %q, %v", meta, err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                      "untitled",
		"  ..  ":                "untitled",
		"a/b\\c":                "a_b_c",
		"tab\there":             "tabhere",
		strings.Repeat("я", 150): strings.Repeat("я", maxNameLength),
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFolderQueryEscapes(t *testing.T) {
	got := folderQuery("Bob's", "p1")
	want := `name='Bob\'s' and mimeType='application/vnd.google-apps.folder' and trashed=false and 'p1' in parents`
	if got != want {
		t.Fatalf("folderQuery() = %q", got)
	}
}

// TestMemoryStoreTTL verifies records expire after the TTL.
func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryStore(time.Hour)
	m.now = func() time.Time { return now }

	if err := m.SaveSession(ctx, SessionRecord{ID: "s1", TaskID: "t-1"}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	rec, err := m.LoadSession(ctx, "s1")
	if err != nil || rec.TaskID != "t-1" {
		t.Fatalf("LoadSession() = %+v, %v", rec, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := m.LoadSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired error = %v, want ErrNotFound", err)
	}

	m.SaveSession(ctx, SessionRecord{ID: "s2"})
	m.DeleteSession(ctx, "s2")
	if _, err := m.LoadSession(ctx, "s2"); !errors.Is(err, ErrNotFound) {
		t.Fatal("deleted session still present")
	}
}
