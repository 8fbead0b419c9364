package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

type fakeStore struct {
	courses map[string]*vectorstore.Course
	chunks  []vectorstore.Chunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{courses: make(map[string]*vectorstore.Course)}
}

func (f *fakeStore) AddCourse(_ context.Context, c *vectorstore.Course) error {
	f.courses[c.Title] = c
	return nil
}

func (f *fakeStore) AddChunks(_ context.Context, chunks []vectorstore.Chunk) error {
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeStore) HasCourse(_ context.Context, title string) (bool, error) {
	_, ok := f.courses[title]
	return ok, nil
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestIngestFile(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "course.txt", sampleCourseText)

	store := newFakeStore()
	in := New(store, NewChunker(800, 100), nil)

	stats, err := in.IngestFile(context.Background(), path, false)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if stats.Courses != 1 {
		t.Errorf("courses = %d, want 1", stats.Courses)
	}
	if len(store.chunks) == 0 {
		t.Fatal("no chunks stored")
	}
	if _, ok := store.courses["Building Toward Computer Use"]; !ok {
		t.Error("course metadata not stored")
	}
}

func TestIngestFile_SkipsExisting(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "course.txt", sampleCourseText)

	store := newFakeStore()
	in := New(store, nil, nil)

	if _, err := in.IngestFile(context.Background(), path, false); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	before := len(store.chunks)

	stats, err := in.IngestFile(context.Background(), path, false)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if stats.Skipped != 1 || stats.Courses != 0 {
		t.Errorf("stats = %+v, want skip", stats)
	}
	if len(store.chunks) != before {
		t.Error("chunks added for skipped course")
	}

	// force re-ingests
	stats, err = in.IngestFile(context.Background(), path, true)
	if err != nil {
		t.Fatalf("forced ingest: %v", err)
	}
	if stats.Courses != 1 {
		t.Errorf("forced stats = %+v", stats)
	}
}

func TestIngestDir(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", sampleCourseText)
	writeDoc(t, dir, "b.md", sampleCourseMarkdown)
	writeDoc(t, dir, "notes.json", "{}")
	writeDoc(t, dir, "broken.txt", "no header at all\n")

	store := newFakeStore()
	in := New(store, nil, nil)

	stats, err := in.IngestDir(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}
	// a.txt and b.md describe the same course title; the second is skipped.
	// broken.txt fails to parse and counts as skipped.
	if stats.Courses != 1 {
		t.Errorf("courses = %d, want 1", stats.Courses)
	}
	if stats.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", stats.Skipped)
	}
}
