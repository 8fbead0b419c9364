package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

// CourseStore is the subset of the vector store the ingester needs.
type CourseStore interface {
	AddCourse(ctx context.Context, course *vectorstore.Course) error
	AddChunks(ctx context.Context, chunks []vectorstore.Chunk) error
	HasCourse(ctx context.Context, title string) (bool, error)
}

// Ingester loads course documents into the store.
type Ingester struct {
	store   CourseStore
	chunker *Chunker
	logger  *slog.Logger
}

// New creates an ingester.
func New(store CourseStore, chunker *Chunker, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if chunker == nil {
		chunker = NewChunker(0, -1)
	}
	return &Ingester{store: store, chunker: chunker, logger: logger.With("component", "ingest")}
}

// Stats summarizes an ingest run.
type Stats struct {
	Courses int `json:"courses"`
	Chunks  int `json:"chunks"`
	Skipped int `json:"skipped"`
}

// IngestFile parses and stores one course document. When force is false,
// a course that is already stored is skipped.
func (in *Ingester) IngestFile(ctx context.Context, path string, force bool) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var course *vectorstore.Course
	var sections []lessonSection
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		course, sections, err = parseCourseMarkdown(data)
	case ".txt":
		course, sections, err = parseCourseText(strings.NewReader(string(data)))
	default:
		return nil, fmt.Errorf("unsupported document type: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if !force {
		exists, err := in.store.HasCourse(ctx, course.Title)
		if err != nil {
			return nil, err
		}
		if exists {
			in.logger.Info("course already ingested, skipping",
				"course", course.Title, "file", filepath.Base(path))
			return &Stats{Skipped: 1}, nil
		}
	}

	if err := in.store.AddCourse(ctx, course); err != nil {
		return nil, fmt.Errorf("store course %q: %w", course.Title, err)
	}

	chunks := in.chunker.ChunkSections(course.Title, sections)
	if err := in.store.AddChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks for %q: %w", course.Title, err)
	}

	in.logger.Info("ingested course",
		"course", course.Title,
		"lessons", len(course.Lessons),
		"chunks", len(chunks),
	)
	return &Stats{Courses: 1, Chunks: len(chunks)}, nil
}

// IngestDir ingests every supported document in a directory. Failures on
// individual files are logged and counted as skips; the run continues.
func (in *Ingester) IngestDir(ctx context.Context, dir string, force bool) (*Stats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md", ".markdown":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	total := &Stats{}
	for _, name := range names {
		stats, err := in.IngestFile(ctx, filepath.Join(dir, name), force)
		if err != nil {
			in.logger.Warn("skipping document", "file", name, "error", err)
			total.Skipped++
			continue
		}
		total.Courses += stats.Courses
		total.Chunks += stats.Chunks
		total.Skipped += stats.Skipped
	}
	return total, nil
}
