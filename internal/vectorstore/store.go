package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ylzuimeng/rag-chatbot/internal/embeddings"
)

// Embedder turns text into a vector. Satisfied by *embeddings.Client.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Store is a SQLite-backed vector store for course content.
type Store struct {
	db       *sql.DB
	embedder Embedder
}

// New opens (creating if needed) the store at dbPath.
func New(dbPath string, embedder Embedder) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, embedder: embedder}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	-- Course catalog
	CREATE TABLE IF NOT EXISTS courses (
		title TEXT PRIMARY KEY,
		link TEXT,
		instructor TEXT,
		embedding BLOB
	);

	-- Lessons per course
	CREATE TABLE IF NOT EXISTS lessons (
		course_title TEXT NOT NULL,
		lesson_number INTEGER NOT NULL,
		title TEXT NOT NULL,
		link TEXT,
		PRIMARY KEY (course_title, lesson_number),
		FOREIGN KEY (course_title) REFERENCES courses(title) ON DELETE CASCADE
	);

	-- Content chunks with embeddings
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_title TEXT NOT NULL,
		lesson_number INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		FOREIGN KEY (course_title) REFERENCES courses(title) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_course ON chunks(course_title, lesson_number);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeVector packs a float32 vector into a little-endian BLOB.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// AddCourse stores course metadata and its lessons. An existing course with
// the same title is replaced, along with its lessons and chunks.
func (s *Store) AddCourse(ctx context.Context, course *Course) error {
	if course.Title == "" {
		return fmt.Errorf("course title is required")
	}

	var titleEmb []byte
	if s.embedder != nil {
		emb, err := s.embedder.Generate(ctx, course.Title)
		if err != nil {
			return fmt.Errorf("embed course title: %w", err)
		}
		titleEmb = encodeVector(emb)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE course_title = ?`, course.Title); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM lessons WHERE course_title = ?`, course.Title); err != nil {
		return fmt.Errorf("clear lessons: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO courses (title, link, instructor, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			link = excluded.link,
			instructor = excluded.instructor,
			embedding = excluded.embedding
	`, course.Title, course.Link, course.Instructor, titleEmb); err != nil {
		return fmt.Errorf("insert course: %w", err)
	}

	for _, lesson := range course.Lessons {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lessons (course_title, lesson_number, title, link)
			VALUES (?, ?, ?, ?)
		`, course.Title, lesson.Number, lesson.Title, lesson.Link); err != nil {
			return fmt.Errorf("insert lesson %d: %w", lesson.Number, err)
		}
	}

	return tx.Commit()
}

// AddChunks embeds and stores content chunks for a course.
func (s *Store) AddChunks(ctx context.Context, chunks []Chunk) error {
	if s.embedder == nil {
		return fmt.Errorf("no embedder configured")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (course_title, lesson_number, chunk_index, content, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		emb, err := s.embedder.Generate(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			chunk.CourseTitle, chunk.LessonNumber, chunk.Index,
			chunk.Content, encodeVector(emb)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Search finds the limit chunks most similar to query, optionally filtered
// by course title (resolved fuzzily) and lesson number. Lesson 0 is a real
// lesson, so a negative lessonNumber means no filter; preamble chunks are
// stored as -1 and are only reachable unfiltered.
func (s *Store) Search(ctx context.Context, query, courseName string, lessonNumber, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	resolvedCourse := ""
	if courseName != "" {
		resolved, err := s.ResolveCourseName(ctx, courseName)
		if err != nil {
			return nil, err
		}
		if resolved == "" {
			return nil, fmt.Errorf("no course found matching '%s'", courseName)
		}
		resolvedCourse = resolved
	}

	queryEmb, err := s.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sqlQuery := `SELECT course_title, lesson_number, content, embedding FROM chunks`
	var conds []string
	var args []any
	if resolvedCourse != "" {
		conds = append(conds, "course_title = ?")
		args = append(args, resolvedCourse)
	}
	if lessonNumber >= 0 {
		conds = append(conds, "lesson_number = ?")
		args = append(args, lessonNumber)
	}
	if len(conds) > 0 {
		sqlQuery += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	var vectors [][]float32
	for rows.Next() {
		var r SearchResult
		var emb []byte
		if err := rows.Scan(&r.CourseTitle, &r.LessonNumber, &r.Content, &emb); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		results = append(results, r)
		vectors = append(vectors, decodeVector(emb))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top := embeddings.TopK(queryEmb, vectors, limit)
	out := make([]SearchResult, 0, len(top))
	for _, idx := range top {
		r := results[idx]
		r.Score = embeddings.CosineSimilarity(queryEmb, vectors[idx])
		if r.LessonNumber >= 0 {
			r.LessonLink, _ = s.lessonLink(ctx, r.CourseTitle, r.LessonNumber)
		}
		out = append(out, r)
	}
	return out, nil
}

// ResolveCourseName matches a possibly partial course name to a stored
// course title. Tries an exact match, then a case-insensitive substring
// match, then falls back to embedding similarity against course titles.
// Returns "" when nothing matches.
func (s *Store) ResolveCourseName(ctx context.Context, name string) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx,
		`SELECT title FROM courses WHERE title = ?`, name).Scan(&title)
	if err == nil {
		return title, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup course: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT title FROM courses WHERE title LIKE '%' || ? || '%' COLLATE NOCASE LIMIT 1`,
		name).Scan(&title)
	if err == nil {
		return title, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup course: %w", err)
	}

	if s.embedder == nil {
		return "", nil
	}
	return s.resolveByEmbedding(ctx, name)
}

func (s *Store) resolveByEmbedding(ctx context.Context, name string) (string, error) {
	nameEmb, err := s.embedder.Generate(ctx, name)
	if err != nil {
		return "", fmt.Errorf("embed course name: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT title, embedding FROM courses WHERE embedding IS NOT NULL`)
	if err != nil {
		return "", fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	best := ""
	var bestScore float32
	for rows.Next() {
		var title string
		var emb []byte
		if err := rows.Scan(&title, &emb); err != nil {
			return "", fmt.Errorf("scan course: %w", err)
		}
		score := embeddings.CosineSimilarity(nameEmb, decodeVector(emb))
		if score > bestScore {
			best, bestScore = title, score
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	// Weak matches resolve to nothing rather than a wrong course.
	if bestScore < 0.5 {
		return "", nil
	}
	return best, nil
}

// GetCourse returns a course's metadata and lessons, or nil when the
// (fuzzily resolved) name matches nothing.
func (s *Store) GetCourse(ctx context.Context, name string) (*Course, error) {
	title, err := s.ResolveCourseName(ctx, name)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, nil
	}

	course := &Course{}
	err = s.db.QueryRowContext(ctx,
		`SELECT title, COALESCE(link, ''), COALESCE(instructor, '') FROM courses WHERE title = ?`,
		title).Scan(&course.Title, &course.Link, &course.Instructor)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lesson_number, title, COALESCE(link, '')
		FROM lessons WHERE course_title = ? ORDER BY lesson_number
	`, title)
	if err != nil {
		return nil, fmt.Errorf("get lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.Number, &l.Title, &l.Link); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		course.Lessons = append(course.Lessons, l)
	}
	return course, rows.Err()
}

// CourseTitles returns all stored course titles, sorted.
func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM courses ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// CourseCount returns the number of stored courses.
func (s *Store) CourseCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses`).Scan(&n)
	return n, err
}

// HasCourse reports whether a course with exactly this title exists.
func (s *Store) HasCourse(ctx context.Context, title string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM courses WHERE title = ?`, title).Scan(&n)
	return n > 0, err
}

func (s *Store) lessonLink(ctx context.Context, courseTitle string, lessonNumber int) (string, error) {
	var link string
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(link, '') FROM lessons
		WHERE course_title = ? AND lesson_number = ?
	`, courseTitle, lessonNumber).Scan(&link)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return link, err
}
