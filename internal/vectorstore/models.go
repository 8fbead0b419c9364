// Package vectorstore provides SQLite-backed storage and semantic search
// for course materials.
package vectorstore

// Course is the metadata for one ingested course.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"course_link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons"`
}

// Lesson is one lesson within a course.
type Lesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"lesson_title"`
	Link   string `json:"lesson_link,omitempty"`
}

// Chunk is one searchable piece of course content.
type Chunk struct {
	Content      string `json:"content"`
	CourseTitle  string `json:"course_title"`
	LessonNumber int    `json:"lesson_number"` // -1 when the chunk precedes any lesson
	Index        int    `json:"chunk_index"`
}

// SearchResult is one chunk matched by a semantic search, with its
// provenance and the link to read more.
type SearchResult struct {
	Content      string
	CourseTitle  string
	LessonNumber int
	LessonLink   string
	Score        float32
}
