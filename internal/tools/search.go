package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

// Searcher is the slice of the vector store the search tool needs.
type Searcher interface {
	Search(ctx context.Context, query, courseName string, lessonNumber, limit int) ([]vectorstore.SearchResult, error)
}

// SearchTool performs semantic search over course content and remembers
// the citations of its most recent run.
type SearchTool struct {
	store       Searcher
	maxResults  int
	lastSources []Source
}

// NewSearchTool creates the search_course_content tool.
func NewSearchTool(store Searcher, maxResults int) *SearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SearchTool{store: store, maxResults: maxResults}
}

// Tool returns the tool definition.
func (s *SearchTool) Tool() *Tool {
	return &Tool{
		Name:        "search_course_content",
		Description: "Search course materials with smart course name matching and lesson filtering",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to search for in the course content",
				},
				"course_name": map[string]any{
					"type":        "string",
					"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": map[string]any{
					"type":        "integer",
					"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			"required": []string{"query"},
		},
		Handler: s.execute,
	}
}

// LastSources returns citations from the most recent search.
func (s *SearchTool) LastSources() []Source { return s.lastSources }

// ResetSources clears recorded citations.
func (s *SearchTool) ResetSources() { s.lastSources = nil }

func (s *SearchTool) execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	courseName, _ := args["course_name"].(string)
	// Lesson 0 is a valid filter value, so absence is -1.
	lessonNumber := -1
	if n, ok := args["lesson_number"].(float64); ok {
		lessonNumber = int(n)
	}

	results, err := s.store.Search(ctx, query, courseName, lessonNumber, s.maxResults)
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		msg := "No relevant content found"
		if courseName != "" {
			msg += fmt.Sprintf(" in course '%s'", courseName)
		}
		if lessonNumber >= 0 {
			msg += fmt.Sprintf(" in lesson %d", lessonNumber)
		}
		return msg + ".", nil
	}

	return s.format(results), nil
}

// format renders results with course and lesson headers, and records one
// deduplicated citation per course/lesson pair.
func (s *SearchTool) format(results []vectorstore.SearchResult) string {
	var formatted []string
	seen := make(map[string]bool)
	s.lastSources = nil

	for _, r := range results {
		header := fmt.Sprintf("[%s]", r.CourseTitle)
		label := r.CourseTitle
		if r.LessonNumber >= 0 {
			header = fmt.Sprintf("[%s - Lesson %d]", r.CourseTitle, r.LessonNumber)
			label = fmt.Sprintf("%s - Lesson %d", r.CourseTitle, r.LessonNumber)
		}
		formatted = append(formatted, header+"\n"+r.Content)

		if !seen[label] {
			seen[label] = true
			s.lastSources = append(s.lastSources, Source{Text: label, Link: r.LessonLink})
		}
	}

	return strings.Join(formatted, "\n\n")
}
