package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

func TestRegistry_RegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:        "echo",
		Description: "echoes input",
		InputSchema: map[string]any{"type": "object"},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			s, _ := args["text"].(string)
			return "echo: " + s, nil
		},
	})

	out, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "echo: hi" {
		t.Errorf("out = %q", out)
	}

	if got := r.Get("echo"); got == nil {
		t.Error("Get returned nil for registered tool")
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("error = %v", err)
	}
}

func TestRegistry_ListShape(t *testing.T) {
	r := NewRegistry()
	r.Register(&Tool{
		Name:        "first",
		Description: "one",
		InputSchema: map[string]any{"type": "object"},
		Handler:     func(context.Context, map[string]any) (string, error) { return "", nil },
	})
	r.Register(&Tool{
		Name:        "second",
		Description: "two",
		InputSchema: map[string]any{"type": "object"},
		Handler:     func(context.Context, map[string]any) (string, error) { return "", nil },
	})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("list = %d entries, want 2", len(list))
	}
	if list[0]["name"] != "first" || list[1]["name"] != "second" {
		t.Errorf("registration order not preserved: %v", list)
	}
	for _, def := range list {
		for _, key := range []string{"name", "description", "input_schema"} {
			if _, ok := def[key]; !ok {
				t.Errorf("definition missing %q: %v", key, def)
			}
		}
	}
}

// fakeSearcher returns canned results or a canned error.
type fakeSearcher struct {
	results []vectorstore.SearchResult
	err     error

	gotQuery  string
	gotCourse string
	gotLesson int
}

func (f *fakeSearcher) Search(_ context.Context, query, courseName string, lessonNumber, _ int) ([]vectorstore.SearchResult, error) {
	f.gotQuery = query
	f.gotCourse = courseName
	f.gotLesson = lessonNumber
	return f.results, f.err
}

func TestSearchTool_FormatsResults(t *testing.T) {
	store := &fakeSearcher{results: []vectorstore.SearchResult{
		{Content: "alpha content", CourseTitle: "Course A", LessonNumber: 1, LessonLink: "https://a/1"},
		{Content: "beta content", CourseTitle: "Course A", LessonNumber: 1, LessonLink: "https://a/1"},
		{Content: "preamble", CourseTitle: "Course B", LessonNumber: -1},
	}}
	tool := NewSearchTool(store, 5)

	out, err := tool.Tool().Handler(context.Background(), map[string]any{
		"query":         "alpha",
		"course_name":   "Course A",
		"lesson_number": float64(1),
	})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	if store.gotQuery != "alpha" || store.gotCourse != "Course A" || store.gotLesson != 1 {
		t.Errorf("store got %q/%q/%d", store.gotQuery, store.gotCourse, store.gotLesson)
	}
	if !strings.Contains(out, "[Course A - Lesson 1]\nalpha content") {
		t.Errorf("missing lesson header:\n%s", out)
	}
	if !strings.Contains(out, "[Course B]\npreamble") {
		t.Errorf("missing course-only header:\n%s", out)
	}

	sources := tool.LastSources()
	if len(sources) != 2 {
		t.Fatalf("sources = %+v, want deduped to 2", sources)
	}
	if sources[0].Text != "Course A - Lesson 1" || sources[0].Link != "https://a/1" {
		t.Errorf("source 0 = %+v", sources[0])
	}

	tool.ResetSources()
	if len(tool.LastSources()) != 0 {
		t.Error("ResetSources did not clear")
	}
}

func TestSearchTool_LessonZero(t *testing.T) {
	store := &fakeSearcher{results: []vectorstore.SearchResult{
		{Content: "welcome", CourseTitle: "Intro Course", LessonNumber: 0, LessonLink: "https://a/0"},
	}}
	tool := NewSearchTool(store, 5)
	ctx := context.Background()

	// No lesson_number argument must not filter to lesson 0.
	if _, err := tool.Tool().Handler(ctx, map[string]any{"query": "w"}); err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if store.gotLesson != -1 {
		t.Errorf("lesson filter without argument = %d, want -1", store.gotLesson)
	}

	out, err := tool.Tool().Handler(ctx, map[string]any{
		"query":         "w",
		"lesson_number": float64(0),
	})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if store.gotLesson != 0 {
		t.Errorf("lesson filter = %d, want 0", store.gotLesson)
	}
	if !strings.Contains(out, "[Intro Course - Lesson 0]\nwelcome") {
		t.Errorf("lesson 0 header missing:\n%s", out)
	}

	sources := tool.LastSources()
	if len(sources) != 1 || sources[0].Text != "Intro Course - Lesson 0" || sources[0].Link != "https://a/0" {
		t.Errorf("sources = %+v", sources)
	}
}

func TestSearchTool_EmptyResults(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"no filters", map[string]any{"query": "x"}, "No relevant content found."},
		{"course filter", map[string]any{"query": "x", "course_name": "MCP"},
			"No relevant content found in course 'MCP'."},
		{"both filters", map[string]any{"query": "x", "course_name": "MCP", "lesson_number": float64(3)},
			"No relevant content found in course 'MCP' in lesson 3."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewSearchTool(&fakeSearcher{}, 5)
			out, err := tool.Tool().Handler(context.Background(), tt.args)
			if err != nil {
				t.Fatalf("Handler: %v", err)
			}
			if out != tt.want {
				t.Errorf("out = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestSearchTool_Errors(t *testing.T) {
	tool := NewSearchTool(&fakeSearcher{err: fmt.Errorf("store offline")}, 5)

	if _, err := tool.Tool().Handler(context.Background(), map[string]any{}); err == nil {
		t.Error("expected error for missing query")
	}
	if _, err := tool.Tool().Handler(context.Background(), map[string]any{"query": "x"}); err == nil {
		t.Error("expected store error to propagate")
	}
}

type fakeCourseReader struct {
	course *vectorstore.Course
}

func (f *fakeCourseReader) GetCourse(context.Context, string) (*vectorstore.Course, error) {
	return f.course, nil
}

func TestOutlineTool(t *testing.T) {
	reader := &fakeCourseReader{course: &vectorstore.Course{
		Title:      "Course A",
		Link:       "https://a",
		Instructor: "Someone",
		Lessons: []vectorstore.Lesson{
			{Number: 0, Title: "Intro"},
			{Number: 1, Title: "Basics"},
		},
	}}
	tool := NewOutlineTool(reader)

	out, err := tool.Tool().Handler(context.Background(), map[string]any{"course_title": "A"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	for _, want := range []string{"Course: Course A", "Course Link: https://a", "Lessons (2):", "0. Intro", "1. Basics"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	sources := tool.LastSources()
	if len(sources) != 1 || sources[0].Text != "Course A" {
		t.Errorf("sources = %+v", sources)
	}
}

func TestOutlineTool_NotFound(t *testing.T) {
	tool := NewOutlineTool(&fakeCourseReader{})
	out, err := tool.Tool().Handler(context.Background(), map[string]any{"course_title": "ghost"})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if !strings.Contains(out, "No course found matching 'ghost'") {
		t.Errorf("out = %q", out)
	}
}

func TestRegistry_LastSourcesAcrossTools(t *testing.T) {
	r := NewRegistry()
	search := NewSearchTool(&fakeSearcher{results: []vectorstore.SearchResult{
		{Content: "c", CourseTitle: "Course A", LessonNumber: 2},
	}}, 5)
	outline := NewOutlineTool(&fakeCourseReader{course: &vectorstore.Course{Title: "Course B"}})
	r.Register(search)
	r.Register(outline)

	ctx := context.Background()
	if _, err := r.Execute(ctx, "search_course_content", map[string]any{"query": "c"}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if _, err := r.Execute(ctx, "get_course_outline", map[string]any{"course_title": "B"}); err != nil {
		t.Fatalf("outline: %v", err)
	}

	sources := r.LastSources()
	if len(sources) != 2 {
		t.Fatalf("sources = %+v, want 2", sources)
	}

	r.ResetSources()
	if len(r.LastSources()) != 0 {
		t.Error("ResetSources did not clear all tools")
	}
}
