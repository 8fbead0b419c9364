package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

// CourseReader is the slice of the vector store the outline tool needs.
type CourseReader interface {
	GetCourse(ctx context.Context, name string) (*vectorstore.Course, error)
}

// OutlineTool returns a course's full lesson list.
type OutlineTool struct {
	store       CourseReader
	lastSources []Source
}

// NewOutlineTool creates the get_course_outline tool.
func NewOutlineTool(store CourseReader) *OutlineTool {
	return &OutlineTool{store: store}
}

// Tool returns the tool definition.
func (o *OutlineTool) Tool() *Tool {
	return &Tool{
		Name:        "get_course_outline",
		Description: "Get the complete outline of a course: its title, link, and every lesson",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_title": map[string]any{
					"type":        "string",
					"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
			},
			"required": []string{"course_title"},
		},
		Handler: o.execute,
	}
}

// LastSources returns the citation from the most recent outline lookup.
func (o *OutlineTool) LastSources() []Source { return o.lastSources }

// ResetSources clears recorded citations.
func (o *OutlineTool) ResetSources() { o.lastSources = nil }

func (o *OutlineTool) execute(ctx context.Context, args map[string]any) (string, error) {
	name, _ := args["course_title"].(string)
	if name == "" {
		return "", fmt.Errorf("course_title is required")
	}

	course, err := o.store.GetCourse(ctx, name)
	if err != nil {
		return "", err
	}
	if course == nil {
		return fmt.Sprintf("No course found matching '%s'.", name), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Course: %s\n", course.Title)
	if course.Link != "" {
		fmt.Fprintf(&sb, "Course Link: %s\n", course.Link)
	}
	if course.Instructor != "" {
		fmt.Fprintf(&sb, "Instructor: %s\n", course.Instructor)
	}
	fmt.Fprintf(&sb, "Lessons (%d):\n", len(course.Lessons))
	for _, l := range course.Lessons {
		fmt.Fprintf(&sb, "%d. %s\n", l.Number, l.Title)
	}

	o.lastSources = []Source{{Text: course.Title, Link: course.Link}}
	return sb.String(), nil
}
