// Package ingest parses course documents and loads them into the vector store.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

// lessonSection is a lesson's raw text before chunking. Number -1 marks
// content that precedes the first lesson marker.
type lessonSection struct {
	Number  int
	Title   string
	Link    string
	Content string
}

var lessonHeaderPattern = regexp.MustCompile(`^Lesson\s+(\d+)\s*:\s*(.+)$`)

// parseCourseText reads the plain-text course document format:
//
//	Course Title: <title>
//	Course Link: <url>
//	Course Instructor: <name>
//
//	Lesson 0: Introduction
//	Lesson Link: <url>
//	<content...>
//
// Header lines may appear in any order within the first block. Everything
// between lesson markers becomes that lesson's content.
func parseCourseText(r io.Reader) (*vectorstore.Course, []lessonSection, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	course := &vectorstore.Course{}
	var sections []lessonSection
	current := lessonSection{Number: -1}
	var content strings.Builder
	inHeader := true

	flush := func() {
		current.Content = strings.TrimSpace(content.String())
		if current.Content != "" || current.Number >= 0 {
			sections = append(sections, current)
		}
		content.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()

		if inHeader {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "Course Title:"):
				course.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Title:"))
				continue
			case strings.HasPrefix(trimmed, "Course Link:"):
				course.Link = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Link:"))
				continue
			case strings.HasPrefix(trimmed, "Course Instructor:"):
				course.Instructor = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Instructor:"))
				continue
			case trimmed == "":
				continue
			}
			inHeader = false
		}

		if m := lessonHeaderPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flush()
			num, _ := strconv.Atoi(m[1])
			current = lessonSection{Number: num, Title: strings.TrimSpace(m[2])}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Lesson Link:") && current.Link == "" && content.Len() == 0 {
			current.Link = strings.TrimSpace(strings.TrimPrefix(trimmed, "Lesson Link:"))
			continue
		}

		content.WriteString(line)
		content.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read document: %w", err)
	}
	flush()

	if course.Title == "" {
		return nil, nil, fmt.Errorf("document has no Course Title header")
	}

	for _, sec := range sections {
		if sec.Number >= 0 {
			course.Lessons = append(course.Lessons, vectorstore.Lesson{
				Number: sec.Number,
				Title:  sec.Title,
				Link:   sec.Link,
			})
		}
	}
	return course, sections, nil
}
