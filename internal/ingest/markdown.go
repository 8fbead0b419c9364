package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

// parseCourseMarkdown reads a markdown course document. The H1 heading is
// the course title, H2 headings of the form "Lesson N: Title" open lesson
// sections, and a link inside a heading becomes the course or lesson link.
// Block content is accumulated as raw source text.
func parseCourseMarkdown(src []byte) (*vectorstore.Course, []lessonSection, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	course := &vectorstore.Course{}
	var sections []lessonSection
	current := lessonSection{Number: -1}
	var content strings.Builder

	flush := func() {
		current.Content = strings.TrimSpace(content.String())
		if current.Content != "" || current.Number >= 0 {
			sections = append(sections, current)
		}
		content.Reset()
	}

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			title := string(node.Text(src))
			link := firstLinkDestination(node)

			switch node.Level {
			case 1:
				if course.Title == "" {
					course.Title = title
					course.Link = link
				}
			case 2:
				if m := lessonHeaderPattern.FindStringSubmatch(title); m != nil {
					flush()
					num, _ := strconv.Atoi(m[1])
					current = lessonSection{
						Number: num,
						Title:  strings.TrimSpace(m[2]),
						Link:   link,
					}
				} else {
					content.WriteString(title)
					content.WriteString("\n")
				}
			default:
				content.WriteString(title)
				content.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.FencedCodeBlock, *ast.CodeBlock, *ast.Blockquote:
			writeBlockLines(&content, n, src)
			return ast.WalkSkipChildren, nil

		case *ast.ListItem:
			writeBlockText(&content, n, src)
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk markdown: %w", err)
	}
	flush()

	if course.Title == "" {
		return nil, nil, fmt.Errorf("document has no top-level heading")
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

// firstLinkDestination returns the destination of the first link inside a
// node, or "".
func firstLinkDestination(n ast.Node) string {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if link, ok := c.(*ast.Link); ok {
			return string(link.Destination)
		}
		if dest := firstLinkDestination(c); dest != "" {
			return dest
		}
	}
	return ""
}

// writeBlockLines appends a block node's raw source lines.
func writeBlockLines(sb *strings.Builder, n ast.Node, src []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	sb.WriteString("\n")
}

// writeBlockText appends the rendered text of a node's children, one line
// per block child.
func writeBlockText(sb *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if lines := c.Lines(); lines != nil && lines.Len() > 0 {
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(src))
			}
			sb.WriteString("\n")
		} else {
			writeBlockText(sb, c, src)
		}
	}
}
