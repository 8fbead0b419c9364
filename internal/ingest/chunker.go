package ingest

import (
	"fmt"
	"strings"

	"github.com/ylzuimeng/rag-chatbot/internal/vectorstore"
)

// Chunker splits lesson text into overlapping, sentence-aligned chunks.
type Chunker struct {
	Size    int // max chunk length in characters
	Overlap int // characters of trailing context carried into the next chunk
}

// NewChunker returns a chunker with sane bounds applied.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = 100
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// splitSentences breaks text on sentence-ending punctuation followed by
// whitespace. Whitespace runs are collapsed first.
func splitSentences(s string) []string {
	s = strings.Join(strings.Fields(s), " ")
	var sentences []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '.' && s[i] != '!' && s[i] != '?' {
			continue
		}
		// Consume a run of terminators
		end := i
		for end+1 < len(s) && (s[end+1] == '.' || s[end+1] == '!' || s[end+1] == '?') {
			end++
		}
		if end+1 < len(s) && s[end+1] != ' ' {
			i = end
			continue
		}
		sentences = append(sentences, strings.TrimSpace(s[start:end+1]))
		start = end + 1
		i = end
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// Split breaks text into chunks of at most Size characters, aligned on
// sentence boundaries where possible, with each chunk starting with the
// sentences that ended the previous one (up to Overlap characters).
func (c *Chunker) Split(s string) []string {
	sentences := splitSentences(s)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	i := 0
	for i < len(sentences) {
		var sb strings.Builder
		j := i
		for j < len(sentences) {
			next := len(sentences[j])
			if sb.Len() > 0 {
				next++ // joining space
			}
			if sb.Len()+next > c.Size && sb.Len() > 0 {
				break
			}
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(sentences[j])
			j++
		}
		chunks = append(chunks, sb.String())
		if j >= len(sentences) {
			break
		}

		// Walk back far enough to carry Overlap characters forward,
		// but always advance at least one sentence.
		back := j
		carried := 0
		for back > i+1 && carried+len(sentences[back-1]) <= c.Overlap {
			carried += len(sentences[back-1]) + 1
			back--
		}
		i = back
	}
	return chunks
}

// ChunkSections turns parsed lesson sections into store chunks. Each chunk
// is prefixed with its course and lesson so a match stays attributable
// after retrieval.
func (c *Chunker) ChunkSections(courseTitle string, sections []lessonSection) []vectorstore.Chunk {
	var chunks []vectorstore.Chunk
	idx := 0
	for _, sec := range sections {
		for _, piece := range c.Split(sec.Content) {
			var prefixed string
			if sec.Number >= 0 {
				prefixed = fmt.Sprintf("Course %s Lesson %d content: %s", courseTitle, sec.Number, piece)
			} else {
				prefixed = fmt.Sprintf("Course %s content: %s", courseTitle, piece)
			}
			chunks = append(chunks, vectorstore.Chunk{
				Content:      prefixed,
				CourseTitle:  courseTitle,
				LessonNumber: sec.Number,
				Index:        idx,
			})
			idx++
		}
	}
	return chunks
}
