package chunk

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxSectionLevel is the deepest heading level that opens a new markdown chunk.
const maxSectionLevel = 2

// chunkMarkdown emits one chunk per H1/H2 section, each running up to the
// next H1/H2. Non-blank text before the first heading becomes its own chunk.
// It returns nil when the document has no such heading.
func (c *SyntaxChunker) chunkMarkdown(file *FileInput, lang string) []*Chunk {
	src := file.Content
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var starts []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level > maxSectionLevel || heading.Lines().Len() == 0 {
			continue
		}
		starts = append(starts, lineStart(src, heading.Lines().At(0).Start))
	}
	if len(starts) == 0 {
		return nil
	}
	if starts[0] > 0 && len(bytes.TrimSpace(src[:starts[0]])) > 0 {
		starts = append([]int{0}, starts...)
	}

	chunks := make([]*Chunk, 0, len(starts))
	for i, start := range starts {
		end := len(src)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if end <= start {
			continue
		}
		span := fmt.Sprintf("%d-%d", start, end)
		chunks = append(chunks, newChunk(file.URI, lang, span, string(src[start:end]), byteRange(src, start, end)))
	}
	return chunks
}

// lineStart returns the offset of the first byte on the line containing pos.
func lineStart(src []byte, pos int) int {
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

// byteRange converts the half-open byte span [start, end) to a Range. A
// trailing newline belongs to the last line rather than opening a new one.
func byteRange(src []byte, start, end int) *Range {
	last := end
	if last > start && src[last-1] == '\n' {
		last--
	}
	return &Range{
		StartLine:   bytes.Count(src[:start], []byte{'\n'}) + 1,
		StartColumn: 0,
		EndLine:     bytes.Count(src[:last], []byte{'\n'}) + 1,
		EndColumn:   last - lineStart(src, last),
	}
}
