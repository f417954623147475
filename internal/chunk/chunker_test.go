package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package demo

import "fmt"

// Hello greets the caller.
// It prints one line.
func Hello() {
	fmt.Println("hi")
}

type Greeter struct{}

func (g Greeter) Greet() string {
	return "hello"
}
`

func newTestChunker(window int) *SyntaxChunker {
	return New(NewLanguageRegistry(), Options{WindowLines: window}, nil)
}

func TestChunk_GoDeclarations(t *testing.T) {
	// Given: a Go file with a function, a type, and a method
	c := newTestChunker(0)

	// When: chunking
	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "demo/hello.go", Content: []byte(goSource)})
	require.NoError(t, err)

	// Then: one chunk per top-level declaration, doc comment attached
	require.Len(t, chunks, 3)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "// Hello greets the caller."))
	assert.Equal(t, &Range{StartLine: 5, StartColumn: 0, EndLine: 9, EndColumn: 1}, chunks[0].Range)
	assert.Equal(t, "type Greeter struct{}", chunks[1].Content)
	assert.Equal(t, 11, chunks[1].Range.StartLine)
	assert.Contains(t, chunks[2].Content, "func (g Greeter) Greet()")
	assert.Equal(t, 15, chunks[2].Range.EndLine)

	for _, ch := range chunks {
		assert.Equal(t, "go", ch.LanguageID)
		assert.Equal(t, "demo/hello.go", ch.URI)
		assert.Equal(t, HashContent(ch.Content), ch.ContentHash)
	}
}

func TestChunk_IdempotentRechunking(t *testing.T) {
	// Given: the same content chunked twice
	c := newTestChunker(0)
	in := &FileInput{URI: "demo/hello.go", Content: []byte(goSource)}

	first, err := c.Chunk(context.Background(), in)
	require.NoError(t, err)
	second, err := c.Chunk(context.Background(), in)
	require.NoError(t, err)

	// Then: ids and ranges are identical
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Range, second[i].Range)
	}
}

func TestChunk_IDsDependOnURI(t *testing.T) {
	c := newTestChunker(0)

	a, err := c.Chunk(context.Background(), &FileInput{URI: "a.go", Content: []byte(goSource)})
	require.NoError(t, err)
	b, err := c.Chunk(context.Background(), &FileInput{URI: "b.go", Content: []byte(goSource)})
	require.NoError(t, err)

	assert.NotEqual(t, a[0].ID, b[0].ID)
	assert.Equal(t, a[0].ContentHash, b[0].ContentHash)
}

func TestChunk_LineWindowFallback(t *testing.T) {
	// Given: 450 lines of an unsupported language and a 200-line window
	var sb strings.Builder
	for i := 1; i <= 450; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	c := newTestChunker(200)

	// When: chunking
	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "notes.txt", Content: []byte(sb.String())})
	require.NoError(t, err)

	// Then: three sequential windows, last one partial
	require.Len(t, chunks, 3)
	assert.Equal(t, &Range{StartLine: 1, EndLine: 200, EndColumn: len("line 200")}, chunks[0].Range)
	assert.Equal(t, 201, chunks[1].Range.StartLine)
	assert.Equal(t, 400, chunks[1].Range.EndLine)
	assert.Equal(t, 401, chunks[2].Range.StartLine)
	assert.Equal(t, 450, chunks[2].Range.EndLine)
	assert.True(t, strings.HasPrefix(chunks[2].Content, "line 401\n"))
	assert.Equal(t, "", chunks[0].LanguageID)

	// And: the windows reassemble the file
	var joined strings.Builder
	for _, ch := range chunks {
		joined.WriteString(ch.Content)
	}
	assert.Equal(t, sb.String(), joined.String())
}

func TestChunk_NoDeclarationsFallsBackToLines(t *testing.T) {
	c := newTestChunker(0)
	src := "package demo\n\nvar x = 1\n"

	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "vars.go", Content: []byte(src)})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, src, chunks[0].Content)
	assert.Equal(t, "go", chunks[0].LanguageID)
	assert.Equal(t, 3, chunks[0].Range.EndLine)
}

func TestChunk_EmptyFileYieldsOneChunk(t *testing.T) {
	c := newTestChunker(0)

	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "empty.py"})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0].Content)
	assert.Equal(t, "python", chunks[0].LanguageID)
	assert.NotEmpty(t, chunks[0].ID)
}

func TestChunk_TypeScriptExports(t *testing.T) {
	c := newTestChunker(0)
	src := `import { x } from "./x";

export function navigate(to: string): void {
  console.log(to);
}

export interface Route {
  path: string;
}

const local = 1;
`

	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "src/nav.ts", Content: []byte(src)})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "export function navigate")
	assert.Contains(t, chunks[1].Content, "export interface Route")
	assert.Equal(t, "typescript", chunks[0].LanguageID)
}

func TestChunk_PythonClassesAndFunctions(t *testing.T) {
	c := newTestChunker(0)
	src := "import os\n\n\nclass Header:\n    def nav(self):\n        return 1\n\n\ndef main():\n    pass\n"

	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "app.py", Content: []byte(src)})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 4, chunks[0].Range.StartLine)
	assert.Equal(t, 6, chunks[0].Range.EndLine)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "def main()"))
}

func TestChunk_ExplicitLanguageWins(t *testing.T) {
	c := newTestChunker(0)

	chunks, err := c.Chunk(context.Background(), &FileInput{
		URI:        "script",
		LanguageID: "python",
		Content:    []byte("def f():\n    pass\n"),
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "python", chunks[0].LanguageID)
	assert.Equal(t, 1, chunks[0].Range.StartLine)
}

func TestChunk_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestChunker(0).Chunk(ctx, &FileInput{URI: "a.go", Content: []byte(goSource)})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLanguageRegistry_DetectLanguage(t *testing.T) {
	r := NewLanguageRegistry()

	assert.Equal(t, "go", r.DetectLanguage("cmd/main.go"))
	assert.Equal(t, "typescriptreact", r.DetectLanguage("ui/App.TSX"))
	assert.Equal(t, "markdown", r.DetectLanguage("README.md"))
	assert.Equal(t, "", r.DetectLanguage("blob.bin"))
	assert.Contains(t, r.SupportedExtensions(), ".py")
}

func TestChunk_MarkdownSections(t *testing.T) {
	// Given: a markdown file with a preamble, two H2 sections and an H3
	src := "Intro text.\n\n# Title\n\nOverview.\n\n## Install\n\nRun it.\n\n### Details\n\nMore.\n\n## Usage\n\nCall it.\n"
	c := newTestChunker(0)

	// When: chunking
	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "docs/README.md", Content: []byte(src)})
	require.NoError(t, err)

	// Then: preamble plus one chunk per H1/H2, H3 stays inside its section
	require.Len(t, chunks, 4)
	assert.Equal(t, "Intro text.\n\n", chunks[0].Content)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "# Title\n"))
	assert.True(t, strings.HasPrefix(chunks[2].Content, "## Install\n"))
	assert.Contains(t, chunks[2].Content, "### Details")
	assert.Equal(t, "## Usage\n\nCall it.\n", chunks[3].Content)
	assert.Equal(t, &Range{StartLine: 15, StartColumn: 0, EndLine: 17, EndColumn: len("Call it.")}, chunks[3].Range)

	// And: the sections reassemble the file
	var joined strings.Builder
	for _, ch := range chunks {
		assert.Equal(t, "markdown", ch.LanguageID)
		joined.WriteString(ch.Content)
	}
	assert.Equal(t, src, joined.String())
}

func TestChunk_MarkdownWithoutHeadingsUsesWindows(t *testing.T) {
	c := newTestChunker(0)
	src := "just a paragraph\nover two lines\n"

	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "notes.md", Content: []byte(src)})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, src, chunks[0].Content)
	assert.Equal(t, 2, chunks[0].Range.EndLine)
}

func TestChunk_MarkdownIgnoresHeadingsInCodeFences(t *testing.T) {
	c := newTestChunker(0)
	src := "# One\n\n```sh\n# not a heading\n```\n\n# Two\n"

	chunks, err := c.Chunk(context.Background(), &FileInput{URI: "a.md", Content: []byte(src)})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "# not a heading")
	assert.Equal(t, "# Two\n", chunks[1].Content)
}
