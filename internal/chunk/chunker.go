package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Options configures the chunker.
type Options struct {
	// WindowLines is the fallback window size (default: DefaultWindowLines).
	WindowLines int
}

// SyntaxChunker emits one chunk per top-level declaration for languages the
// registry has a grammar for, and non-overlapping line windows otherwise.
type SyntaxChunker struct {
	registry    *LanguageRegistry
	windowLines int
	logger      *slog.Logger
}

// New creates a SyntaxChunker. A nil logger discards output.
func New(registry *LanguageRegistry, opts Options, logger *slog.Logger) *SyntaxChunker {
	if registry == nil {
		registry = NewLanguageRegistry()
	}
	if opts.WindowLines <= 0 {
		opts.WindowLines = DefaultWindowLines
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SyntaxChunker{
		registry:    registry,
		windowLines: opts.WindowLines,
		logger:      logger,
	}
}

// Registry returns the language registry used for detection.
func (c *SyntaxChunker) Registry() *LanguageRegistry {
	return c.registry
}

// Chunk implements Chunker. An empty file yields exactly one empty chunk.
func (c *SyntaxChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if file == nil {
		return nil, fmt.Errorf("chunk: nil file input")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang := file.LanguageID
	if lang == "" {
		lang = c.registry.DetectLanguage(file.URI)
	}

	if len(file.Content) == 0 {
		return []*Chunk{newChunk(file.URI, lang, "w0", "", &Range{StartLine: 1, EndLine: 1})}, nil
	}

	if config, ok := c.registry.GetByName(lang); ok {
		chunks, err := c.chunkBySyntax(ctx, file, lang, config)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug("syntax_chunking_fallback",
				slog.String("uri", file.URI),
				slog.String("error", err.Error()))
		} else if len(chunks) > 0 {
			return chunks, nil
		}
	}

	if lang == "markdown" {
		if chunks := c.chunkMarkdown(file, lang); len(chunks) > 0 {
			return chunks, nil
		}
	}

	return c.chunkByLines(file.URI, lang, string(file.Content)), nil
}

// chunkBySyntax returns one chunk per top-level declaration. Comments that
// sit directly above a declaration are folded into it.
func (c *SyntaxChunker) chunkBySyntax(ctx context.Context, file *FileInput, lang string, config *LanguageConfig) ([]*Chunk, error) {
	parser := NewParser(c.registry)
	defer parser.Close()

	tree, err := parser.Parse(ctx, file.Content, lang)
	if err != nil {
		return nil, err
	}
	if tree.Root == nil {
		return nil, fmt.Errorf("empty parse tree")
	}

	var chunks []*Chunk
	var leading *Node

	for _, node := range tree.Root.Children {
		if !node.Named {
			continue
		}
		if contains(config.CommentTypes, node.Type) {
			if leading != nil && node.StartPoint.Row <= leading.EndPoint.Row+1 {
				// Extend a run of adjacent line comments.
				leading = &Node{
					StartByte:  leading.StartByte,
					StartPoint: leading.StartPoint,
					EndByte:    node.EndByte,
					EndPoint:   node.EndPoint,
				}
			} else {
				leading = node
			}
			continue
		}

		if !isDeclaration(node, config) {
			leading = nil
			continue
		}

		start, startPoint := node.StartByte, node.StartPoint
		if leading != nil && node.StartPoint.Row <= leading.EndPoint.Row+1 {
			start, startPoint = leading.StartByte, leading.StartPoint
		}
		leading = nil

		content := string(file.Content[start:node.EndByte])
		rng := &Range{
			StartLine:   int(startPoint.Row) + 1,
			StartColumn: int(startPoint.Column),
			EndLine:     int(node.EndPoint.Row) + 1,
			EndColumn:   int(node.EndPoint.Column),
		}
		span := fmt.Sprintf("%d-%d", start, node.EndByte)
		chunks = append(chunks, newChunk(file.URI, lang, span, content, rng))
	}

	return chunks, nil
}

func isDeclaration(node *Node, config *LanguageConfig) bool {
	if contains(config.DeclarationTypes, node.Type) {
		return true
	}
	if contains(config.WrapperTypes, node.Type) {
		for _, child := range node.Children {
			if contains(config.DeclarationTypes, child.Type) {
				return true
			}
		}
	}
	return false
}

// chunkByLines splits content into sequential windows of c.windowLines lines.
// The final window is kept even when shorter.
func (c *SyntaxChunker) chunkByLines(uri, lang, content string) []*Chunk {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	chunks := make([]*Chunk, 0, (len(lines)+c.windowLines-1)/c.windowLines)
	for ordinal, start := 0, 0; start < len(lines); ordinal, start = ordinal+1, start+c.windowLines {
		end := start + c.windowLines
		if end > len(lines) {
			end = len(lines)
		}

		window := strings.Join(lines[start:end], "")
		last := strings.TrimSuffix(lines[end-1], "\n")
		rng := &Range{
			StartLine:   start + 1,
			StartColumn: 0,
			EndLine:     end,
			EndColumn:   len(last),
		}
		chunks = append(chunks, newChunk(uri, lang, fmt.Sprintf("w%d", ordinal), window, rng))
	}

	return chunks
}

func newChunk(uri, lang, span, content string, rng *Range) *Chunk {
	return &Chunk{
		ID:          generateChunkID(uri, span),
		URI:         uri,
		LanguageID:  lang,
		Content:     content,
		Range:       rng,
		ContentHash: HashContent(content),
	}
}
