// Package chunk splits workspace files into addressable chunks, one per
// top-level declaration when tree-sitter understands the language, one per
// H1/H2 section for markdown, and fixed line windows otherwise.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// DefaultWindowLines is the line-window size used by the fallback strategy.
const DefaultWindowLines = 200

// Chunk is a contiguous, addressable span of one file's text.
type Chunk struct {
	ID          string // stable for identical (uri, span)
	URI         string // workspace-relative, slash separated
	LanguageID  string // optional
	Content     string
	Range       *Range
	ContentHash string // hex sha256 of Content
}

// Range is a source span. Lines are 1-indexed and inclusive, columns 0-indexed.
type Range struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
}

// FileInput is input for the Chunker interface.
type FileInput struct {
	URI        string
	LanguageID string // detected from the extension when empty
	Content    []byte
}

// Chunker splits a file into chunks. Implementations must be deterministic:
// chunking unchanged content twice yields identical ids and ranges.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
}

// Tree represents a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node represents a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	Named      bool
	HasError   bool
}

// Point represents a position in the source code.
type Point struct {
	Row    uint32 // 0-indexed line number
	Column uint32
}

// LanguageConfig holds configuration for a supported language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// DeclarationTypes are the top-level node types emitted as chunks.
	DeclarationTypes []string

	// WrapperTypes are nodes (e.g. export statements) that count as a
	// declaration when one of their children is a declaration.
	WrapperTypes []string

	// CommentTypes are attached to the declaration that directly follows them.
	CommentTypes []string
}

// HashContent returns the hex sha256 of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// generateChunkID derives a chunk id from the file URI and a span key.
func generateChunkID(uri, span string) string {
	sum := sha256.Sum256([]byte(uri + ":" + span))
	return hex.EncodeToString(sum[:])[:32]
}
