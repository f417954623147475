// Package scanner discovers indexable files in a workspace. It honours
// configured excludes, nested .gitignore files, a size cap and a fixed list
// of sensitive file names, and it skips binaries and symlinks.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// DefaultMaxFileSize is used when Options.MaxFileSize is unset.
const DefaultMaxFileSize = 1 << 20

// ignoreCacheSize bounds the number of parsed .gitignore files kept.
const ignoreCacheSize = 1000

// sensitivePatterns are never indexed, whatever the configuration says.
var sensitivePatterns = NewMatcher(
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
	".ssh/",
	".aws/",
)

// generatedMarkers flag machine-written files near the top of a file.
var generatedMarkers = []string{
	"// Code generated",
	"// DO NOT EDIT",
	"/* DO NOT EDIT",
	"# Generated by",
	"// Generated by",
}

// Options configures one scan.
type Options struct {
	Root             string
	Exclude          []string // .gitignore syntax
	RespectGitignore bool
	MaxFileSize      int64
}

// File is one indexable file.
type File struct {
	URI       string // relative to the root, slash separated
	AbsPath   string
	Size      int64
	ModTime   time.Time
	Generated bool
}

// Scanner walks workspaces. Parsed .gitignore files are cached across scans
// until InvalidateIgnoreCache is called.
type Scanner struct {
	ignoreCache *lru.Cache[string, *Matcher]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *Matcher](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Scanner{ignoreCache: cache}, nil
}

// Scan returns every indexable file under opts.Root, sorted by URI.
// Unreadable entries are skipped.
func (s *Scanner) Scan(ctx context.Context, opts Options) ([]*File, error) {
	root, err := absRoot(opts.Root)
	if err != nil {
		return nil, err
	}
	excludes := NewMatcher(opts.Exclude...)

	var files []*File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		uri := filepath.ToSlash(rel)

		if d.IsDir() {
			if s.excluded(root, uri, true, excludes, opts.RespectGitignore) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if s.excluded(root, uri, false, excludes, opts.RespectGitignore) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if f, ok := admit(path, uri, info, opts.MaxFileSize); ok {
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].URI < files[j].URI })
	return files, nil
}

// Stat checks a single workspace-relative uri against the same rules as
// Scan. It returns ok=false when the file exists but is not indexable, and
// an error satisfying errors.Is(err, fs.ErrNotExist) when it is gone.
func (s *Scanner) Stat(opts Options, uri string) (*File, bool, error) {
	root, err := absRoot(opts.Root)
	if err != nil {
		return nil, false, err
	}
	path := filepath.Join(root, filepath.FromSlash(uri))

	info, err := os.Lstat(path)
	if err != nil {
		return nil, false, err
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}

	if s.excludedPath(root, uri, false, NewMatcher(opts.Exclude...), opts.RespectGitignore) {
		return nil, false, nil
	}

	f, ok := admit(path, uri, info, opts.MaxFileSize)
	return f, ok, nil
}

// Excluded reports whether uri, or any directory above it, is filtered out
// by the sensitive list, opts.Exclude or a .gitignore.
func (s *Scanner) Excluded(opts Options, uri string, isDir bool) bool {
	root, err := absRoot(opts.Root)
	if err != nil {
		return false
	}
	return s.excludedPath(root, uri, isDir, NewMatcher(opts.Exclude...), opts.RespectGitignore)
}

func (s *Scanner) excludedPath(root, uri string, isDir bool, excludes *Matcher, gitignore bool) bool {
	parts := strings.Split(uri, "/")
	for i := 1; i < len(parts); i++ {
		if s.excluded(root, strings.Join(parts[:i], "/"), true, excludes, gitignore) {
			return true
		}
	}
	return s.excluded(root, uri, isDir, excludes, gitignore)
}

// InvalidateIgnoreCache drops parsed .gitignore files, for use after one
// of them changes.
func (s *Scanner) InvalidateIgnoreCache() {
	s.ignoreCache.Purge()
}

// Resolve turns an absolute or root-relative path into a workspace uri.
// Paths that escape the root are rejected.
func Resolve(root, path string) (string, error) {
	absRootDir, err := absRoot(root)
	if err != nil {
		return "", err
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(absRootDir, filepath.FromSlash(path))
	}
	rel, err := filepath.Rel(absRootDir, filepath.Clean(abs))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", amerrors.PathOutsideWorkspace(path, absRootDir)
	}
	return filepath.ToSlash(rel), nil
}

func absRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", amerrors.FileNotFound(abs, err)
		}
		return "", fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return "", amerrors.New(amerrors.ErrCodeInvalidInput, "workspace root is not a directory: "+abs, nil)
	}
	return abs, nil
}

// admit applies the size cap and binary check.
func admit(path, uri string, info fs.FileInfo, maxSize int64) (*File, bool) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if info.Size() > maxSize {
		return nil, false
	}

	head := readHead(path, 1024)
	if bytes.IndexByte(head, 0) >= 0 {
		return nil, false
	}

	return &File{
		URI:       uri,
		AbsPath:   path,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Generated: isGenerated(head),
	}, true
}

func readHead(path string, n int) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, n)
	read, _ := f.Read(buf)
	return buf[:read]
}

func isGenerated(head []byte) bool {
	for _, marker := range generatedMarkers {
		if bytes.Contains(head, []byte(marker)) {
			return true
		}
	}
	return false
}

// excluded checks sensitive names, configured excludes and, when enabled,
// every .gitignore from the root down to the entry's directory.
func (s *Scanner) excluded(root, uri string, isDir bool, excludes *Matcher, gitignore bool) bool {
	if sensitivePatterns.Ignored(uri, isDir) || excludes.Ignored(uri, isDir) {
		return true
	}
	if !gitignore {
		return false
	}

	dir := ""
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		dir = uri[:i]
	}

	base := ""
	for {
		if s.ignoreFile(root, base).Ignored(uri, isDir) {
			return true
		}
		if base == dir {
			return false
		}
		next := strings.TrimPrefix(dir, base)
		next = strings.TrimPrefix(next, "/")
		if i := strings.IndexByte(next, '/'); i >= 0 {
			next = next[:i]
		}
		if base == "" {
			base = next
		} else {
			base += "/" + next
		}
	}
}

// ignoreFile returns the parsed .gitignore of root/base, or nil.
func (s *Scanner) ignoreFile(root, base string) *Matcher {
	dir := filepath.Join(root, filepath.FromSlash(base))
	if m, ok := s.ignoreCache.Get(dir); ok {
		return m
	}

	m, err := ParseIgnoreFile(filepath.Join(dir, ".gitignore"), base)
	if err != nil {
		m = nil
	}
	s.ignoreCache.Add(dir, m)
	return m
}
