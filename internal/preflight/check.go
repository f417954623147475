// Package preflight runs environment checks before indexing: free disk
// space and write access in the data directory, the open-file limit that
// watching needs, the workspace itself and the embedding provider.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target is what a run inspects. A nil Embedder skips the provider check.
type Target struct {
	Workspace string
	DataDir   string
	Embedder  Embedder
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against t.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	results := []CheckResult{
		c.CheckWorkspace(t.Workspace),
		c.CheckWritePermissions(t.DataDir),
		c.CheckDiskSpace(t.DataDir),
		c.CheckFileDescriptors(),
	}
	if t.Embedder != nil {
		results = append(results, c.CheckEmbedder(ctx, t.Embedder))
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus is "failed", "ready_with_warnings" or "ready".
func SummaryStatus(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(c.output, format, args...) }

	p("amanidx system check\n\n")
	for _, r := range results {
		p("[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			p("       %s\n", r.Details)
		}
	}
	p("\nStatus: %s\n", strings.ToUpper(SummaryStatus(results)))

	var problems []string
	for _, r := range results {
		if r.Status != StatusPass {
			problems = append(problems, fmt.Sprintf("%s %s: %s", r.Status, r.Name, r.Message))
		}
	}
	if len(problems) > 0 {
		p("\n")
		for _, line := range problems {
			p("  - %s\n", line)
		}
	}
}

// CheckWorkspace verifies the workspace root is a readable directory.
func (c *Checker) CheckWorkspace(root string) CheckResult {
	result := CheckResult{Name: "workspace", Required: true}

	info, err := os.Stat(root)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = err.Error()
	case !info.IsDir():
		result.Status = StatusFail
		result.Message = root + " is not a directory"
	default:
		if _, err := os.ReadDir(root); err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("cannot list: %v", err)
			return result
		}
		result.Status = StatusPass
		result.Message = root
	}
	return result
}

// CheckWritePermissions creates dir if needed and writes a scratch file.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{Name: "data_dir", Required: true}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create: %v", err)
		return result
	}
	scratch := filepath.Join(dir, ".amanidx-preflight")
	f, err := os.Create(scratch)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		result.Details = "Set storage.data_dir or AMANIDX_DATA_DIR to a writable directory"
		return result
	}
	_ = f.Close()
	_ = os.Remove(scratch)

	result.Status = StatusPass
	result.Message = dir
	return result
}
