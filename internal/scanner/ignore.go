package scanner

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
)

// Matcher evaluates .gitignore-style rules. Later rules win, so a "!" rule
// re-includes what an earlier rule excluded. Paths are slash separated and
// relative to the workspace root.
type Matcher struct {
	rules []rule
}

type rule struct {
	re       *regexp.Regexp
	base     string // directory the rule was declared in, "" for the root
	negate   bool
	dirOnly  bool
	anchored bool
	nested   bool // pattern spans several components
}

// NewMatcher compiles patterns declared at the workspace root.
func NewMatcher(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p, "")
	}
	return m
}

// ParseIgnoreFile reads a .gitignore whose rules apply under base.
func ParseIgnoreFile(path, base string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parseIgnore(f, base)
}

func parseIgnore(r io.Reader, base string) (*Matcher, error) {
	m := &Matcher{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m.Add(sc.Text(), base)
	}
	return m, sc.Err()
}

// Add compiles one line. Blank lines and comments are ignored.
func (m *Matcher) Add(line, base string) {
	escapedSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)
	if escapedSpace {
		line = strings.TrimSuffix(line, `\`) + " "
	}
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	r := rule{base: base}
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		r.anchored = true
	}
	if line == "" {
		return
	}
	r.nested = strings.Contains(line, "/")

	r.re = regexp.MustCompile("^" + globToRegex(line) + "$")
	m.rules = append(m.rules, r)
}

// Empty reports whether the matcher has no rules.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.rules) == 0
}

// Ignored reports whether path is excluded.
func (m *Matcher) Ignored(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	ignored := false
	for _, r := range m.rules {
		if r.matches(path, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r rule) matches(path string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(path, r.base+"/") {
			return false
		}
		path = strings.TrimPrefix(path, r.base+"/")
	}

	parts := strings.Split(path, "/")
	last := len(parts) - 1

	// Path patterns match the path itself or any parent directory.
	if r.anchored || r.nested {
		for i := last; i >= 0; i-- {
			if !r.re.MatchString(strings.Join(parts[:i+1], "/")) {
				continue
			}
			if i == last && r.dirOnly && !isDir {
				continue
			}
			return true
		}
		return false
	}

	// Name patterns match any single component.
	for i, part := range parts {
		if !r.re.MatchString(part) {
			continue
		}
		if i == last && r.dirOnly && !isDir {
			continue
		}
		return true
	}
	return false
}

// globToRegex translates gitignore glob syntax: "*" and "?" stay within one
// component, "**" crosses components, "[...]" is a character class.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				if i+2 < len(glob) && glob[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
