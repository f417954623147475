package chunk

import (
	"path"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry maps extensions to language configs and grammars.
// It is immutable after construction and safe for concurrent use.
type LanguageRegistry struct {
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// plainLanguages are recognized for LanguageID tagging but chunked by lines.
var plainLanguages = map[string]string{
	".md":    "markdown",
	".rs":    "rust",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".rb":    "ruby",
	".sh":    "shellscript",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".proto": "proto",
}

// NewLanguageRegistry creates a registry with Go, TypeScript/TSX,
// JavaScript/JSX, and Python grammars.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.register(&LanguageConfig{
		Name:             "go",
		Extensions:       []string{".go"},
		DeclarationTypes: []string{"function_declaration", "method_declaration", "type_declaration"},
		CommentTypes:     []string{"comment"},
	}, golang.GetLanguage())

	tsDecls := []string{
		"function_declaration",
		"generator_function_declaration",
		"class_declaration",
		"abstract_class_declaration",
		"interface_declaration",
		"type_alias_declaration",
		"enum_declaration",
	}
	r.register(&LanguageConfig{
		Name:             "typescript",
		Extensions:       []string{".ts", ".mts", ".cts"},
		DeclarationTypes: tsDecls,
		WrapperTypes:     []string{"export_statement"},
		CommentTypes:     []string{"comment"},
	}, typescript.GetLanguage())
	r.register(&LanguageConfig{
		Name:             "typescriptreact",
		Extensions:       []string{".tsx"},
		DeclarationTypes: tsDecls,
		WrapperTypes:     []string{"export_statement"},
		CommentTypes:     []string{"comment"},
	}, tsx.GetLanguage())

	jsDecls := []string{"function_declaration", "generator_function_declaration", "class_declaration"}
	r.register(&LanguageConfig{
		Name:             "javascript",
		Extensions:       []string{".js", ".mjs", ".cjs"},
		DeclarationTypes: jsDecls,
		WrapperTypes:     []string{"export_statement"},
		CommentTypes:     []string{"comment"},
	}, javascript.GetLanguage())
	r.register(&LanguageConfig{
		Name:             "javascriptreact",
		Extensions:       []string{".jsx"},
		DeclarationTypes: jsDecls,
		WrapperTypes:     []string{"export_statement"},
		CommentTypes:     []string{"comment"},
	}, javascript.GetLanguage())

	r.register(&LanguageConfig{
		Name:             "python",
		Extensions:       []string{".py"},
		DeclarationTypes: []string{"function_definition", "class_definition", "decorated_definition"},
		CommentTypes:     []string{"comment"},
	}, python.GetLanguage())

	return r
}

func (r *LanguageRegistry) register(config *LanguageConfig, tsLang *sitter.Language) {
	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

// GetByName returns the language configuration by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// DetectLanguage returns the language id for a file path, or "" if unknown.
func (r *LanguageRegistry) DetectLanguage(uri string) string {
	ext := strings.ToLower(path.Ext(uri))
	if name, ok := r.extToLang[ext]; ok {
		return name
	}
	return plainLanguages[ext]
}

// SupportedExtensions returns the extensions with syntax-aware chunking, sorted.
func (r *LanguageRegistry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
