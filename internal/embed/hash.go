package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

// Hash provider constants.
const (
	// HashDimensions is the vector length of the hash provider.
	HashDimensions = 384

	// HashModel identifies hash vectors in status and stored records.
	HashModel = "hash-384"
)

// programmingStopWords are keywords too common to carry meaning.
var programmingStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// HashProvider is a deterministic feature-hashing embedder. It needs no
// network or model download and is much weaker than a learned model, so it
// serves as the last entry of a Strategy.
type HashProvider struct{}

var _ Provider = (*HashProvider)(nil)

// NewHashProvider creates a hash provider.
func NewHashProvider() *HashProvider {
	return &HashProvider{}
}

func (p *HashProvider) Kind() ProviderKind { return KindHash }

func (p *HashProvider) Model() string { return HashModel }

func (p *HashProvider) Dimensions() int { return HashDimensions }

// EmbedBatch hashes each text. The input type does not change the vector.
func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string, _ InputType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashVector(text)
	}
	return out, nil
}

func (p *HashProvider) Close() error { return nil }

// hashVector returns the unit-length feature vector of text, or a zero
// vector for blank text.
func hashVector(text string) []float32 {
	trimmed := strings.TrimSpace(text)
	vector := make([]float32, HashDimensions)
	if trimmed == "" {
		return vector
	}

	for _, token := range filterStopWords(tokenize(trimmed)) {
		vector[hashToIndex(token, HashDimensions)] += tokenWeight
	}
	for _, ngram := range extractNgrams(normalizeForNgrams(trimmed), ngramSize) {
		vector[hashToIndex(ngram, HashDimensions)] += ngramWeight
	}

	return normalizeVector(vector)
}

// tokenize splits text into lowercase identifier parts.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitCodeToken splits camelCase and snake_case identifiers.
func splitCodeToken(token string) []string {
	if !strings.Contains(token, "_") {
		return splitCamelCase(token)
	}

	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, splitCamelCase(part)...)
		}
	}
	return result
}

// splitCamelCase splits on lower-to-upper transitions and before the last
// capital of an acronym ("HTTPServer" -> "HTTP", "Server").
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !programmingStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// normalizeForNgrams keeps only lowercase letters and digits.
func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams returns the n-rune sliding windows of text.
func extractNgrams(text string, n int) []string {
	runes := []rune(text)
	if len(runes) < n {
		return []string{}
	}

	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex maps s to a bucket with FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
