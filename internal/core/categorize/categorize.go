// Package categorize infers an entity category from its display name.
// Inference is deterministic: fold the name, split it into tokens, and take
// the first token that matches a fixed vocabulary of ecosystem names.
// No match means no category, never an error
package categorize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// pool of fresh transformer chains
var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),                       // unicode case folding
			runes.Remove(runes.In(unicode.Mn)), // strip combining marks
			runes.Remove(runes.In(unicode.Cf)), // strip format chars ZWJ ZWNJ FEFF etc
			width.Fold,                         // map fullwidth forms to ASCII
		)
	},
}

// vocabulary maps folded tokens to their canonical category.
// Aliases fold framework and shorthand names into their ecosystem
var vocabulary = map[string]string{
	"go":         "go",
	"golang":     "go",
	"rust":       "rust",
	"python":     "python",
	"py":         "python",
	"django":     "python",
	"flask":      "python",
	"typescript": "typescript",
	"ts":         "typescript",
	"javascript": "javascript",
	"js":         "javascript",
	"node":       "javascript",
	"nodejs":     "javascript",
	"deno":       "javascript",
	"react":      "javascript",
	"vue":        "javascript",
	"angular":    "javascript",
	"svelte":     "javascript",
	"java":       "java",
	"kotlin":     "kotlin",
	"swift":      "swift",
	"ruby":       "ruby",
	"rails":      "ruby",
	"php":        "php",
	"laravel":    "php",
	"cpp":        "cpp",
	"cplusplus":  "cpp",
	"csharp":     "csharp",
	"dotnet":     "csharp",
	"scala":      "scala",
	"haskell":    "haskell",
	"elixir":     "elixir",
	"phoenix":    "elixir",
	"erlang":     "erlang",
	"clojure":    "clojure",
	"lua":        "lua",
	"dart":       "dart",
	"flutter":    "dart",
	"zig":        "zig",
	"ocaml":      "ocaml",
	"perl":       "perl",
	"shell":      "shell",
	"bash":       "shell",
	"zsh":        "shell",
}

// Fold normalizes s for vocabulary matching (NFKC, case fold, strip marks,
// width fold), mirroring the platform text normalization chain
func Fold(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, _ := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)

	return ns
}

// Infer returns the category for an entity name, or "" when nothing matches.
// The owner half of an owner/name pair participates: "rust-lang/foo" is rust
func Infer(name string) string {
	folded := Fold(name)
	if folded == "" {
		return ""
	}
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if cat, ok := vocabulary[tok]; ok {
			return cat
		}
	}
	return ""
}
