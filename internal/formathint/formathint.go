// Package formathint detects an attempt's output format from its
// command line via a prioritized set of glob-style pattern rules,
// generalizing the source-registry shape (internal/cli's predecessor
// package registered one Go type per AI-tool hook; here one rule
// matches one command pattern) to the pattern/priority/default model
// a producer's format-hints configuration describes.
package formathint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPriority is applied to a hint with no explicit priority.
const DefaultPriority = 500

// Hint is one pattern-to-format rule.
type Hint struct {
	Pattern  string `toml:"-"`
	Format   string `toml:"format"`
	Priority int    `toml:"priority"`
}

// Set is an ordered collection of hints plus a fallback format,
// matching one command string against the highest-priority matching
// pattern.
type Set struct {
	hints         []Hint
	defaultFormat string
}

// New returns an empty Set with the "auto" fallback format.
func New() *Set {
	return &Set{defaultFormat: "auto"}
}

// DefaultHints returns a Set seeded with the built-in pattern-to-format
// mappings for common build/test tools; a store layers its own
// configured hints on top by calling Add again for any pattern it
// wants to override.
func DefaultHints() *Set {
	s := New()
	s.Add("go test*", "go-test", DefaultPriority)
	s.Add("go build*", "go-build", DefaultPriority)
	s.Add("go vet*", "go-vet", DefaultPriority)
	s.Add("cargo build*", "cargo", DefaultPriority)
	s.Add("cargo test*", "cargo", DefaultPriority)
	s.Add("pytest*", "pytest", DefaultPriority)
	s.Add("npm test*", "npm-test", DefaultPriority)
	s.Add("npm run build*", "npm-build", DefaultPriority)
	s.Add("make*", "make", DefaultPriority)
	return s
}

// Add inserts or replaces the hint for pattern, then re-sorts by
// priority (highest first, pattern as a stable tiebreaker).
func (s *Set) Add(pattern, format string, priority int) {
	for i, h := range s.hints {
		if h.Pattern == pattern {
			s.hints = append(s.hints[:i], s.hints[i+1:]...)
			break
		}
	}
	s.hints = append(s.hints, Hint{Pattern: pattern, Format: format, Priority: priority})
	s.sort()
}

// Remove deletes the hint for pattern, reporting whether one existed.
func (s *Set) Remove(pattern string) bool {
	for i, h := range s.hints {
		if h.Pattern == pattern {
			s.hints = append(s.hints[:i], s.hints[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Set) sort() {
	sort.Slice(s.hints, func(i, j int) bool {
		if s.hints[i].Priority != s.hints[j].Priority {
			return s.hints[i].Priority > s.hints[j].Priority
		}
		return s.hints[i].Pattern < s.hints[j].Pattern
	})
}

// Hints returns the current hints, highest priority first.
func (s *Set) Hints() []Hint { return append([]Hint(nil), s.hints...) }

// DefaultFormat returns the fallback format used when nothing matches.
func (s *Set) DefaultFormat() string { return s.defaultFormat }

// SetDefaultFormat changes the fallback format.
func (s *Set) SetDefaultFormat(format string) { s.defaultFormat = format }

// Detect returns the format of the highest-priority hint whose pattern
// matches cmd, or the default format if none match.
func (s *Set) Detect(cmd string) string {
	for _, h := range s.hints {
		if Match(h.Pattern, cmd) {
			return h.Format
		}
	}
	return s.defaultFormat
}

// Match reports whether pattern (a "*"-glob over whole strings, no
// other wildcards) matches text.
func Match(pattern, text string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == text
	}

	if parts[0] != "" && !strings.HasPrefix(text, parts[0]) {
		return false
	}
	pos := len(parts[0])

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(text[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}

	last := parts[len(parts)-1]
	if last != "" && !strings.HasSuffix(text[pos:], last) {
		return false
	}
	return true
}

// rawDoc mirrors the TOML document shape: a [format-hints] table of
// pattern -> format string or {format, priority} table, a
// "default" key, plus priority subsections [format-hints.N].
type rawDoc struct {
	FormatHints map[string]any `toml:"format-hints"`
}

// Parse decodes a format-hints TOML document (the simple
// pattern="format" form, the structured {format,priority} form, and
// numeric priority subsections all supported, matching the
// configuration format this was generalized from).
func Parse(data []byte) (*Set, error) {
	var doc rawDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("formathint: parse: %w", err)
	}

	s := New()
	for key, val := range doc.FormatHints {
		if key == "default" {
			if str, ok := val.(string); ok {
				s.defaultFormat = str
			}
			continue
		}
		if section, ok := val.(map[string]any); ok && isPrioritySection(key) {
			priority := atoiOr(key, DefaultPriority)
			for pattern, v := range section {
				if err := addRaw(s, pattern, v, priority); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := addRaw(s, key, val, DefaultPriority); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func isPrioritySection(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func atoiOr(s string, fallback int) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func addRaw(s *Set, pattern string, val any, sectionPriority int) error {
	switch v := val.(type) {
	case string:
		s.Add(pattern, v, sectionPriority)
	case map[string]any:
		format, _ := v["format"].(string)
		if format == "" {
			return fmt.Errorf("formathint: pattern %q missing format", pattern)
		}
		priority := sectionPriority
		if p, ok := v["priority"].(int64); ok {
			priority = int(p)
		}
		s.Add(pattern, format, priority)
	default:
		return fmt.Errorf("formathint: pattern %q has unsupported value type %T", pattern, val)
	}
	return nil
}
