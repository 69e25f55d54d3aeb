package vocab

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTable fixes the mis-transcriptions the speech gateway produces most
// often for product and brand terms.
var DefaultTable = map[string]string{
	"eg":           "EG",
	"e g":          "EG",
	"pitch sync":   "PitchSync",
	"pitchsink":    "PitchSync",
	"pitch sink":   "PitchSync",
	"gst":          "GST",
	"road map":     "roadmap",
	"ai grading":   "AI grading",
	"go to market": "go-to-market",
}

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Corrector applies whole-word, case-insensitive phrase replacement.
type Corrector struct {
	rules []rule
}

// New compiles a corrector from a phrase table. Longer phrases are applied
// first so multi-word entries win over their substrings.
func New(table map[string]string) (*Corrector, error) {
	phrases := make([]string, 0, len(table))
	for phrase := range table {
		if strings.TrimSpace(phrase) == "" {
			return nil, errors.New("vocabulary phrase cannot be empty")
		}
		phrases = append(phrases, phrase)
	}
	sort.Slice(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return phrases[i] < phrases[j]
	})

	rules := make([]rule, 0, len(phrases))
	for _, phrase := range phrases {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("invalid vocabulary phrase %q: %w", phrase, err)
		}
		rules = append(rules, rule{re: re, replacement: table[phrase]})
	}
	return &Corrector{rules: rules}, nil
}

// Load reads a YAML phrase table from path, merged over the defaults.
// A missing file yields the defaults alone.
func Load(path string) (*Corrector, error) {
	table := make(map[string]string, len(DefaultTable))
	for phrase, replacement := range DefaultTable {
		table[phrase] = replacement
	}

	if strings.TrimSpace(path) != "" {
		contents, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read vocabulary file %q: %w", path, err)
		}
		if err == nil {
			var loaded map[string]string
			if err := yaml.Unmarshal(contents, &loaded); err != nil {
				return nil, fmt.Errorf("failed to parse vocabulary file %q: %w", path, err)
			}
			for phrase, replacement := range loaded {
				table[strings.ToLower(strings.TrimSpace(phrase))] = replacement
			}
		}
	}

	return New(table)
}

// Apply rewrites all table phrases in text. Matches are whole-word and
// case-insensitive; "eg" is corrected while "legally" is untouched.
func (c *Corrector) Apply(text string) string {
	if c == nil || len(c.rules) == 0 {
		return text
	}
	result := text
	for _, r := range c.rules {
		result = r.re.ReplaceAllString(result, r.replacement)
	}
	return result
}
