package transcript

import (
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rachan-eg/eg-pitchsync-sub001/internal/ports"
)

// DefaultSentencePause is the gap between two final segments past which the
// new segment is treated as a fresh sentence.
const DefaultSentencePause = 1500 * time.Millisecond

// linkingVerbs marks additions that read as complete clauses and deserve
// terminal punctuation when seeding an empty buffer.
var linkingVerbs = map[string]struct{}{
	"am": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "being": {},
	"has": {}, "have": {}, "had": {},
	"do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "should": {}, "must": {},
	"seems": {}, "looks": {}, "feels": {}, "sounds": {},
}

// Assembler merges dictated segments into an answer buffer, applying
// vocabulary corrections and punctuation heuristics. The corrector can be
// swapped at runtime when the vocabulary file reloads.
type Assembler struct {
	mu            sync.RWMutex
	corrector     ports.Corrector
	sentencePause time.Duration
}

func NewAssembler(corrector ports.Corrector, sentencePause time.Duration) *Assembler {
	if sentencePause <= 0 {
		sentencePause = DefaultSentencePause
	}
	return &Assembler{corrector: corrector, sentencePause: sentencePause}
}

// SetCorrector replaces the vocabulary corrector for subsequent appends.
func (a *Assembler) SetCorrector(corrector ports.Corrector) {
	a.mu.Lock()
	a.corrector = corrector
	a.mu.Unlock()
}

// Append merges a dictated addition into original. pause is the gap since the
// previous final segment; zero means there was none.
func (a *Assembler) Append(original string, addition string, pause time.Duration) string {
	trimmed := strings.TrimSpace(addition)
	if trimmed == "" {
		return original
	}

	corrected := a.correct(trimmed)

	if strings.TrimSpace(original) == "" {
		return a.seed(corrected)
	}

	// A trailing newline means paragraph continuation: no separator.
	if strings.HasSuffix(original, "\n") {
		return original + capitalizeFirst(corrected)
	}

	switch {
	case pause > a.sentencePause:
		separator := " "
		if !hasTerminalPunctuation(original) {
			separator = ". "
		}
		return original + separator + capitalizeFirst(corrected)
	case hasTerminalPunctuation(original):
		return original + " " + capitalizeFirst(corrected)
	default:
		return original + " " + corrected
	}
}

// Normalize runs text through the same correction and seeding pipeline as a
// first dictated segment, for callers that want typed input to match.
func (a *Assembler) Normalize(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	return a.seed(a.correct(trimmed))
}

func (a *Assembler) correct(text string) string {
	a.mu.RLock()
	corrector := a.corrector
	a.mu.RUnlock()
	if corrector == nil {
		return text
	}
	return corrector.Apply(text)
}

func (a *Assembler) seed(corrected string) string {
	out := capitalizeFirst(corrected)
	if !hasTerminalPunctuation(out) && looksCompleteClause(out) {
		out += "."
	}
	return out
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

func hasTerminalPunctuation(text string) bool {
	trimmed := strings.TrimRight(text, " \t")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

func looksCompleteClause(text string) bool {
	words := strings.Fields(text)
	if len(words) < 3 {
		return false
	}
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:\"'"))
		if _, ok := linkingVerbs[cleaned]; ok {
			return true
		}
	}
	return false
}
