// Package lookup decodes names spelled over the radio with the phonetic
// alphabet after a 10-28 records request.
package lookup

import (
	"regexp"
	"strings"
	"time"

	"scanner-caption-service/internal/service/phonetic"
)

var (
	// TriggerPattern matches a spoken or written 10-28 request.
	TriggerPattern = regexp.MustCompile(`(?i)\b(10[\s-]?28|1028|ten\s+twenty\s+eight|ten\s+28)\b`)

	// StopPattern matches phrases that end a spelling session: the record
	// check came back or the dispatcher moved on to the date of birth.
	StopPattern = regexp.MustCompile(`(?i)\b(dob|d\.o\.b|date\s+of\s+birth|birth\s+date|cii|c\.i\.i|returns?|returned|returning|comes?\s+back|no\s+record|record|ro|wants?|probation|parole|negative|clear|confirmed)\b`)

	// SeparatorPattern matches phrases that end one spelled word.
	SeparatorPattern = regexp.MustCompile(`(?i)\b(space|last\s+name|surname|family\s+name|first\s+name|middle\s+name|last)\b`)

	numberToken = regexp.MustCompile(`(?i)^(?:\d{1,4}|one|won|two|to|too|three|four|for|ford|forth|five|six|seven|eight|ate|nine|ten)$`)
)

// Config holds decoder settings.
type Config struct {
	// Window is how long a trigger keeps the decoder listening.
	Window time.Duration
	// MinLettersPerWord is the shortest run of letters kept as a word.
	MinLettersPerWord int
	// MaxWords and MaxLetters bound the buffered state.
	MaxWords   int
	MaxLetters int
}

// DefaultConfig returns the standard decoder settings.
func DefaultConfig() Config {
	return Config{
		Window:            14 * time.Second,
		MinLettersPerWord: 3,
		MaxWords:          8,
		MaxLetters:        32,
	}
}

// Decoder accumulates spelled letters across consecutive final transcripts.
// It is not safe for concurrent use; finals must be fed in arrival order.
type Decoder struct {
	cfg Config

	activeUntil time.Time
	words       []string
	letters     []byte
}

// NewDecoder creates an idle decoder. Zero values in cfg take the defaults.
func NewDecoder(cfg Config) *Decoder {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinLettersPerWord <= 0 {
		cfg.MinLettersPerWord = def.MinLettersPerWord
	}
	if cfg.MaxWords < 2 {
		cfg.MaxWords = def.MaxWords
	}
	if cfg.MaxLetters <= 0 {
		cfg.MaxLetters = def.MaxLetters
	}
	return &Decoder{cfg: cfg}
}

// Active reports whether a lookup window is open at now.
func (d *Decoder) Active(now time.Time) bool {
	return !d.activeUntil.IsZero() && !now.After(d.activeUntil)
}

// Reset returns the decoder to idle.
func (d *Decoder) Reset() {
	d.activeUntil = time.Time{}
	d.words = d.words[:0]
	d.letters = d.letters[:0]
}

// ProcessFinal feeds one final transcript. It returns the first two decoded
// words joined by a space when a lookup completes.
//
// Text after the first stop phrase is ignored. The remainder is split at
// separator phrases; each separator and the end of the transcript close the
// current run of letters.
func (d *Decoder) ProcessFinal(text string, now time.Time) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	if TriggerPattern.MatchString(text) {
		if until := now.Add(d.cfg.Window); until.After(d.activeUntil) {
			d.activeUntil = until
		}
	}

	if !d.Active(now) {
		d.Reset()
		return "", false
	}

	stopped := false
	if loc := StopPattern.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
		stopped = true
	}

	pieces := splitAt(SeparatorPattern, text)
	for i, piece := range pieces {
		d.addLetters(extractLetters(piece))
		if i < len(pieces)-1 {
			d.finishWord()
		}
	}

	out, ok := d.emitIfReady()
	if stopped {
		d.Reset()
	}
	return out, ok
}

func (d *Decoder) addLetters(letters []byte) {
	for _, l := range letters {
		if len(d.letters) >= d.cfg.MaxLetters {
			return
		}
		d.letters = append(d.letters, l)
	}
}

func (d *Decoder) finishWord() {
	if len(d.letters) == 0 {
		return
	}
	w := string(d.letters)
	d.letters = d.letters[:0]
	if len(w) >= d.cfg.MinLettersPerWord && len(d.words) < d.cfg.MaxWords {
		d.words = append(d.words, w)
	}
}

func (d *Decoder) emitIfReady() (string, bool) {
	d.finishWord()
	if len(d.words) < 2 {
		return "", false
	}
	out := d.words[0] + " " + d.words[1]
	d.Reset()
	return out, true
}

// splitAt returns the text between matches of re.
func splitAt(re *regexp.Regexp, text string) []string {
	locs := re.FindAllStringIndex(text, -1)
	pieces := make([]string, 0, len(locs)+1)
	last := 0
	for _, loc := range locs {
		pieces = append(pieces, text[last:loc[0]])
		last = loc[1]
	}
	return append(pieces, text[last:])
}

func normalizeToken(tok string) string {
	return strings.Trim(strings.ToLower(tok), ".,;:?!\"'")
}

// extractLetters scans tokens left to right. A phonetic word followed by a
// number-like token is a callsign ("Adam 12") and both tokens are skipped.
func extractLetters(piece string) []byte {
	tokens := strings.Fields(piece)
	var out []byte
	for i := 0; i < len(tokens); i++ {
		tok := normalizeToken(tokens[i])
		if tok == "x" && i+1 < len(tokens) && normalizeToken(tokens[i+1]) == "ray" {
			tok = "xray"
			i++
		}
		letter, ok := phonetic.Letter(tok)
		if !ok {
			continue
		}
		if i+1 < len(tokens) && numberToken.MatchString(normalizeToken(tokens[i+1])) {
			i++
			continue
		}
		out = append(out, letter)
	}
	return out
}
