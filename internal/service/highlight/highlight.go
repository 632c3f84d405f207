// Package highlight classifies spans of caption text for the HTML overlay
// and detects alert keywords.
package highlight

import (
	"html/template"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"scanner-caption-service/internal/service/codes"
	"scanner-caption-service/internal/service/lookup"
	"scanner-caption-service/internal/service/phonetic"
)

// Span classes, used as CSS classes alongside "hl".
const (
	ClassAlert  = "alert"
	ClassUnit   = "unit"
	ClassTen    = "ten"
	ClassLookup = "lookup"
	ClassLoc    = "loc"
)

// DefaultAlertKeywords are the phrases that mark a caption as urgent.
var DefaultAlertKeywords = []string{
	"Code 3", "Code 20", "Code 30", "Code 33",
	"Code 6A", "Code 6D", "Code 6F", "Code 6H", "Code 6M",
	"10-71", "10-72", "10-53", "10-54", "10-55", "10-56", "10-57",
	"10-80", "10-45",
}

// phoneticUnits lets "X-ray" also match "Xray" and "X ray".
var phoneticUnits = func() []string {
	words := phonetic.Words()
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ReplaceAll(regexp.QuoteMeta(w), "-", `[- ]?`)
	}
	return out
}()

const unitNumber = `(?:\d{1,4}|one|won|two|to|too|three|four|for|ford|forth|five|six|seven|eight|ate|nine|ten)`

var (
	units = `(?:` + strings.Join(phoneticUnits, "|") + `)`

	unitMultiPattern  = regexp.MustCompile(`(?i)\b(?:\d{1,2}\s*)?` + units + `(?:\s*` + units + `){1,4}\s*\d{1,4}\b`)
	unitSpacedPattern = regexp.MustCompile(`(?i)\b` + units + `\s+` + unitNumber + `\b`)
	unitJoinedPattern = regexp.MustCompile(`(?i)\b(` + units + `)(\d{2,4})\b`)

	// tenCodePattern leaves a detached suffix out of the span so that
	// "10-97 at" only marks the code.
	tenCodePattern  = regexp.MustCompile(`(?i)\b(?:(?:10|11)\s*[- ]\s*\d{1,3}[A-Z]{0,3}|(?:10|11)\d{1,3}[A-Z]{0,3}|911UNK|904|952)\b`)
	penalRefPattern = regexp.MustCompile(`(?i)\bPC\s*\d{1,4}(?:\.\d+)?[a-z]?(?:\([^)]+\))*`)
)

// Config lists the configurable keyword sets.
type Config struct {
	AlertKeywords []string
	Locations     []string
}

// DefaultConfig returns the built-in alert keywords and no locations.
func DefaultConfig() Config {
	return Config{AlertKeywords: DefaultAlertKeywords}
}

// Highlighter marks up caption text. It is immutable and safe for
// concurrent use.
type Highlighter struct {
	alerts    *regexp.Regexp
	locations *regexp.Regexp
}

// New compiles the keyword sets in cfg.
func New(cfg Config) *Highlighter {
	return &Highlighter{
		alerts:    wordList(cfg.AlertKeywords),
		locations: wordList(cfg.Locations),
	}
}

func wordList(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// ContainsAlert reports whether text mentions an alert keyword.
func (h *Highlighter) ContainsAlert(text string) bool {
	if text == "" || h.alerts == nil {
		return false
	}
	return h.alerts.MatchString(text)
}

type span struct {
	start, end int
	class      string
	// digits is set for a joined callsign carrying a 100-series code
	// ("Adam1123"), rendered as unit "Adam 1" and code "123".
	digits int
}

// HTML returns text escaped for HTML with recognized spans wrapped in
// <span class='hl CLASS'>. Earlier classes win where matches overlap:
// alerts, unit callsigns, the lookup trigger, ten/eleven codes, penal
// references and locations.
func (h *Highlighter) HTML(text string) template.HTML {
	if text == "" {
		return ""
	}

	var spans []span
	add := func(re *regexp.Regexp, class string) {
		if re == nil {
			return
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = addSpan(spans, span{start: loc[0], end: loc[1], class: class})
		}
	}

	add(h.alerts, ClassAlert)
	add(unitMultiPattern, ClassUnit)
	add(unitSpacedPattern, ClassUnit)
	for _, m := range unitJoinedPattern.FindAllStringSubmatchIndex(text, -1) {
		s := span{start: m[0], end: m[1], class: ClassUnit}
		if splitJoinedDigits(text[m[4]:m[5]]) {
			s.digits = m[4]
		}
		spans = addSpan(spans, s)
	}
	add(lookup.TriggerPattern, ClassLookup)
	add(tenCodePattern, ClassTen)
	add(penalRefPattern, ClassTen)
	add(codes.PenalSuffixPattern, ClassTen)
	add(h.locations, ClassLoc)

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(template.HTMLEscapeString(text[last:s.start]))
		if s.digits > 0 {
			writeSpan(&b, ClassUnit, text[s.start:s.digits]+" "+text[s.digits:s.digits+1])
			b.WriteByte(' ')
			writeSpan(&b, ClassTen, text[s.digits+1:s.end])
		} else {
			writeSpan(&b, s.class, text[s.start:s.end])
		}
		last = s.end
	}
	b.WriteString(template.HTMLEscapeString(text[last:]))
	return template.HTML(b.String())
}

func addSpan(spans []span, s span) []span {
	if s.end <= s.start {
		return spans
	}
	for _, o := range spans {
		if s.start < o.end && o.start < s.end {
			return spans
		}
	}
	return append(spans, s)
}

func writeSpan(b *strings.Builder, class, text string) {
	b.WriteString("<span class='hl ")
	b.WriteString(class)
	b.WriteString("'>")
	b.WriteString(template.HTMLEscapeString(text))
	b.WriteString("</span>")
}

// splitJoinedDigits recognizes "1123" in "Adam1123" as unit 1 followed by a
// 100-series code.
func splitJoinedDigits(digits string) bool {
	if len(digits) != 4 {
		return false
	}
	n, err := strconv.Atoi(digits[1:])
	return err == nil && n >= 100 && n <= 199
}
