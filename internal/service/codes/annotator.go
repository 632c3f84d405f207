package codes

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var numberWordValues = map[string]int{
	"zero": 0, "oh": 0,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred": 100,
}

// numberWordAlt is an alternation of every number word, longest first so a
// word never matches as the prefix of a longer one.
var numberWordAlt = func() string {
	words := make([]string, 0, len(numberWordValues))
	for w := range numberWordValues {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	return strings.Join(words, "|")
}()

var numberPhrase = `(?:` + numberWordAlt + `)(?:[-\s]+(?:` + numberWordAlt + `)){0,3}`

var (
	joinedCodePattern = regexp.MustCompile(`(?i)\b(10|11)(\d{1,3})([A-Z]{0,3})\b`)
	spokenCodePattern = regexp.MustCompile(`(?i)\b(ten|eleven)\s+(` + numberPhrase + `)\b`)

	// NumericCodePattern matches written ten/eleven codes in spaced, hyphenated
	// or joined form plus the bare special codes.
	NumericCodePattern = regexp.MustCompile(`(?i)\b(?:(?:10|11)\s*[- ]\s*\d{1,3}(?:\s*[A-Z]{1,3})?|(?:10|11)\d{1,3}[A-Z]{0,3}|911UNK|904|952)\b`)
	separatedCodeHead  = regexp.MustCompile(`(?i)^(?:10|11)\s*[- ]\s*\d{1,3}`)

	firstPersonNumeric = regexp.MustCompile(`(?i)\b(I['’]?m|I am|we['’]?re|we are)\s+(\d{1,3})\b`)
	firstPersonWords   = regexp.MustCompile(`(?i)\b(I['’]?m|I am|we['’]?re|we are)\s+(` + numberPhrase + `)\b`)
	codeContinuation   = regexp.MustCompile(`^\s*[- ]?\s*\d`)

	penalSection = `\d{1,4}(?:\.\d+)?[a-z]?(?:\([^)]+\))*`

	// PenalSuffixPattern matches "<section> PC".
	PenalSuffixPattern = regexp.MustCompile(`(?i)\b(` + penalSection + `)\s*PC\b`)
	// PenalPrefixPattern matches "PC <section>". The section end is checked by
	// the caller because a closing parenthesis is not a word boundary.
	PenalPrefixPattern = regexp.MustCompile(`(?i)\bPC\s*(` + penalSection + `)`)

	whitespaceRun   = regexp.MustCompile(`\s+`)
	detachedSuffix  = regexp.MustCompile(`\b(10|11)-(\d{1,3})-([A-Z]{1,3})\b`)
	specialCodeKeys = map[string]bool{"904": true, "952": true, "911UNK": true}
)

// NormalizeKey canonicalizes a written code for table lookup: whitespace is
// collapsed, hyphenation made canonical, letters upper-cased and a detached
// letter suffix folded into the numeric body ("10-7 CT" → "10-7CT").
func NormalizeKey(raw string) string {
	up := strings.ToUpper(strings.TrimSpace(raw))
	if specialCodeKeys[up] {
		return up
	}
	up = whitespaceRun.ReplaceAllString(up, " ")
	up = strings.ReplaceAll(up, " - ", "-")
	up = strings.ReplaceAll(up, " -", "-")
	up = strings.ReplaceAll(up, "- ", "-")
	up = strings.ReplaceAll(up, " ", "-")
	return detachedSuffix.ReplaceAllString(up, "$1-$2$3")
}

// ParseNumberWords sums a phrase of English number words. "hundred"
// multiplies the running total (or 1 when nothing precedes it). It reports
// false when any token is not a number word.
func ParseNumberWords(phrase string) (int, bool) {
	tokens := strings.FieldsFunc(strings.ToLower(phrase), func(r rune) bool {
		return r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(tokens) == 0 {
		return 0, false
	}
	current := 0
	for _, tok := range tokens {
		v, ok := numberWordValues[tok]
		if !ok {
			return 0, false
		}
		if v == 100 {
			if current == 0 {
				current = 1
			}
			current *= 100
			continue
		}
		current += v
	}
	return current, true
}

// rule rewrites one match. It returns the replacement and true, or false to
// leave the match untouched. text is the full input and m the submatch
// indices, so a rule can inspect the surrounding context.
type rule func(text string, m []int) (string, bool)

func applyRule(re *regexp.Regexp, text string, fn rule) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		repl, ok := fn(text, m)
		if !ok {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(repl)
		last = m[1]
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

func annotation(meaning string) string {
	return " (" + meaning + ")"
}

func annotatedAt(text string, pos int, meaning string) bool {
	return strings.HasPrefix(text[pos:], annotation(meaning))
}

func group(text string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return text[m[2*n]:m[2*n+1]]
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Annotator appends code meanings to transcript text. Every annotation is
// gated by table membership; text that matches nothing is returned
// unchanged.
type Annotator struct {
	table  *Table
	stages []func(string) string
}

// NewAnnotator creates an annotator over the given table.
func NewAnnotator(t *Table) *Annotator {
	a := &Annotator{table: t}
	a.stages = []func(string) string{
		a.normalizeJoined,
		a.convertSpoken,
		a.annotateNumeric,
		a.annotateFirstPerson,
		a.annotatePenal,
	}
	return a
}

// Annotate runs the full rewrite pipeline. It is idempotent: a code already
// followed by its meaning is not annotated again.
func (a *Annotator) Annotate(text string) string {
	if text == "" {
		return text
	}
	for _, stage := range a.stages {
		text = stage(text)
	}
	return text
}

// normalizeJoined rewrites "11098" to "11-98" when the hyphenated form is a
// known code.
func (a *Annotator) normalizeJoined(text string) string {
	return applyRule(joinedCodePattern, text, func(text string, m []int) (string, bool) {
		body, err := strconv.Atoi(group(text, m, 2))
		if err != nil {
			return "", false
		}
		candidate := fmt.Sprintf("%s-%d%s", group(text, m, 1), body, strings.ToUpper(group(text, m, 3)))
		if !a.table.Has(candidate) {
			return "", false
		}
		return candidate, true
	})
}

// convertSpoken rewrites "ten four" to "10-4" when the code is known.
func (a *Annotator) convertSpoken(text string) string {
	return applyRule(spokenCodePattern, text, func(text string, m []int) (string, bool) {
		prefix := "10"
		if strings.EqualFold(group(text, m, 1), "eleven") {
			prefix = "11"
		}
		n, ok := ParseNumberWords(group(text, m, 2))
		if !ok {
			return "", false
		}
		candidate := prefix + "-" + strconv.Itoa(n)
		if !a.table.Has(candidate) {
			return "", false
		}
		return candidate, true
	})
}

func (a *Annotator) annotateNumeric(text string) string {
	return applyRule(NumericCodePattern, text, func(text string, m []int) (string, bool) {
		raw := text[m[0]:m[1]]
		if meaning, ok := a.table.Meaning(raw); ok {
			if annotatedAt(text, m[1], meaning) {
				return "", false
			}
			return raw + annotation(meaning), true
		}

		// "10-8 in service": the trailing word is not a suffix, retry with
		// the bare code and keep the rest of the match as plain text.
		head := separatedCodeHead.FindString(raw)
		if head == "" || len(head) == len(raw) {
			return "", false
		}
		meaning, ok := a.table.Meaning(head)
		if !ok || annotatedAt(text, m[0]+len(head), meaning) {
			return "", false
		}
		return head + annotation(meaning) + raw[len(head):], true
	})
}

func (a *Annotator) annotateFirstPerson(text string) string {
	text = applyRule(firstPersonNumeric, text, func(text string, m []int) (string, bool) {
		if m[1] < len(text) && text[m[1]] == '-' {
			return "", false
		}
		n, err := strconv.Atoi(group(text, m, 2))
		if err != nil || startsCode(text, m, n) {
			return "", false
		}
		return a.shorthand(text, m, n)
	})
	return applyRule(firstPersonWords, text, func(text string, m []int) (string, bool) {
		if m[1] < len(text) && text[m[1]] == '-' {
			return "", false
		}
		n, ok := ParseNumberWords(group(text, m, 2))
		if !ok || startsCode(text, m, n) {
			return "", false
		}
		return a.shorthand(text, m, n)
	})
}

// startsCode reports whether a first-person 10 or 11 is the prefix of a
// written code such as "I'm 10 97".
func startsCode(text string, m []int, n int) bool {
	return (n == 10 || n == 11) && codeContinuation.MatchString(text[m[1]:])
}

func (a *Annotator) shorthand(text string, m []int, n int) (string, bool) {
	meaning, ok := a.table.Meaning("10-" + strconv.Itoa(n))
	if !ok || annotatedAt(text, m[1], meaning) {
		return "", false
	}
	return text[m[0]:m[1]] + annotation(meaning), true
}

func (a *Annotator) annotatePenal(text string) string {
	text = applyRule(PenalSuffixPattern, text, a.penalRule)
	return applyRule(PenalPrefixPattern, text, func(text string, m []int) (string, bool) {
		if m[1] < len(text) && isWordByte(text[m[1]]) {
			return "", false
		}
		return a.penalRule(text, m)
	})
}

func (a *Annotator) penalRule(text string, m []int) (string, bool) {
	meaning, ok := a.table.PenalMeaning(group(text, m, 1))
	if !ok || annotatedAt(text, m[1], meaning) {
		return "", false
	}
	return text[m[0]:m[1]] + annotation(meaning), true
}
