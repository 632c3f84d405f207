// Package phonetic holds the police radio phonetic alphabet shared by the
// lookup decoder, the overlay highlighter and STT keyterm biasing.
package phonetic

import "strings"

// Entry is one spoken word and the letter it spells.
type Entry struct {
	Word   string
	Letter byte
}

var alphabet = []Entry{
	{"Adam", 'A'}, {"Boy", 'B'}, {"Charles", 'C'}, {"David", 'D'}, {"Edward", 'E'},
	{"Frank", 'F'}, {"George", 'G'}, {"Henry", 'H'}, {"Ida", 'I'}, {"John", 'J'},
	{"King", 'K'}, {"Lincoln", 'L'}, {"Mary", 'M'}, {"Nora", 'N'}, {"Ocean", 'O'},
	{"Paul", 'P'}, {"Queen", 'Q'}, {"Robert", 'R'}, {"Sam", 'S'}, {"Tom", 'T'},
	{"Union", 'U'}, {"Victor", 'V'}, {"William", 'W'}, {"X-ray", 'X'},
	{"Yellow", 'Y'}, {"Zebra", 'Z'},
	// NATO spelling heard on mutual-aid channels.
	{"Echo", 'E'},
}

var letters = func() map[string]byte {
	m := make(map[string]byte, len(alphabet)+1)
	for _, e := range alphabet {
		m[key(e.Word)] = e.Letter
	}
	m["x"] = 'X'
	return m
}()

// Alphabet returns a copy of the alphabet in letter order, followed by
// aliases.
func Alphabet() []Entry {
	return append([]Entry(nil), alphabet...)
}

// Words returns the spoken words of Alphabet.
func Words() []string {
	out := make([]string, len(alphabet))
	for i, e := range alphabet {
		out[i] = e.Word
	}
	return out
}

// key folds a token to the form Letter expects: lower case, no hyphens.
func key(tok string) string {
	return strings.ReplaceAll(strings.ToLower(tok), "-", "")
}

// Letter returns the letter spelled by tok. A bare "x" also counts.
func Letter(tok string) (byte, bool) {
	l, ok := letters[key(tok)]
	return l, ok
}
