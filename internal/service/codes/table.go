// Package codes holds the radio code tables and the annotator that rewrites
// recognized shorthand into text with human-readable meanings.
package codes

import (
	"strings"
)

// Table maps ten/eleven codes and penal-code sections to their meanings.
// A Table is immutable once built and safe for concurrent reads.
type Table struct {
	tenEleven map[string]string
	penal     map[string]string
}

// NewTable builds a table from the given mappings. Ten/eleven keys are
// normalized with NormalizeKey; penal keys are stored as given.
func NewTable(tenEleven, penal map[string]string) *Table {
	t := &Table{
		tenEleven: make(map[string]string, len(tenEleven)),
		penal:     make(map[string]string, len(penal)),
	}
	for k, v := range tenEleven {
		if k = NormalizeKey(k); k != "" && v != "" {
			t.tenEleven[k] = v
		}
	}
	for k, v := range penal {
		if k = strings.TrimSpace(k); k != "" && v != "" {
			t.penal[k] = v
		}
	}
	return t
}

// DefaultTable returns the built-in code table.
func DefaultTable() *Table {
	return NewTable(defaultTenElevenCodes, defaultPenalCodes)
}

// Merge returns a new table with the entries of t overlaid by the given
// mappings.
func (t *Table) Merge(tenEleven, penal map[string]string) *Table {
	ten := make(map[string]string, len(t.tenEleven)+len(tenEleven))
	for k, v := range t.tenEleven {
		ten[k] = v
	}
	for k, v := range tenEleven {
		ten[k] = v
	}
	pc := make(map[string]string, len(t.penal)+len(penal))
	for k, v := range t.penal {
		pc[k] = v
	}
	for k, v := range penal {
		pc[k] = v
	}
	return NewTable(ten, pc)
}

// Meaning returns the meaning of a ten/eleven code. The code is normalized
// before lookup.
func (t *Table) Meaning(code string) (string, bool) {
	m, ok := t.tenEleven[NormalizeKey(code)]
	return m, ok
}

// Has reports whether the normalized code is in the table.
func (t *Table) Has(code string) bool {
	_, ok := t.Meaning(code)
	return ok
}

// PenalMeaning looks up a penal-code section, exact match first and then
// lower-cased.
func (t *Table) PenalMeaning(section string) (string, bool) {
	if m, ok := t.penal[section]; ok {
		return m, true
	}
	m, ok := t.penal[strings.ToLower(section)]
	return m, ok
}

// Len returns the number of ten/eleven and penal entries.
func (t *Table) Len() (tenEleven, penal int) {
	return len(t.tenEleven), len(t.penal)
}

var defaultTenElevenCodes = map[string]string{
	"904":    "Fire (specify)",
	"911UNK": "Unknown 911 calls",
	"952":    "Report on conditions",

	"10-1":    "Receiving poorly",
	"10-2":    "Receiving OK",
	"10-3":    "Change channels",
	"10-4":    "Message received and understood",
	"10-5":    "Relay to",
	"10-6":    "Busy, standby",
	"10-7":    "Out of service",
	"10-7B":   "Out of service, personal",
	"10-7CT":  "Out of service, court",
	"10-7FU":  "Out of service, follow up",
	"10-7OD":  "Off duty",
	"10-7RW":  "Out of service, report writing",
	"10-7T":   "Out of service, training",
	"10-8":    "In service",
	"10-8FU":  "Follow up, but available",
	"10-9":    "Repeat",
	"10-10":   "Out of service, home",
	"10-12":   "Visitor or official present",
	"10-14":   "Escort",
	"10-15":   "Prisoner in custody",
	"10-16":   "Pick-up",
	"10-19":   "En-route to station",
	"10-20":   "Location",
	"10-21":   "Phone",
	"10-22":   "Cancel",
	"10-23":   "Standby",
	"10-27":   "Request driver license info",
	"10-28":   "Request registration info",
	"10-29":   "Check wanted vehicle or property",
	"10-29A":  "Warrant check",
	"10-29C":  "Complete check (warrants & history)",
	"10-32":   "Drowning",
	"10-33A":  "Audible alarm",
	"10-33S":  "Silent alarm",
	"10-34":   "Open door",
	"10-35":   "Open window",
	"10-36":   "Confidential Info",
	"10-45":   "Injured person",
	"10-46":   "Sick person",
	"10-49":   "En route to event",
	"10-50":   "Take a report",
	"10-51":   "Intoxicated person",
	"10-53":   "Person down",
	"10-54":   "Possible dead body",
	"10-55":   "Coroner’s case",
	"10-56":   "Suicide",
	"10-56A":  "Attempted suicide",
	"10-57":   "Firearms discharge",
	"10-58":   "Garbage complaint",
	"10-62":   "Meet the citizen",
	"10-62FD": "Citizen flag-down",
	"10-65":   "Missing person",
	"10-65F":  "Found missing person",
	"10-65J":  "Missing juvenile",
	"10-65JX": "Missing female juvenile",
	"10-65MH": "Missing person, mentally handicapped",
	"10-66":   "Suspicious person",
	"10-66P":  "Suspicious package",
	"10-66W":  "Suspicious person with a weapon",
	"10-66X":  "Suspicious female",
	"10-67":   "Person calling for help",
	"10-70":   "Prowler",
	"10-71":   "Person shot",
	"10-72":   "Person stabbed",
	"10-73":   "How do you receive?",
	"10-80":   "Explosion",
	"10-86":   "Any traffic?",
	"10-87":   "Meet the officer",
	"10-91":   "Stray animal",
	"10-91A":  "Vicious animal",
	"10-91B":  "Noisy animal",
	"10-91C":  "Injured animal",
	"10-91D":  "Dead animal",
	"10-95":   "Pedestrian stop",
	"10-96":   "Pedestrian stop – High Risk",
	"10-97":   "Arrived at assignment",
	"10-98":   "Completed last assignment",

	"11-24": "Abandoned vehicle",
	"11-25": "Traffic hazard",
	"11-54": "Suspicious vehicle",
	"11-79": "Vehicle accident - Ambulance en route",
	"11-80": "Vehicle accident - Major injury",
	"11-81": "Vehicle accident - Minor injury",
	"11-82": "Vehicle accident - Property damage only",
	"11-83": "Vehicle accident - Unknown injury",
	"11-84": "Traffic control",
	"11-85": "Tow truck needed",
	"11-95": "Vehicle stop",
	"11-96": "Vehicle stop – High Risk",
	"11-98": "Meet (another officer / RP / etc.)",
}

var defaultPenalCodes = map[string]string{
	"835":       "Method of Arrest",
	"835a":      "Effecting Arrest; Resistance",
	"484":       "Theft (DEFINED)",
	"487(a)":    "Grand Theft (FELONY)",
	"488":       "Petty Theft (MISDEMEANOR)",
	"211":       "Robbery (FELONY)",
	"215":       "Carjacking (FELONY)",
	"240":       "Assault (MISDEMEANOR)",
	"242":       "Battery (MISDEMEANOR)",
	"243(f)(4)": "Serious bodily injury defined (FELONY)",
	"245":       "Assault with a deadly weapon (FELONY)",
	"459":       "Burglary (FELONY)",
	"602":       "Trespassing (MISDEMEANOR)",
}
