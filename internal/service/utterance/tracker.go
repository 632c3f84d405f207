// Package utterance tracks the utterance being transcribed: its ID, its
// lifecycle and the interim text that is logged when no final arrives.
package utterance

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"
)

// State represents the lifecycle state of the current utterance.
type State int

const (
	// StateIdle - No utterance in progress.
	StateIdle State = iota
	// StateOpen - Interim results are arriving.
	StateOpen
	// StateFinalEmitted - A final committed the utterance.
	StateFinalEmitted
	// StateDropped - The stream failed before a final arrived.
	StateDropped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpen:
		return "OPEN"
	case StateFinalEmitted:
		return "FINAL_EMITTED"
	case StateDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the utterance is finished (final or dropped).
func (s State) IsTerminal() bool {
	return s == StateFinalEmitted || s == StateDropped
}

// Config holds the forced partial logging settings.
type Config struct {
	// ForceLogAfter is how long an interim must stay unchanged before it is
	// logged without a final.
	ForceLogAfter time.Duration
	// ForceLogMinInterval spaces forced entries apart.
	ForceLogMinInterval time.Duration
	// MinInterimChars is the shortest interim worth logging.
	MinInterimChars int
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		ForceLogAfter:       6 * time.Second,
		ForceLogMinInterval: 4 * time.Second,
		MinInterimChars:     8,
	}
}

// Tracker manages utterance lifecycles for one session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE ──Partial()──→ OPEN ──Final()──→ FINAL_EMITTED
//	                      │
//	                      └──Drop()──→ DROPPED
//
// A Partial or Final after a terminal state opens a new utterance with a
// fresh ID.
type Tracker struct {
	cfg       Config
	sessionID string
	gen       *Generator

	mu           sync.RWMutex
	id           string
	state        State
	openedAt     time.Time
	interim      string
	interimSince time.Time
	lastForced   time.Time
}

// NewTracker creates an idle tracker.
func NewTracker(sessionID string, gen *Generator, cfg Config) *Tracker {
	if gen == nil {
		gen = NewGenerator()
	}
	return &Tracker{
		cfg:       cfg,
		sessionID: sessionID,
		gen:       gen,
		state:     StateIdle,
	}
}

// UtteranceID returns the current utterance ID, empty while idle.
func (t *Tracker) UtteranceID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) openLocked(now time.Time) {
	if t.state == StateOpen {
		return
	}
	t.id = t.gen.Next(t.sessionID)
	t.state = StateOpen
	t.openedAt = now
	t.interim = ""
	t.interimSince = time.Time{}
}

// Partial records an interim result. It returns the utterance ID and, when
// an interim has stayed unchanged for ForceLogAfter, that stale interim so
// the caller can log it as a partial entry.
func (t *Tracker) Partial(text string, now time.Time) (id, stale string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.openLocked(now)

	if utf8.RuneCountInString(text) >= t.cfg.MinInterimChars && text != t.interim {
		t.interim = text
		t.interimSince = now
	}

	if t.interim != "" && !t.interimSince.IsZero() &&
		now.Sub(t.interimSince) >= t.cfg.ForceLogAfter &&
		now.Sub(t.lastForced) >= t.cfg.ForceLogMinInterval {
		stale = t.interim
		t.lastForced = now
		t.interim = ""
		t.interimSince = time.Time{}
	}
	return t.id, stale
}

// Final commits the current utterance, opening one first when no interim
// preceded it. It returns the utterance ID and the time since the utterance
// opened.
func (t *Tracker) Final(now time.Time) (id string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.openLocked(now)
	t.state = StateFinalEmitted
	t.interim = ""
	t.interimSince = time.Time{}
	return t.id, now.Sub(t.openedAt)
}

// Drop abandons an open utterance. It returns false when nothing was open.
func (t *Tracker) Drop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen {
		return false
	}
	t.state = StateDropped
	t.interim = ""
	t.interimSince = time.Time{}
	return true
}
