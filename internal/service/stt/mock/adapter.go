// Package mock provides a mock STT adapter for running without provider
// credentials. It replays scripted radio traffic with progressive partial
// transcripts, exactly one final per utterance and an end-of-utterance signal.
package mock

import (
	"context"
	"sync"

	"scanner-caption-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances is a short loop of dispatch traffic.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"Adam 12", "Adam 12 show me", "Adam 12 show me ten ninety seven"},
		Final:      "Adam 12 show me ten ninety seven",
		Confidence: 0.93,
	},
	{
		Partials:   []string{"requesting", "requesting 10-28 on"},
		Final:      "requesting 10-28 on adam boy charles space david edward frank",
		Confidence: 0.88,
	},
	{
		Partials:   []string{"comes back", "comes back clear"},
		Final:      "comes back clear no record",
		Confidence: 0.95,
	},
	{
		Partials:   []string{"Lincoln 7", "Lincoln 7 code 3"},
		Final:      "Lincoln 7 code 3 to a 211 PC in progress",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"I'm"},
		Final:      "I'm 97 at the scene",
		Confidence: 0.9,
	},
}

// Config controls the replay pace.
type Config struct {
	// FramesPerEvent is how many audio frames advance the script one step.
	FramesPerEvent int
	Utterances     []SimulatedUtterance
}

// DefaultConfig advances every 25 frames, half a second of 20 ms frames.
func DefaultConfig() Config {
	return Config{FramesPerEvent: 25, Utterances: DefaultUtterances}
}

type eventKind int

const (
	eventPartial eventKind = iota
	eventFinal
)

type event struct {
	kind       eventKind
	text       string
	confidence float64
}

// Adapter implements stt.Adapter with scripted responses. SendAudio advances
// the script; Listen delivers the resulting events in order.
type Adapter struct {
	cfg Config

	mu        sync.Mutex
	cb        stt.Callback
	frames    int
	uttIndex  int
	step      int
	closed    bool
	events    chan event
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new mock STT adapter.
func New(cfg Config) *Adapter {
	if cfg.FramesPerEvent <= 0 {
		cfg.FramesPerEvent = 1
	}
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	return &Adapter{
		cfg:    cfg,
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio counts frames and queues the next scripted result every
// FramesPerEvent frames.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	a.frames++
	if a.frames%a.cfg.FramesPerEvent != 0 {
		return nil
	}

	utt := a.cfg.Utterances[a.uttIndex%len(a.cfg.Utterances)]
	if a.step < len(utt.Partials) {
		a.enqueueLocked(event{kind: eventPartial, text: utt.Partials[a.step]})
		a.step++
		return nil
	}
	a.enqueueLocked(event{kind: eventFinal, text: utt.Final, confidence: utt.Confidence})
	a.step = 0
	a.uttIndex++
	return nil
}

func (a *Adapter) enqueueLocked(ev event) {
	select {
	case a.events <- ev:
	default:
	}
}

// Listen delivers queued results until Close or ctx cancellation.
func (a *Adapter) Listen(ctx context.Context) error {
	a.mu.Lock()
	cb := a.cb
	a.mu.Unlock()
	if cb == nil {
		return stt.ErrNotStarted
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.events:
			deliver(cb, ev)
		case <-a.done:
			for {
				select {
				case ev := <-a.events:
					deliver(cb, ev)
				default:
					return nil
				}
			}
		}
	}
}

func deliver(cb stt.Callback, ev event) {
	switch ev.kind {
	case eventPartial:
		cb.OnPartial(ev.text)
	case eventFinal:
		cb.OnFinal(ev.text, ev.confidence)
		// Signal end of utterance (speaker stopped talking)
		cb.OnEndOfUtterance()
	}
}

// Close ends the mock session. An utterance cut off mid-way still gets its
// final.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.step > 0 && a.cb != nil {
		utt := a.cfg.Utterances[a.uttIndex%len(a.cfg.Utterances)]
		a.enqueueLocked(event{kind: eventFinal, text: utt.Final, confidence: utt.Confidence})
		a.step = 0
		a.uttIndex++
	}
	a.closeOnce.Do(func() { close(a.done) })
	return nil
}
