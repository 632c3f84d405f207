// Package models defines the data structures for caption events.
package models

// Caption event types, also used as Kafka topic suffixes.
const (
	EventTypePartial = "caption.partial"
	EventTypeFinal   = "caption.final"
)

// CaptionEvent is published for every transcript the pipeline captions.
type CaptionEvent struct {
	EventType   string  `json:"eventType"`
	SessionID   string  `json:"sessionId"`
	UtteranceID string  `json:"utteranceId"`
	Timestamp   int64   `json:"timestamp"`
	Text        string  `json:"text"`
	Caption     string  `json:"caption"`
	Confidence  float64 `json:"confidence,omitempty"`
	Lookup      string  `json:"lookup,omitempty"`
	Alert       bool    `json:"alert"`
	// Forced marks an interim logged because no final arrived in time.
	Forced bool `json:"forced,omitempty"`
}

// IsFinal reports whether the event carries a final transcript.
func (e CaptionEvent) IsFinal() bool {
	return e.EventType == EventTypeFinal
}
