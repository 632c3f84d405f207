// Package stt defines the interface for Speech-to-Text adapters.
package stt

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned when the transcription stream ended without an
// error. A live feed never ends on its own, so callers treat it as fatal.
var ErrStreamClosed = errors.New("transcription stream closed")

// ErrNotStarted is returned by SendAudio and Listen before Start.
var ErrNotStarted = errors.New("transcription stream not started")

// Callback receives transcript results from the STT provider. Calls are made
// from the Listen goroutine, one at a time, in arrival order.
type Callback interface {
	// OnPartial is called when an interim/partial transcript is received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received.
	OnFinal(text string, confidence float64)

	// OnEndOfUtterance is called when the provider detects the speaker
	// stopped talking.
	OnEndOfUtterance()

	// OnError is called when the stream fails.
	OnError(err error)
}

// Adapter defines the interface for STT providers (Deepgram, Google, mock).
type Adapter interface {
	// Start opens a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends 16-bit little-endian PCM to the provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Listen reads results and invokes the callback until the stream ends.
	// It returns nil after Close and the stream error otherwise.
	Listen(ctx context.Context) error

	// Close ends the session and releases resources.
	Close() error
}
