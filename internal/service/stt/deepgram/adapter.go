// Package deepgram provides a Deepgram live streaming Speech-to-Text adapter.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/service/phonetic"
	"scanner-caption-service/internal/service/stt"
)

// ErrMissingAPIKey is returned by New without an API key.
var ErrMissingAPIKey = errors.New("deepgram: api key is required")

// DefaultKeyterms bias recognition toward phonetic-alphabet words, radio
// vocabulary and common spoken codes.
var DefaultKeyterms = append(phonetic.Words(),
	"Xray",
	"dispatch", "copy", "repeat", "standby", "code",
	"ten four", "ten-seven", "ten eight", "ten twenty eight",
	"eleven twenty five",
)

// Config holds Deepgram streaming configuration.
type Config struct {
	APIKey         string
	URL            string
	Model          string
	Language       string
	Encoding       string
	SampleRate     int
	Channels       int
	SmartFormat    bool
	Numerals       bool
	InterimResults bool
	Endpointing    time.Duration
	UtteranceEnd   time.Duration
	Keyterms       []string

	HandshakeTimeout time.Duration
	// CloseGrace is how long Listen keeps reading trailing results after
	// Close sends CloseStream.
	CloseGrace time.Duration
}

// DefaultConfig returns the streaming settings tuned for scanner audio.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://api.deepgram.com/v1/listen",
		Model:            "nova-3",
		Language:         "en-US",
		Encoding:         "linear16",
		SampleRate:       16000,
		Channels:         1,
		SmartFormat:      true,
		Numerals:         true,
		InterimResults:   true,
		Endpointing:      time.Second,
		UtteranceEnd:     time.Second,
		Keyterms:         DefaultKeyterms,
		HandshakeTimeout: 10 * time.Second,
		CloseGrace:       3 * time.Second,
	}
}

// ListenURL returns the streaming endpoint with the session parameters.
func (c Config) ListenURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parse deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", c.Model)
	q.Set("language", c.Language)
	q.Set("encoding", c.Encoding)
	q.Set("sample_rate", strconv.Itoa(c.SampleRate))
	q.Set("channels", strconv.Itoa(c.Channels))
	q.Set("smart_format", strconv.FormatBool(c.SmartFormat))
	q.Set("numerals", strconv.FormatBool(c.Numerals))
	q.Set("interim_results", strconv.FormatBool(c.InterimResults))
	if c.Endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(c.Endpointing.Milliseconds(), 10))
	}
	if c.UtteranceEnd > 0 {
		q.Set("utterance_end_ms", strconv.FormatInt(c.UtteranceEnd.Milliseconds(), 10))
	}
	for _, k := range c.Keyterms {
		if k = strings.TrimSpace(k); k != "" {
			q.Add("keyterm", k)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Adapter implements stt.Adapter over the Deepgram websocket API.
type Adapter struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	conn    *websocket.Conn
	cb      stt.Callback
	writeMu sync.Mutex
	closed  atomic.Bool
}

// New creates a Deepgram adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Adapter{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logging.WithComponent("deepgram"),
	}, nil
}

// Start opens the websocket session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	endpoint, err := a.cfg.ListenURL()
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+a.cfg.APIKey)

	conn, resp, err := a.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("deepgram dial: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("deepgram dial: %w", err)
	}
	a.conn = conn
	a.cb = cb

	a.logger.Info().
		Str("model", a.cfg.Model).
		Int("sampleRate", a.cfg.SampleRate).
		Int("keyterms", len(a.cfg.Keyterms)).
		Msg("Deepgram stream opened")
	return nil
}

// SendAudio sends one binary PCM frame.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	if a.conn == nil {
		return stt.ErrNotStarted
	}
	if a.closed.Load() {
		return nil
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		a.conn.SetWriteDeadline(deadline)
	}
	return a.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Listen reads results until the connection closes. Malformed messages are
// dropped.
func (a *Adapter) Listen(ctx context.Context) error {
	if a.conn == nil {
		return stt.ErrNotStarted
	}
	defer a.conn.Close()

	stop := context.AfterFunc(ctx, func() {
		a.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			if a.closed.Load() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.cb.OnError(err)
			return fmt.Errorf("deepgram read: %w", err)
		}

		res, err := parseMessage(data)
		if err != nil {
			a.logger.Debug().Err(err).Int("bytes", len(data)).Msg("Dropping malformed message")
			continue
		}
		switch {
		case res.utteranceEnd:
			a.cb.OnEndOfUtterance()
		case res.text == "":
		case res.final:
			a.cb.OnFinal(res.text, res.confidence)
		default:
			a.cb.OnPartial(res.text)
		}
	}
}

// Close asks Deepgram to flush and end the stream. Listen returns once the
// server closes the connection or CloseGrace elapses.
func (a *Adapter) Close() error {
	if a.conn == nil || a.closed.Swap(true) {
		return nil
	}
	a.writeMu.Lock()
	err := a.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	a.writeMu.Unlock()
	a.conn.SetReadDeadline(time.Now().Add(a.cfg.CloseGrace))
	if err != nil {
		return fmt.Errorf("deepgram close stream: %w", err)
	}
	return nil
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type channel struct {
	Alternatives []alternative `json:"alternatives"`
}

type message struct {
	Type         string          `json:"type"`
	IsFinal      bool            `json:"is_final"`
	SpeechFinal  bool            `json:"speech_final"`
	Channel      json.RawMessage `json:"channel"`
	Alternatives []alternative   `json:"alternatives"`
}

type result struct {
	text         string
	confidence   float64
	final        bool
	utteranceEnd bool
}

// parseMessage extracts the best transcript. The channel field arrives as an
// object or as a list of objects; top-level alternatives are the fallback.
func parseMessage(data []byte) (result, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return result{}, err
	}
	if msg.Type == "UtteranceEnd" {
		return result{utteranceEnd: true}, nil
	}

	res := result{final: msg.IsFinal || msg.SpeechFinal}

	var alts []alternative
	raw := bytes.TrimSpace(msg.Channel)
	switch {
	case len(raw) > 0 && raw[0] == '{':
		var ch channel
		if err := json.Unmarshal(raw, &ch); err == nil {
			alts = ch.Alternatives
		}
	case len(raw) > 0 && raw[0] == '[':
		var chs []channel
		if err := json.Unmarshal(raw, &chs); err == nil && len(chs) > 0 {
			alts = chs[0].Alternatives
		}
	}
	if len(alts) == 0 {
		alts = msg.Alternatives
	}
	if len(alts) == 0 {
		return res, nil
	}
	res.text = strings.TrimSpace(alts[0].Transcript)
	res.confidence = alts[0].Confidence
	return res, nil
}
