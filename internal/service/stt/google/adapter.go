// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/service/stt"
)

// Config holds Google streaming recognition settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	Model          string
	// Phrases boost recognition of radio vocabulary via a speech context.
	Phrases []string
	Boost   float32
}

// DefaultConfig returns settings matching the conditioned 16 kHz PCM feed.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
		Boost:          10,
	}
}

// parseAudioEncoding maps an upper-case encoding name, falling back to
// LINEAR16.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[name]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}

func (c Config) streamingConfig() *speechpb.StreamingRecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(c.AudioEncoding),
		SampleRateHertz:            c.SampleRateHz,
		LanguageCode:               c.LanguageCode,
		Model:                      c.Model,
		EnableAutomaticPunctuation: true,
	}
	if len(c.Phrases) > 0 {
		rc.SpeechContexts = []*speechpb.SpeechContext{{
			Phrases: c.Phrases,
			Boost:   c.Boost,
		}}
	}
	return &speechpb.StreamingRecognitionConfig{
		Config:         rc,
		InterimResults: c.InterimResults,
	}
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg    Config
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	cb     stt.Callback
	logger zerolog.Logger
	closed atomic.Bool
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google speech client: %w", err)
	}
	return &Adapter{
		cfg:    cfg,
		client: c,
		logger: logging.WithComponent("google-stt"),
	}, nil
}

// Start begins a streaming recognition session and sends the initial config.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}
	a.stream = stream
	a.cb = cb

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: a.cfg.streamingConfig(),
		},
	})
	if err != nil {
		return fmt.Errorf("send streaming config: %w", err)
	}
	a.logger.Info().
		Str("language", a.cfg.LanguageCode).
		Int32("sampleRate", a.cfg.SampleRateHz).
		Int("phrases", len(a.cfg.Phrases)).
		Msg("Google stream opened")
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	if a.stream == nil {
		return stt.ErrNotStarted
	}
	if a.closed.Load() {
		return nil
	}
	return a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream; Listen drains the remaining results.
func (a *Adapter) Close() error {
	if a.stream == nil || a.closed.Swap(true) {
		return nil
	}
	err := a.stream.CloseSend()
	if cerr := a.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Listen receives transcript responses from Google and invokes callbacks.
func (a *Adapter) Listen(ctx context.Context) error {
	if a.stream == nil {
		return stt.ErrNotStarted
	}
	for {
		resp, err := a.stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if a.closed.Load() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.cb.OnError(err)
			return fmt.Errorf("google recv: %w", err)
		}
		dispatch(resp, a.cb)
	}
}

// dispatch delivers finals one by one and joins the unstable interim results
// of a response into a single partial.
func dispatch(resp *speechpb.StreamingRecognizeResponse, cb stt.Callback) {
	var partial []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		text := strings.TrimSpace(alt.GetTranscript())
		if text == "" {
			continue
		}
		if r.GetIsFinal() {
			cb.OnFinal(text, float64(alt.GetConfidence()))
		} else {
			partial = append(partial, text)
		}
	}
	if len(partial) > 0 {
		cb.OnPartial(strings.Join(partial, " "))
	}
	if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
		cb.OnEndOfUtterance()
	}
}
