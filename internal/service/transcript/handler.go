// Package transcript provides the receiver-side handler that turns STT
// results into annotated captions.
package transcript

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"scanner-caption-service/internal/models"
	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/observability/metrics"
	"scanner-caption-service/internal/schema"
	"scanner-caption-service/internal/service/captions"
	"scanner-caption-service/internal/service/codes"
	"scanner-caption-service/internal/service/highlight"
	"scanner-caption-service/internal/service/lookup"
	"scanner-caption-service/internal/service/stt"
	"scanner-caption-service/internal/service/utterance"
)

// AlertPrefix is prepended to live and final captions that mention an alert
// keyword.
const AlertPrefix = "🚨 "

// Publisher receives caption events. *events.Publisher implements it.
type Publisher interface {
	PublishPartial(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
}

// Broadcaster pushes caption events to connected overlay clients.
type Broadcaster interface {
	Broadcast(ev models.CaptionEvent)
}

// Deps are the collaborators of a Handler. Publisher, Validator and
// Broadcaster are optional.
type Deps struct {
	Annotator   *codes.Annotator
	Decoder     *lookup.Decoder
	Highlighter *highlight.Highlighter
	Store       *captions.Store
	Tracker     *utterance.Tracker
	Publisher   Publisher
	Validator   *schema.Validator
	Broadcaster Broadcaster
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the arrival-time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(d time.Duration) Option {
	return func(h *Handler) { h.publishTimeout = d }
}

// Handler implements stt.Callback. The adapter's Listen goroutine is its only
// caller, so its per-feed state is not locked.
type Handler struct {
	adapter   stt.Adapter
	sessionID string
	provider  string
	deps      Deps

	now            func() time.Time
	publishTimeout time.Duration
	logger         zerolog.Logger
	metrics        *metrics.Metrics
}

// NewHandler creates a handler for one live feed.
func NewHandler(adapter stt.Adapter, sessionID, provider string, deps Deps, opts ...Option) *Handler {
	if deps.Annotator == nil {
		deps.Annotator = codes.NewAnnotator(codes.DefaultTable())
	}
	if deps.Decoder == nil {
		deps.Decoder = lookup.NewDecoder(lookup.DefaultConfig())
	}
	if deps.Highlighter == nil {
		deps.Highlighter = highlight.New(highlight.DefaultConfig())
	}
	if deps.Tracker == nil {
		deps.Tracker = utterance.NewTracker(sessionID, nil, utterance.DefaultConfig())
	}
	h := &Handler{
		adapter:        adapter,
		sessionID:      sessionID,
		provider:       provider,
		deps:           deps,
		now:            time.Now,
		publishTimeout: 2 * time.Second,
		logger:         logging.WithStream(sessionID, provider),
		metrics:        metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start begins the STT session with this handler as the callback receiver.
func (h *Handler) Start(ctx context.Context) error {
	if err := h.adapter.Start(ctx, h); err != nil {
		h.logger.Error().Err(err).Msg("Failed to start transcription stream")
		return err
	}
	h.logger.Info().Msg("Transcription stream started")
	return nil
}

// SendAudio forwards one PCM frame to the STT adapter.
func (h *Handler) SendAudio(ctx context.Context, pcm []byte) error {
	if err := h.adapter.SendAudio(ctx, pcm); err != nil {
		return err
	}
	h.metrics.RecordAudioSent(len(pcm))
	return nil
}

// Listen runs the adapter's receive loop.
func (h *Handler) Listen(ctx context.Context) error {
	return h.adapter.Listen(ctx)
}

// Close ends the STT session.
func (h *Handler) Close() error {
	h.logger.Info().Msg("Closing transcription stream")
	return h.adapter.Close()
}

// UtteranceID returns the utterance currently being captioned.
func (h *Handler) UtteranceID() string {
	return h.deps.Tracker.UtteranceID()
}

// caption annotates text and reports whether it mentions an alert keyword.
func (h *Handler) caption(text string) (annotated, caption string, alert bool) {
	annotated = h.deps.Annotator.Annotate(text)
	alert = h.deps.Highlighter.ContainsAlert(text)
	caption = annotated
	if alert {
		caption = AlertPrefix + annotated
	}
	return annotated, caption, alert
}

// --- stt.Callback implementation ---

// OnPartial refreshes the live caption. An interim that has stayed unchanged
// long enough is logged as a partial entry.
func (h *Handler) OnPartial(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	now := h.now()
	h.metrics.RecordPartialTranscript()

	id, stale := h.deps.Tracker.Partial(text, now)
	_, caption, alert := h.caption(text)
	h.deps.Store.UpdateLive(caption)

	logger := h.utteranceLogger(id)
	logger.Debug().Str("caption", caption).Msg("partial")

	if stale != "" {
		staleAnnotated, _, _ := h.caption(stale)
		h.deps.Store.AddEntry(staleAnnotated, captions.KindPartial, "")
		h.metrics.RecordForcedPartial()
		logger.Info().Str("caption", staleAnnotated).Msg("Logged stale interim")
	}

	h.emit(models.CaptionEvent{
		EventType:   models.EventTypePartial,
		SessionID:   h.sessionID,
		UtteranceID: id,
		Timestamp:   now.UnixMilli(),
		Text:        text,
		Caption:     caption,
		Alert:       alert,
		Forced:      stale != "",
	})
}

// OnFinal commits a caption: lookup decoding runs on the raw text, then the
// annotated caption goes to the final slot, the live slot and the logs.
func (h *Handler) OnFinal(text string, confidence float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	now := h.now()
	h.metrics.RecordFinalTranscript()

	id, latency := h.deps.Tracker.Final(now)
	h.metrics.RecordUtterance(latency.Seconds())

	decoded, ok := h.deps.Decoder.ProcessFinal(text, now)
	if ok {
		h.metrics.RecordLookup()
	}

	annotated, caption, alert := h.caption(text)
	if annotated != text {
		h.metrics.RecordAnnotation()
	}
	if alert {
		h.metrics.RecordAlert()
	}

	h.deps.Store.WriteFinal(caption)
	h.deps.Store.UpdateLive(caption)
	h.deps.Store.AddEntry(annotated, captions.KindFinal, decoded)

	logger := h.utteranceLogger(id)
	ev := logger.Info().Float64("confidence", confidence)
	if decoded != "" {
		ev = ev.Str("lookup", decoded)
	}
	ev.Msg(caption)

	if confidence < 0 || confidence > 1 {
		confidence = 0
	}
	h.emit(models.CaptionEvent{
		EventType:   models.EventTypeFinal,
		SessionID:   h.sessionID,
		UtteranceID: id,
		Timestamp:   now.UnixMilli(),
		Text:        text,
		Caption:     caption,
		Confidence:  confidence,
		Lookup:      decoded,
		Alert:       alert,
	})
}

// OnEndOfUtterance is informational; the tracker opens the next utterance on
// the next result.
func (h *Handler) OnEndOfUtterance() {
	logger := h.utteranceLogger(h.deps.Tracker.UtteranceID())
	logger.Debug().Msg("End of utterance")
}

// OnError drops the open utterance. The error itself is returned by Listen.
func (h *Handler) OnError(err error) {
	id := h.deps.Tracker.UtteranceID()
	dropped := h.deps.Tracker.Drop()
	h.metrics.RecordSTTError(h.provider, "stream")
	logger := h.utteranceLogger(id)
	logger.Error().
		Err(err).
		Bool("dropped", dropped).
		Msg("STT stream error")
}

func (h *Handler) utteranceLogger(id string) zerolog.Logger {
	return logging.WithUtterance(h.sessionID, id).With().
		Str("sttProvider", h.provider).
		Logger()
}

func (h *Handler) emit(ev models.CaptionEvent) {
	if h.deps.Broadcaster != nil {
		h.deps.Broadcaster.Broadcast(ev)
	}
	if h.deps.Publisher == nil {
		return
	}
	if h.deps.Validator != nil {
		if err := h.deps.Validator.Validate(ev); err != nil {
			logger := h.utteranceLogger(ev.UtteranceID)
			logger.Warn().Err(err).Msg("Skipping invalid event")
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.publishTimeout)
	defer cancel()

	var err error
	if ev.IsFinal() {
		err = h.deps.Publisher.PublishFinal(ctx, h.sessionID, ev)
	} else {
		err = h.deps.Publisher.PublishPartial(ctx, h.sessionID, ev)
	}
	if err != nil {
		logger := h.utteranceLogger(ev.UtteranceID)
		logger.Warn().Err(err).Msg("Failed to publish caption event")
	}
}
