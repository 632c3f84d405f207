package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	grpcapi "scanner-caption-service/internal/api/grpc"
	"scanner-caption-service/internal/app"
	"scanner-caption-service/internal/capture"
	"scanner-caption-service/internal/config"
	"scanner-caption-service/internal/events"
	apihttp "scanner-caption-service/internal/http"
	"scanner-caption-service/internal/observability"
	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/pipeline"
	"scanner-caption-service/internal/schema"
	"scanner-caption-service/internal/service/captions"
	"scanner-caption-service/internal/service/codes"
	"scanner-caption-service/internal/service/dsp"
	"scanner-caption-service/internal/service/highlight"
	"scanner-caption-service/internal/service/lookup"
	"scanner-caption-service/internal/service/stt"
	"scanner-caption-service/internal/service/stt/deepgram"
	"scanner-caption-service/internal/service/stt/google"
	"scanner-caption-service/internal/service/stt/mock"
	"scanner-caption-service/internal/service/transcript"
	"scanner-caption-service/internal/service/utterance"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.Load()
	application := app.New(cfg)

	err := run(application)
	if err != nil && !errors.Is(err, context.Canceled) {
		application.CaptureError(err)
		application.Logger.Error().Err(err).Msg("Caption pipeline stopped")
		application.Shutdown()
		os.Exit(1)
	}
	application.Shutdown()
}

func run(application *app.Application) error {
	cfg := application.Cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := application.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := cfg.Service.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := logging.WithSession(sessionID)

	table, err := codes.LoadTable(cfg.Codes.OverridesFile)
	if err != nil {
		return err
	}
	tenCodes, penalCodes := table.Len()
	logger.Info().
		Int("tenElevenCodes", tenCodes).
		Int("penalCodes", penalCodes).
		Str("overrides", cfg.Codes.OverridesFile).
		Msg("Code table loaded")

	hlCfg := highlight.DefaultConfig()
	if len(cfg.Captions.AlertKeywords) > 0 {
		hlCfg.AlertKeywords = cfg.Captions.AlertKeywords
	}
	hlCfg.Locations = cfg.Captions.Locations
	hl := highlight.New(hlCfg)

	store, err := captions.NewStore(cfg.Captions.Config, captions.WithHighlighter(hl))
	if err != nil {
		return err
	}

	// Create Kafka publisher with separate topics for partial and final captions
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	hub := apihttp.NewHub()
	go hub.Run(ctx)

	httpServer := observability.NewServer(cfg.Service.HTTPAddr, apihttp.NewRouter(application, store, hub))
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}
	}()

	var grpcServer *grpcapi.Server
	if cfg.Service.GRPCPort != "" {
		grpcServer, err = grpcapi.New(cfg.Service.GRPCPort)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer.Serve()
		defer grpcServer.Shutdown()
	}

	adapter, err := newAdapter(ctx, cfg)
	if err != nil {
		return err
	}

	handler := transcript.NewHandler(adapter, sessionID, cfg.STT.Provider, transcript.Deps{
		Annotator:   codes.NewAnnotator(table),
		Decoder:     lookup.NewDecoder(cfg.Lookup),
		Highlighter: hl,
		Store:       store,
		Tracker:     utterance.NewTracker(sessionID, nil, cfg.Utterance),
		Publisher:   publisher,
		Validator:   schema.New(),
		Broadcaster: hub,
	})
	if err := handler.Start(ctx); err != nil {
		return fmt.Errorf("start %s stream: %w", cfg.STT.Provider, err)
	}

	src := capture.New(cfg.Capture.Input, capture.Config{
		SampleRate: cfg.Capture.SampleRate,
		BlockSize:  cfg.Capture.BlockSize,
		Realtime:   cfg.Capture.Realtime,
	}, os.Stdin)
	cond := dsp.NewConditioner(cfg.DSP, src.SampleRate())
	p := pipeline.New(src, cond, handler, pipeline.Config{QueueFrames: cfg.Capture.QueueFrames})

	application.SetReady(true)
	if grpcServer != nil {
		grpcServer.SetServing(true)
	}
	logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("input", cfg.Capture.Input).
		Str("captionsDir", cfg.Captions.Dir).
		Str("httpAddr", httpServer.Addr()).
		Msg("Scanner caption service started")

	err = p.Run(ctx)

	application.SetReady(false)
	if grpcServer != nil {
		grpcServer.SetServing(false)
	}
	return err
}

// newAdapter builds the configured STT provider.
func newAdapter(ctx context.Context, cfg *config.Config) (stt.Adapter, error) {
	switch cfg.STT.Provider {
	case config.ProviderDeepgram:
		dg := deepgram.DefaultConfig()
		dg.APIKey = cfg.STT.DeepgramAPIKey
		dg.URL = cfg.STT.DeepgramURL
		dg.Model = cfg.STT.Model
		dg.Language = cfg.STT.LanguageCode
		dg.SampleRate = cfg.Capture.SampleRate
		dg.InterimResults = cfg.STT.InterimResults
		dg.Endpointing = cfg.STT.Endpointing
		dg.UtteranceEnd = cfg.STT.UtteranceEnd
		if len(cfg.STT.Keyterms) > 0 {
			dg.Keyterms = cfg.STT.Keyterms
		}
		return deepgram.New(dg)

	case config.ProviderGoogle:
		g := google.DefaultConfig()
		g.LanguageCode = cfg.STT.LanguageCode
		g.SampleRateHz = int32(cfg.Capture.SampleRate)
		g.InterimResults = cfg.STT.InterimResults
		g.AudioEncoding = cfg.STT.AudioEncoding
		g.Phrases = deepgram.DefaultKeyterms
		if len(cfg.STT.Keyterms) > 0 {
			g.Phrases = cfg.STT.Keyterms
		}
		return google.New(ctx, g)

	case config.ProviderMock:
		m := mock.DefaultConfig()
		m.FramesPerEvent = cfg.STT.MockFramesPerEvent
		return mock.New(m), nil
	}
	return nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
}
