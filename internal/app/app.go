package app

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"scanner-caption-service/internal/config"
	"scanner-caption-service/internal/observability/logging"
)

const sentryFlushTimeout = 2 * time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	ready  atomic.Bool
	sentry bool
}

// New constructs a new Application from the provided configuration. It
// initializes the global logger and, when a DSN is configured, Sentry.
func New(cfg *config.Config) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()
	a.setupSentry()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Scanner caption service application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logCfg := logging.DefaultConfig()
	if a.Cfg.Observability.LogLevel != "" {
		logCfg.Level = a.Cfg.Observability.LogLevel
	}
	if a.Cfg.Observability.LogFormat != "" {
		logCfg.Format = a.Cfg.Observability.LogFormat
	}
	logging.Init(logCfg)

	a.Logger = logging.Logger().With().
		Str("service", "scanner-caption-service").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Observability.Environment).
		Msg("Logger setup completed")
}

func (a *Application) setupSentry() {
	dsn := a.Cfg.Observability.SentryDSN
	if dsn == "" {
		return
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: a.Cfg.Observability.Environment,
		ServerName:  a.Cfg.Service.Principal,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Sentry init failed")
		return
	}
	a.sentry = true
	a.Logger.Info().Msg("Sentry initialized")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("sttProvider", a.Cfg.STT.Provider).
		Str("input", a.Cfg.Capture.Input).
		Msg("Scanner caption service starting")

	return nil
}

// SetReady marks whether the caption pipeline is running.
func (a *Application) SetReady(ready bool) {
	a.ready.Store(ready)
}

// Ready reports whether the caption pipeline is running.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// CaptureError reports err to Sentry when it is enabled.
func (a *Application) CaptureError(err error) {
	if err == nil || !a.sentry {
		return
	}
	sentry.CaptureException(err)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.SetReady(false)
	if a.sentry {
		sentry.Flush(sentryFlushTimeout)
	}
	shutdownLogger.Info().Msg("Scanner caption service shutting down")
}
