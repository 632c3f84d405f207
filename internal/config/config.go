// Package config builds the process configuration from a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"scanner-caption-service/internal/service/captions"
	"scanner-caption-service/internal/service/dsp"
	"scanner-caption-service/internal/service/lookup"
	"scanner-caption-service/internal/service/utterance"
)

// STT providers.
const (
	ProviderDeepgram = "deepgram"
	ProviderGoogle   = "google"
	ProviderMock     = "mock"
)

// Config is built once at startup and passed to constructors.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Capture       CaptureConfig
	DSP           dsp.Config
	Captions      CaptionsConfig
	Lookup        lookup.Config
	Utterance     utterance.Config
	Codes         CodesConfig
	Kafka         KafkaConfig
	OBS           OBSConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
	// SessionID names this feed in logs and events; empty means generated.
	SessionID string
	GRPCPort  string // empty disables the gRPC health server
	HTTPAddr  string
}

type STTConfig struct {
	Provider       string
	DeepgramAPIKey string
	DeepgramURL    string
	Model          string
	LanguageCode   string
	InterimResults bool
	AudioEncoding  string
	Endpointing    time.Duration
	UtteranceEnd   time.Duration
	// Keyterms overrides the built-in recognition hints when set.
	Keyterms []string
	// MockFramesPerEvent paces the mock provider's script.
	MockFramesPerEvent int
}

type CaptureConfig struct {
	// Input is "-" for raw s16le mono PCM on stdin or a WAV file path.
	Input       string
	SampleRate  int
	BlockSize   int
	Realtime    bool
	QueueFrames int
}

type CaptionsConfig struct {
	captions.Config
	AlertKeywords []string
	Locations     []string
}

type CodesConfig struct {
	// OverridesFile is a yaml/toml/json file merged over the built-in table.
	OverridesFile string
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

type OBSConfig struct {
	Host     string
	Port     int
	Password string
	Source   string
	// Mode is watch, poll or interval.
	Mode     string
	File     string
	Interval time.Duration
	Debounce time.Duration
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	SentryDSN   string
	Environment string
}

// Load reads .env when present, then the environment. Unparseable values
// fall back to their defaults.
func Load() *Config {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-scanner-caption")

	dspCfg := dsp.DefaultConfig()
	dspCfg.Enabled = envOrDefaultBool("DSP_ENABLED", dspCfg.Enabled)
	dspCfg.PreEmphasisEnabled = envOrDefaultBool("DSP_PREEMPHASIS", dspCfg.PreEmphasisEnabled)
	dspCfg.PreEmphasis = envOrDefaultFloat("DSP_PREEMPHASIS_COEF", dspCfg.PreEmphasis)
	dspCfg.HighPassEnabled = envOrDefaultBool("DSP_HIGHPASS", dspCfg.HighPassEnabled)
	dspCfg.HighPassHz = envOrDefaultFloat("DSP_HIGHPASS_HZ", dspCfg.HighPassHz)
	dspCfg.LowPassEnabled = envOrDefaultBool("DSP_LOWPASS", dspCfg.LowPassEnabled)
	dspCfg.LowPassHz = envOrDefaultFloat("DSP_LOWPASS_HZ", dspCfg.LowPassHz)
	dspCfg.GateEnabled = envOrDefaultBool("DSP_GATE", dspCfg.GateEnabled)
	dspCfg.GateRMS = envOrDefaultFloat("DSP_GATE_RMS", dspCfg.GateRMS)
	dspCfg.GateAttenuation = envOrDefaultFloat("DSP_GATE_ATTENUATION", dspCfg.GateAttenuation)
	dspCfg.AGCEnabled = envOrDefaultBool("DSP_AGC", dspCfg.AGCEnabled)
	dspCfg.AGCTargetRMS = envOrDefaultFloat("DSP_AGC_TARGET_RMS", dspCfg.AGCTargetRMS)
	dspCfg.AGCMinGain = envOrDefaultFloat("DSP_AGC_MIN_GAIN", dspCfg.AGCMinGain)
	dspCfg.AGCMaxGain = envOrDefaultFloat("DSP_AGC_MAX_GAIN", dspCfg.AGCMaxGain)
	dspCfg.LimiterEnabled = envOrDefaultBool("DSP_LIMITER", dspCfg.LimiterEnabled)
	dspCfg.LimiterThreshold = envOrDefaultFloat("DSP_LIMITER_THRESHOLD", dspCfg.LimiterThreshold)
	dspCfg.SoftClipEnabled = envOrDefaultBool("DSP_SOFTCLIP", dspCfg.SoftClipEnabled)

	capDef := captions.DefaultConfig()
	captionsCfg := CaptionsConfig{
		Config: captions.Config{
			Dir:             envOrDefault("CAPTIONS_DIR", capDef.Dir),
			LiveMaxChars:    envOrDefaultInt("CAPTIONS_LIVE_MAX_CHARS", capDef.LiveMaxChars),
			SilenceGap:      envOrDefaultDuration("CAPTIONS_SILENCE_GAP", capDef.SilenceGap),
			MaxBlocks:       envOrDefaultInt("CAPTIONS_MAX_BLOCKS", capDef.MaxBlocks),
			VisibleBlocks:   envOrDefaultInt("CAPTIONS_VISIBLE_BLOCKS", capDef.VisibleBlocks),
			WriteRetries:    envOrDefaultInt("CAPTIONS_WRITE_RETRIES", capDef.WriteRetries),
			RetryDelay:      envOrDefaultDuration("CAPTIONS_RETRY_DELAY", capDef.RetryDelay),
			RefreshInterval: envOrDefaultDuration("CAPTIONS_REFRESH_INTERVAL", capDef.RefreshInterval),
		},
		AlertKeywords: envList("CAPTIONS_ALERT_KEYWORDS"),
		Locations:     envList("CAPTIONS_LOCATIONS"),
	}

	lookupDef := lookup.DefaultConfig()
	uttDef := utterance.DefaultConfig()

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			SessionID: envOrDefault("SESSION_ID", ""),
			GRPCPort:  envOrDefault("GRPC_PORT", ""),
			HTTPAddr:  envOrDefault("HTTP_ADDR", ":9090"),
		},
		STT: STTConfig{
			Provider:           strings.ToLower(envOrDefault("STT_PROVIDER", ProviderDeepgram)),
			DeepgramAPIKey:     envOrDefault("DEEPGRAM_API_KEY", ""),
			DeepgramURL:        envOrDefault("DEEPGRAM_URL", "wss://api.deepgram.com/v1/listen"),
			Model:              envOrDefault("STT_MODEL", "nova-3"),
			LanguageCode:       envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			InterimResults:     envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:      envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			Endpointing:        envOrDefaultDuration("STT_ENDPOINTING", time.Second),
			UtteranceEnd:       envOrDefaultDuration("STT_UTTERANCE_END", time.Second),
			Keyterms:           envList("STT_KEYTERMS"),
			MockFramesPerEvent: envOrDefaultInt("STT_MOCK_FRAMES_PER_EVENT", 25),
		},
		Capture: CaptureConfig{
			Input:       envOrDefault("CAPTURE_INPUT", "-"),
			SampleRate:  envOrDefaultInt("CAPTURE_SAMPLE_RATE", 16000),
			BlockSize:   envOrDefaultInt("CAPTURE_BLOCK_SIZE", 320),
			Realtime:    envOrDefaultBool("CAPTURE_REALTIME", true),
			QueueFrames: envOrDefaultInt("CAPTURE_QUEUE_FRAMES", 500),
		},
		DSP:      dspCfg,
		Captions: captionsCfg,
		Lookup: lookup.Config{
			Window:            envOrDefaultDuration("LOOKUP_WINDOW", lookupDef.Window),
			MinLettersPerWord: envOrDefaultInt("LOOKUP_MIN_LETTERS", lookupDef.MinLettersPerWord),
			MaxWords:          lookupDef.MaxWords,
			MaxLetters:        lookupDef.MaxLetters,
		},
		Utterance: utterance.Config{
			ForceLogAfter:       envOrDefaultDuration("PARTIAL_FORCE_LOG_AFTER", uttDef.ForceLogAfter),
			ForceLogMinInterval: envOrDefaultDuration("PARTIAL_FORCE_LOG_MIN_INTERVAL", uttDef.ForceLogMinInterval),
			MinInterimChars:     envOrDefaultInt("PARTIAL_MIN_CHARS", uttDef.MinInterimChars),
		},
		Codes: CodesConfig{
			OverridesFile: envOrDefault("CODES_OVERRIDES_FILE", ""),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envList("KAFKA_BROKERS"),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "scanner.caption.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "scanner.caption.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		OBS: OBSConfig{
			Host:     envOrDefault("OBS_HOST", "localhost"),
			Port:     envOrDefaultInt("OBS_PORT", 4455),
			Password: envOrDefault("OBS_PASSWORD", ""),
			Source:   envOrDefault("OBS_SOURCE", "Browser"),
			Mode:     strings.ToLower(envOrDefault("OBS_MODE", "watch")),
			File:     envOrDefault("OBS_FILE", captionsCfg.Dir+"/"+captions.TranscriptHTMLFile),
			Interval: envOrDefaultDuration("OBS_INTERVAL", time.Second),
			Debounce: envOrDefaultDuration("OBS_DEBOUNCE", 500*time.Millisecond),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "console"),
			SentryDSN:   envOrDefault("SENTRY_DSN", ""),
			Environment: envOrDefault("ENVIRONMENT", "development"),
		},
	}
}

// Validate reports settings the pipeline cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.STT.Provider {
	case ProviderDeepgram:
		if c.STT.DeepgramAPIKey == "" {
			errs = append(errs, errors.New("DEEPGRAM_API_KEY is required for the deepgram provider"))
		}
	case ProviderGoogle, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown STT_PROVIDER %q", c.STT.Provider))
	}
	if c.Capture.SampleRate <= 0 || c.Capture.BlockSize <= 0 {
		errs = append(errs, errors.New("capture sample rate and block size must be positive"))
	}
	if c.Captions.Dir == "" {
		errs = append(errs, errors.New("CAPTIONS_DIR must not be empty"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when Kafka is enabled"))
	}
	return errors.Join(errs...)
}

// ValidateOBS reports settings the refresh utility cannot start with.
func (c *Config) ValidateOBS() error {
	switch c.OBS.Mode {
	case "watch", "poll", "interval":
	default:
		return fmt.Errorf("unknown OBS_MODE %q (watch, poll or interval)", c.OBS.Mode)
	}
	if c.OBS.Source == "" {
		return errors.New("OBS_SOURCE must not be empty")
	}
	if c.OBS.Interval <= 0 {
		return errors.New("OBS_INTERVAL must be positive")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
