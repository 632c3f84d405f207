// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scanner_caption"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Pipeline metrics
	PipelineRunning  prometheus.Gauge
	PipelineDuration prometheus.Histogram

	// Audio metrics
	FramesConditioned prometheus.Counter
	FramesDropped     prometheus.Counter
	PCMBytesSent      prometheus.Counter
	QueueDepth        prometheus.Gauge

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	PartialsForced     prometheus.Counter
	Annotations        prometheus.Counter
	LookupsEmitted     prometheus.Counter
	Alerts             prometheus.Counter

	// Caption store metrics
	CaptionWrites    *prometheus.CounterVec
	CaptionRetries   *prometheus.CounterVec
	CaptionFallbacks *prometheus.CounterVec
	CaptionFailures  *prometheus.CounterVec
	CaptionBlocks    prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTErrors         *prometheus.CounterVec
	STTFinalLatency   prometheus.Histogram
	STTUtteranceCount prometheus.Counter

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec

	// Overlay push metrics
	OverlayClients prometheus.Gauge

	// OBS refresh metrics
	OBSRefreshes *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Pipeline metrics
		PipelineRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the capture/transcription pipeline is running",
		}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
		}),

		// Audio metrics
		FramesConditioned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_conditioned_total",
			Help:      "Total audio frames passed through the signal conditioner",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total PCM frames dropped because the send queue was full",
		}),
		PCMBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pcm_bytes_sent_total",
			Help:      "Total PCM bytes sent to the transcription service",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "send_queue_depth",
			Help:      "Frames waiting in the send queue",
		}),

		// Transcript metrics
		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts received",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts received",
		}),
		PartialsForced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partials_forced_total",
			Help:      "Total stale interim results logged because no final arrived",
		}),
		Annotations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "annotated_captions_total",
			Help:      "Total captions that gained at least one code meaning",
		}),
		LookupsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_emitted_total",
			Help:      "Total phonetic info lookups decoded",
		}),
		Alerts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total captions containing an alert keyword",
		}),

		// Caption store metrics
		CaptionWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_writes_total",
			Help:      "Total caption file writes",
		}, []string{"file"}),
		CaptionRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_write_retries_total",
			Help:      "Total atomic write attempts that failed and were retried",
		}, []string{"file"}),
		CaptionFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_write_fallbacks_total",
			Help:      "Total writes that fell back to a direct write",
		}, []string{"file"}),
		CaptionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caption_write_failures_total",
			Help:      "Total caption writes that failed entirely",
		}, []string{"file"}),
		CaptionBlocks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "caption_blocks",
			Help:      "Caption blocks held in memory",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// STT metrics
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		STTFinalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_final_latency_seconds",
			Help:      "Time from first partial to final transcript",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		STTUtteranceCount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_utterances_total",
			Help:      "Total number of utterances detected",
		}),

		// gRPC metrics
		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests by method and status code",
		}, []string{"method", "code"}),

		// Overlay push metrics
		OverlayClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overlay_clients",
			Help:      "Connected overlay websocket clients",
		}),

		// OBS refresh metrics
		OBSRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "obs_refreshes_total",
			Help:      "Browser source refresh requests sent to OBS",
		}, []string{"result"}),
	}
}

// RecordPipelineStart records the pipeline starting.
func (m *Metrics) RecordPipelineStart() {
	m.PipelineRunning.Set(1)
}

// RecordPipelineEnd records the pipeline stopping.
func (m *Metrics) RecordPipelineEnd(durationSeconds float64) {
	m.PipelineRunning.Set(0)
	m.PipelineDuration.Observe(durationSeconds)
}

// RecordFrameConditioned records a frame through the signal conditioner.
func (m *Metrics) RecordFrameConditioned() {
	m.FramesConditioned.Inc()
}

// RecordFrameDropped records a frame dropped on queue overflow.
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordAudioSent records PCM bytes sent to the transcription service.
func (m *Metrics) RecordAudioSent(bytes int) {
	m.PCMBytesSent.Add(float64(bytes))
}

// SetQueueDepth records the current send queue length.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// RecordPartialTranscript records a partial transcript received.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordFinalTranscript records a final transcript received.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordForcedPartial records a stale interim logged without a final.
func (m *Metrics) RecordForcedPartial() {
	m.PartialsForced.Inc()
}

// RecordAnnotation records a caption that gained code meanings.
func (m *Metrics) RecordAnnotation() {
	m.Annotations.Inc()
}

// RecordLookup records a decoded info lookup.
func (m *Metrics) RecordLookup() {
	m.LookupsEmitted.Inc()
}

// RecordAlert records a caption containing an alert keyword.
func (m *Metrics) RecordAlert() {
	m.Alerts.Inc()
}

// RecordCaptionWrite records the outcome of a caption file write. retries is
// the number of failed atomic attempts before the outcome.
func (m *Metrics) RecordCaptionWrite(file string, retries int, fallback bool, err error) {
	m.CaptionWrites.WithLabelValues(file).Inc()
	if retries > 0 {
		m.CaptionRetries.WithLabelValues(file).Add(float64(retries))
	}
	if fallback {
		m.CaptionFallbacks.WithLabelValues(file).Inc()
	}
	if err != nil {
		m.CaptionFailures.WithLabelValues(file).Inc()
	}
}

// SetCaptionBlocks records the number of blocks in memory.
func (m *Metrics) SetCaptionBlocks(n int) {
	m.CaptionBlocks.Set(float64(n))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordUtterance records a committed utterance and its latency from the
// first interim result.
func (m *Metrics) RecordUtterance(latencySeconds float64) {
	m.STTUtteranceCount.Inc()
	if latencySeconds > 0 {
		m.STTFinalLatency.Observe(latencySeconds)
	}
}

// RecordGRPCRequest records a gRPC request outcome.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

// SetOverlayClients records connected overlay clients.
func (m *Metrics) SetOverlayClients(n int) {
	m.OverlayClients.Set(float64(n))
}

// RecordOBSRefresh records a browser source refresh attempt.
func (m *Metrics) RecordOBSRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OBSRefreshes.WithLabelValues(result).Inc()
}
