package bridge

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/EurekaEstudio/openai-realtime-voice-bridge/audio"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/events"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/internal/metrics"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"
)

type config struct {
	apiKey             string
	baseURL            string
	model              string
	voice              string
	instructions       string
	transcriptionModel string
	temperature        float64
	turnDetection      *events.TurnDetection

	maxSessions      int
	connectTimeout   time.Duration
	requestTimeout   time.Duration
	idleTimeout      time.Duration
	sweepInterval    time.Duration
	maxAudioChunkLen int

	logger   *slog.Logger
	metrics  *metrics.Metrics
	archiver Archiver
	dialer   Dialer
}

func (c *config) validate() error {
	if c.dialer == nil && c.apiKey == "" {
		// The default dialer authenticates against the realtime API.
		return fmt.Errorf("missing api key")
	}
	return nil
}

type Option func(*config)

func WithKey(apiKey string) Option {
	return func(c *config) {
		c.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) Option {
	return func(c *config) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				c.apiKey = k
				return
			}
		}
	}
}

func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

func WithInstructions(instructions string) Option {
	return func(c *config) {
		c.instructions = instructions
	}
}

func WithTranscriptionModel(model string) Option {
	return func(c *config) {
		c.transcriptionModel = model
	}
}

func WithTemperature(temperature float64) Option {
	return func(c *config) {
		c.temperature = temperature
	}
}

func WithTurnDetection(td *events.TurnDetection) Option {
	return func(c *config) {
		c.turnDetection = td
	}
}

// WithMaxSessions caps concurrent live sessions. Zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(c *config) {
		c.maxSessions = n
	}
}

// WithConnectTimeout bounds transport establishment plus configuration
// negotiation for a new session.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) {
		c.connectTimeout = d
	}
}

// WithRequestTimeout bounds each sendText/sendAudio call waiting for its
// terminal event.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		c.requestTimeout = d
	}
}

// WithIdleTimeout sets the caller-inactivity threshold after which the
// sweep closes a session.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) {
		c.idleTimeout = d
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *config) {
		c.sweepInterval = d
	}
}

func WithMaxAudioChunkLen(n int) Option {
	return func(c *config) {
		c.maxAudioChunkLen = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func WithDefaultLogger() Option {
	return WithLogger(slog.Default())
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

func WithArchiver(a Archiver) Option {
	return func(c *config) {
		c.archiver = a
	}
}

// WithDialer substitutes the transport dialer. Tests use this to drive a
// session without a network.
func WithDialer(d Dialer) Option {
	return func(c *config) {
		c.dialer = d
	}
}

func WithOptions(opts ...Option) Option {
	return func(c *config) {
		for _, opt := range opts {
			opt(c)
		}
	}
}

func withDefaults() Option {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithBaseURL("wss://api.openai.com/v1/realtime"),
		WithModel("gpt-4o-realtime-preview-2025-06-03"),
		WithVoice("alloy"),
		WithInstructions("You are a helpful voice assistant."),
		WithTranscriptionModel("whisper-1"),
		WithTemperature(0.8),
		WithTurnDetection(&events.TurnDetection{
			Type:              "server_vad",
			SilenceDurationMs: 500,
		}),
		WithConnectTimeout(15*time.Second),
		WithRequestTimeout(30*time.Second),
		WithIdleTimeout(5*time.Minute),
		WithSweepInterval(time.Minute),
		WithMaxAudioChunkLen(audio.MaxBase64ChunkLen),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
	)
}
