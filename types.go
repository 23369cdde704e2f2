package bridge

import (
	"context"
	"net/http"
	"time"
)

const (
	audioSampleRate = 24000
	audioFormatName = "pcm16"
)

// Status is the lifecycle state of a session. Connecting moves to
// connected or fails; connected, error and closed are stable until the
// session is removed.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusError      Status = "error"
	StatusClosed     Status = "closed"
)

// Turn is one recorded exchange unit in a session's conversation history.
type Turn struct {
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	ContentType string    `json:"content_type"`
	HasAudio    bool      `json:"has_audio"`
}

// SessionSummary is the read-only projection of a session handed to
// callers. It never exposes the transport or the pending-request table.
type SessionSummary struct {
	ID             string            `json:"id"`
	Status         Status            `json:"status"`
	Model          string            `json:"model"`
	Voice          string            `json:"voice"`
	Instructions   string            `json:"instructions,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	Turns          int               `json:"turns"`
}

// CreateSessionParams are the caller-supplied options for a new session.
type CreateSessionParams struct {
	ID           string            `json:"id,omitempty"`
	Instructions string            `json:"instructions,omitempty"`
	Voice        string            `json:"voice,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CallResult is the aggregated outcome of one sendText/sendAudio call.
type CallResult struct {
	ResponseText    string `json:"response_text"`
	InputTranscript string `json:"input_transcript,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
	AudioBase64     string `json:"audio_base64,omitempty"`
	AudioFormat     string `json:"audio_format,omitempty"`
	SampleRate      int    `json:"sample_rate,omitempty"`
}

// History is the caller-facing view of a session's conversation log.
type History struct {
	ID       string `json:"id"`
	Messages []Turn `json:"messages"`
	Total    int    `json:"total"`
}

// Transport is the outbound half of one remote connection.
type Transport interface {
	WriteText(data []byte)
	Close(ctx context.Context) error
}

// DialConfig describes one transport connection attempt.
type DialConfig struct {
	URL     string
	Headers http.Header

	// OnText receives inbound text frames in strict arrival order.
	OnText func(data []byte) error

	// OnClose fires once when the transport ends, clean or not.
	OnClose func(err error)
}

// Dialer opens a transport. The default dialer speaks websocket to the
// realtime API; tests substitute their own.
type Dialer func(ctx context.Context, cfg DialConfig) (Transport, error)

// Archiver persists the transcript of a closed session. Archiving is best
// effort; failures are logged, never surfaced to callers.
type Archiver interface {
	ArchiveTranscript(ctx context.Context, sessionID string, turns []Turn) error
}
