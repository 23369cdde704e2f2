package events

type AudioFormat string

const (
	AudioFormatPCM16 AudioFormat = "pcm16"
)

// Session is the remote session object echoed back in session.created and
// session.updated events.
type Session struct {
	ID                string   `json:"id,omitempty"`
	Object            string   `json:"object,omitempty"`
	ExpiresAt         int64    `json:"expires_at,omitempty"`
	Model             string   `json:"model,omitempty"`
	Modalities        []string `json:"modalities,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format,omitempty"`
	OutputAudioFormat string   `json:"output_audio_format,omitempty"`
	Temperature       float64  `json:"temperature,omitempty"`
}

// SessionUpdate is the payload of an outbound session.update intent.
type SessionUpdate struct {
	Modalities              []string                 `json:"modalities,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        AudioFormat              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat              `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
	Temperature             float64                  `json:"temperature,omitempty"`
}

// InputAudioTranscription enables server-side transcription of caller audio.
type InputAudioTranscription struct {
	Model string `json:"model,omitempty"`
}

// TurnDetection holds the server-side VAD configuration.
type TurnDetection struct {
	Type              string  `json:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
	InterruptResponse bool    `json:"interrupt_response,omitempty"`
}
