package events

// Kind is the semantic identity of an inbound event, independent of which
// protocol era named it. The realtime API has shipped two generations of
// event-type strings (e.g. "response.text.delta" vs
// "response.output_text.delta") that mean the same thing; the dispatcher
// works in terms of Kind so both eras hit the same handler.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessionCreated
	KindSessionUpdated
	KindTextDelta
	KindAudioDelta
	KindAudioTranscriptDelta
	KindInputTranscriptionCompleted
	KindResponseDone
	KindError
	KindInformational
)

var kindByType = map[string]Kind{
	"session.created": KindSessionCreated,
	"session.updated": KindSessionUpdated,

	// Legacy era.
	"response.text.delta":             KindTextDelta,
	"response.audio.delta":            KindAudioDelta,
	"response.audio_transcript.delta": KindAudioTranscriptDelta,

	// Current era.
	"response.output_text.delta":             KindTextDelta,
	"response.output_audio.delta":            KindAudioDelta,
	"response.output_audio_transcript.delta": KindAudioTranscriptDelta,

	"conversation.item.input_audio_transcription.completed": KindInputTranscriptionCompleted,

	"response.done": KindResponseDone,
	"error":         KindError,

	// Informational events require no handling.
	"rate_limits.updated":                    KindInformational,
	"response.created":                       KindInformational,
	"response.output_item.added":             KindInformational,
	"response.output_item.done":              KindInformational,
	"response.content_part.added":            KindInformational,
	"response.content_part.done":             KindInformational,
	"response.text.done":                     KindInformational,
	"response.output_text.done":              KindInformational,
	"response.audio.done":                    KindInformational,
	"response.output_audio.done":             KindInformational,
	"response.audio_transcript.done":         KindInformational,
	"response.output_audio_transcript.done":  KindInformational,
	"conversation.item.created":              KindInformational,
	"conversation.item.added":                KindInformational,
	"conversation.item.done":                 KindInformational,
	"input_audio_buffer.committed":           KindInformational,
	"input_audio_buffer.cleared":             KindInformational,
	"input_audio_buffer.speech_started":      KindInformational,
	"input_audio_buffer.speech_stopped":      KindInformational,
	"conversation.item.input_audio_transcription.delta": KindInformational,
}

// KindOf resolves a wire event-type string to its semantic kind.
// Unrecognized types map to KindUnknown and are ignored by the dispatcher,
// so new server events never break the bridge.
func KindOf(eventType string) Kind {
	if k, ok := kindByType[eventType]; ok {
		return k
	}
	return KindUnknown
}
