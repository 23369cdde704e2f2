package bridge

import (
	"encoding/base64"
	"strings"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/smallnest/ringbuffer"
)

// pendingAudioBufferSize caps accumulated response audio per request at
// one minute of PCM16 mono 24kHz.
const pendingAudioBufferSize = audioSampleRate * 2 * 60

// pendingRequest is the in-flight accumulation state for one caller call.
// It settles exactly once: through a terminal event, an error event, the
// request timeout, or session teardown.
type pendingRequest struct {
	id        string
	startedAt time.Time

	returnAudio bool
	audioInput  bool

	text            strings.Builder
	transcript      strings.Builder
	audio           *ringbuffer.RingBuffer
	audioDropped    int
	inputTranscript string

	done    chan settleResult
	timer   *time.Timer
	settled bool
}

type settleResult struct {
	text            string
	audioPCM        []byte
	inputTranscript string
	err             error
}

func newPendingRequest(returnAudio, audioInput bool) *pendingRequest {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	p := &pendingRequest{
		id:          id,
		startedAt:   time.Now(),
		returnAudio: returnAudio,
		audioInput:  audioInput,
		done:        make(chan settleResult, 1),
	}
	if returnAudio {
		p.audio = ringbuffer.New(pendingAudioBufferSize)
	}
	return p
}

// appendAudio decodes a base64 delta and appends it to the audio buffer.
// Chunks beyond the buffer capacity are dropped and counted, never
// accumulated without bound.
func (p *pendingRequest) appendAudio(delta string) error {
	if p.audio == nil {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(delta)
	if err != nil {
		return err
	}
	if p.audio.Free() < len(data) {
		p.audioDropped++
		return nil
	}
	_, err = p.audio.Write(data)
	return err
}

// responseText prefers the direct text channel; the spoken-response
// transcript fills in when no text delta ever arrived.
func (p *pendingRequest) responseText() string {
	if p.text.Len() > 0 {
		return p.text.String()
	}
	return p.transcript.String()
}

func (p *pendingRequest) audioBytes() []byte {
	if p.audio == nil || p.audio.Length() == 0 {
		return nil
	}
	out := make([]byte, p.audio.Length())
	n, _ := p.audio.Read(out)
	return out[:n]
}
