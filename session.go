package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/EurekaEstudio/openai-realtime-voice-bridge/audio"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/events"
)

const negotiateTimeout = 10 * time.Second

// Session owns one persistent connection to the realtime API. All inbound
// events for the session are dispatched from a single transport goroutine
// in arrival order; caller-facing calls are serialized FIFO through callMu
// so at most one request is ever in flight. The wire protocol carries no
// correlation id on streaming events, so serialization is what makes the
// "most recent unresolved request" lookup sound.
type Session struct {
	id        string
	model     string
	metadata  map[string]string
	createdAt time.Time
	cfg       *config
	logger    *slog.Logger

	// callMu serializes SendText/SendAudio/UpdateInstructions. Overlapping
	// calls queue FIFO rather than being rejected.
	callMu sync.Mutex

	mu           sync.Mutex
	status       Status
	voice        string
	instructions string
	lastActivity time.Time
	history      []Turn
	pending      map[string]*pendingRequest
	order        []string
	ws           Transport
	terminated   bool

	ready          chan error
	updated        chan struct{}
	transportReady chan struct{}

	// onTerminate is set by the registry; called once after teardown.
	onTerminate func(s *Session)
}

func newSession(cfg *config, id string, params CreateSessionParams, logger *slog.Logger) *Session {
	voice := params.Voice
	if voice == "" {
		voice = cfg.voice
	}
	instructions := params.Instructions
	if instructions == "" {
		instructions = cfg.instructions
	}

	now := time.Now()
	return &Session{
		id:           id,
		model:        cfg.model,
		metadata:     params.Metadata,
		createdAt:    now,
		cfg:          cfg,
		logger:       logger.With(slog.String("session_id", id)),
		status:       StatusConnecting,
		voice:        voice,
		instructions: instructions,
		lastActivity: now,
		pending:        make(map[string]*pendingRequest),
		ready:          make(chan error, 1),
		updated:        make(chan struct{}, 1),
		transportReady: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// connect opens the transport and waits for configuration negotiation to
// finish. Any failure tears down partially-created state.
func (s *Session) connect(ctx context.Context) error {
	dialer := s.cfg.dialer
	if dialer == nil {
		dialer = defaultDialer(s.cfg.logger)
	}

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", s.cfg.apiKey))
	headers.Add("OpenAI-Beta", "realtime=v1")

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.connectTimeout)
	defer cancel()

	ws, err := dialer(dialCtx, DialConfig{
		URL:     fmt.Sprintf("%s?model=%s", s.cfg.baseURL, s.model),
		Headers: headers,
		OnText:  s.handleEvent,
		OnClose: s.handleTransportClose,
	})
	if err != nil {
		cause := wrapError(CodeConnectionError, err, "dial %s", s.cfg.baseURL)
		s.teardown(StatusError, cause)
		return cause
	}

	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()
	close(s.transportReady)

	select {
	case err := <-s.ready:
		if err != nil {
			cause := wrapError(CodeConnectionError, err, "session negotiation failed")
			s.teardown(StatusError, cause)
			return cause
		}
		s.mu.Lock()
		s.status = StatusConnected
		s.mu.Unlock()
		return nil
	case <-time.After(s.cfg.connectTimeout):
		cause := newError(CodeConnectionTimeout, "transport not established within %s", s.cfg.connectTimeout)
		s.teardown(StatusError, cause)
		return cause
	case <-ctx.Done():
		cause := wrapError(CodeConnectionError, ctx.Err(), "connect canceled")
		s.teardown(StatusError, cause)
		return cause
	}
}

// negotiate sends the initial configuration intent and waits for the
// session.updated ack. The session.created event can arrive before
// connect attaches the transport, so wait for it first.
func (s *Session) negotiate() error {
	select {
	case <-s.transportReady:
	case <-time.After(negotiateTimeout):
		return fmt.Errorf("transport never attached")
	}

	s.mu.Lock()
	instructions := s.instructions
	voice := s.voice
	s.mu.Unlock()

	evt := events.SessionUpdateEvent{
		BaseEvent: events.NewBaseEvent("session.update"),
		Session: events.SessionUpdate{
			Modalities:        []string{"text", "audio"},
			Instructions:      instructions,
			Voice:             voice,
			InputAudioFormat:  events.AudioFormatPCM16,
			OutputAudioFormat: events.AudioFormatPCM16,
			InputAudioTranscription: &events.InputAudioTranscription{
				Model: s.cfg.transcriptionModel,
			},
			TurnDetection: s.cfg.turnDetection,
			Temperature:   s.cfg.temperature,
		},
	}
	if err := s.send(evt); err != nil {
		return err
	}

	select {
	case <-s.updated:
		return nil
	case <-time.After(negotiateTimeout):
		return fmt.Errorf("timeout waiting for session update ack")
	}
}

// SendText appends a user message item and requests a response, then
// blocks until the terminal event, an error event, the request timeout or
// ctx settles the call.
func (s *Session) SendText(ctx context.Context, text string, returnAudio bool) (*CallResult, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.touch()

	p, err := s.register(returnAudio, false)
	if err != nil {
		return nil, err
	}

	item := events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent("conversation.item.create"),
		Item: events.ConversationItem{
			Type: "message",
			Role: "user",
			Content: []events.ConversationItemContent{
				{Type: "input_text", Text: text},
			},
		},
	}
	if err := s.sendOrFail(p, item); err != nil {
		return nil, err
	}
	if err := s.sendOrFail(p, s.responseCreate(returnAudio)); err != nil {
		return nil, err
	}

	res := s.await(ctx, p)
	if res.err != nil {
		return nil, res.err
	}

	now := time.Now()
	s.appendTurns(
		Turn{Role: "user", Content: text, Timestamp: p.startedAt, ContentType: "text"},
		Turn{Role: "assistant", Content: res.text, Timestamp: now, ContentType: "text", HasAudio: len(res.audioPCM) > 0},
	)
	return buildResult(p, res), nil
}

// SendAudio clears the remote input buffer, streams the caller audio in
// bounded chunks, commits it and requests a response.
func (s *Session) SendAudio(ctx context.Context, audioBase64 string, returnAudio bool) (*CallResult, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	if _, err := base64.StdEncoding.DecodeString(audioBase64); err != nil {
		return nil, wrapError(CodeInvalidInput, err, "audio payload is not valid base64")
	}

	s.touch()

	p, err := s.register(returnAudio, true)
	if err != nil {
		return nil, err
	}

	if err := s.sendOrFail(p, events.InputAudioBufferClearEvent{
		BaseEvent: events.NewBaseEvent("input_audio_buffer.clear"),
	}); err != nil {
		return nil, err
	}
	for _, chunk := range audio.SplitBase64(audioBase64, s.cfg.maxAudioChunkLen) {
		if err := s.sendOrFail(p, events.InputAudioBufferAppendEvent{
			BaseEvent: events.NewBaseEvent("input_audio_buffer.append"),
			Audio:     chunk,
		}); err != nil {
			return nil, err
		}
	}
	if err := s.sendOrFail(p, events.InputAudioBufferCommitEvent{
		BaseEvent: events.NewBaseEvent("input_audio_buffer.commit"),
	}); err != nil {
		return nil, err
	}
	if err := s.sendOrFail(p, s.responseCreate(returnAudio)); err != nil {
		return nil, err
	}

	res := s.await(ctx, p)
	if res.err != nil {
		return nil, res.err
	}

	inputContent := res.inputTranscript
	if inputContent == "" {
		inputContent = "[audio message]"
	}
	now := time.Now()
	s.appendTurns(
		Turn{Role: "user", Content: inputContent, Timestamp: p.startedAt, ContentType: "audio", HasAudio: true},
		Turn{Role: "assistant", Content: res.text, Timestamp: now, ContentType: "text", HasAudio: len(res.audioPCM) > 0},
	)
	return buildResult(p, res), nil
}

// UpdateInstructions mutates the session instructions and pushes a
// configuration update. Conversation history is untouched.
func (s *Session) UpdateInstructions(text string) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.touch()

	s.mu.Lock()
	if s.status != StatusConnected {
		status := s.status
		s.mu.Unlock()
		return newError(CodeSessionUnavailable, "session %s is %s", s.id, status)
	}
	s.instructions = text
	s.mu.Unlock()

	return s.send(events.SessionUpdateEvent{
		BaseEvent: events.NewBaseEvent("session.update"),
		Session:   events.SessionUpdate{Instructions: text},
	})
}

func (s *Session) responseCreate(returnAudio bool) events.ResponseCreateEvent {
	modalities := []string{"text"}
	if returnAudio {
		modalities = []string{"text", "audio"}
	}
	return events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent("response.create"),
		Response:  events.ResponseCreatePayload{Modalities: modalities},
	}
}

func buildResult(p *pendingRequest, res settleResult) *CallResult {
	out := &CallResult{
		ResponseText:    res.text,
		InputTranscript: res.inputTranscript,
		DurationMs:      time.Since(p.startedAt).Milliseconds(),
	}
	if len(res.audioPCM) > 0 {
		out.AudioBase64 = base64.StdEncoding.EncodeToString(res.audioPCM)
		out.AudioFormat = audioFormatName
		out.SampleRate = audioSampleRate
	}
	return out
}

// register creates and tables a pending request with its timeout armed.
func (s *Session) register(returnAudio, audioInput bool) (*pendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected {
		return nil, newError(CodeSessionUnavailable, "session %s is %s", s.id, s.status)
	}

	p := newPendingRequest(returnAudio, audioInput)
	s.pending[p.id] = p
	s.order = append(s.order, p.id)
	p.timer = time.AfterFunc(s.cfg.requestTimeout, func() {
		s.expire(p.id)
	})
	return p, nil
}

func (s *Session) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[id]; ok {
		s.settleLocked(p, settleResult{
			err: newError(CodeRequestTimeout, "no terminal event within %s", s.cfg.requestTimeout),
		})
	}
}

// settleLocked completes a pending request exactly once and removes it
// from the table. Events arriving afterwards are unattributable and get
// dropped by the dispatcher.
func (s *Session) settleLocked(p *pendingRequest, res settleResult) {
	if p.settled {
		return
	}
	p.settled = true
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(s.pending, p.id)
	for i, id := range s.order {
		if id == p.id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	p.done <- res
}

func (s *Session) await(ctx context.Context, p *pendingRequest) settleResult {
	select {
	case res := <-p.done:
		s.observeRequest(p, res)
		return res
	case <-ctx.Done():
		s.mu.Lock()
		if q, ok := s.pending[p.id]; ok {
			s.settleLocked(q, settleResult{err: wrapError(CodeConnectionError, ctx.Err(), "call canceled")})
		}
		s.mu.Unlock()
		res := <-p.done
		s.observeRequest(p, res)
		return res
	}
}

func (s *Session) observeRequest(p *pendingRequest, res settleResult) {
	if s.cfg.metrics == nil {
		return
	}
	outcome := "ok"
	if res.err != nil {
		outcome = string(CodeOf(res.err))
	}
	s.cfg.metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	s.cfg.metrics.RequestDuration.Observe(time.Since(p.startedAt).Seconds())
}

// sendOrFail emits an outbound intent; on transport failure the pending
// request is rejected immediately so the table never leaks.
func (s *Session) sendOrFail(p *pendingRequest, evt any) error {
	if err := s.send(evt); err != nil {
		s.mu.Lock()
		if q, ok := s.pending[p.id]; ok {
			s.settleLocked(q, settleResult{err: err})
		}
		s.mu.Unlock()
		<-p.done
		return err
	}
	return nil
}

func (s *Session) send(evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return wrapError(CodeConnectionError, err, "marshal outbound event")
	}

	s.mu.Lock()
	ws := s.ws
	s.mu.Unlock()
	if ws == nil {
		return newError(CodeSessionUnavailable, "session %s has no transport", s.id)
	}
	ws.WriteText(data)
	return nil
}

// handleEvent is the inbound dispatcher. It runs on the transport's
// single reader goroutine, so events are processed strictly in arrival
// order.
func (s *Session) handleEvent(data []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Error("failed to parse event envelope", slog.Any("err", err))
		return nil
	}
	if s.cfg.metrics != nil {
		s.cfg.metrics.EventsTotal.WithLabelValues(env.Type).Inc()
	}

	switch events.KindOf(env.Type) {
	case events.KindSessionCreated:
		go func() {
			err := s.negotiate()
			select {
			case s.ready <- err:
			default:
			}
		}()

	case events.KindSessionUpdated:
		select {
		case s.updated <- struct{}{}:
		default:
		}

	case events.KindTextDelta:
		evt, err := events.Parse[events.DeltaEvent](data)
		if err != nil {
			s.logger.Error("failed to parse text delta", slog.Any("err", err))
			return nil
		}
		s.mu.Lock()
		if p := s.activePendingLocked(); p != nil {
			p.text.WriteString(evt.Delta)
		}
		s.mu.Unlock()

	case events.KindAudioDelta:
		evt, err := events.Parse[events.DeltaEvent](data)
		if err != nil {
			s.logger.Error("failed to parse audio delta", slog.Any("err", err))
			return nil
		}
		s.mu.Lock()
		p := s.activePendingLocked()
		s.mu.Unlock()
		if p != nil && p.returnAudio {
			if err := p.appendAudio(evt.Delta); err != nil {
				s.logger.Error("failed to decode audio delta", slog.Any("err", err))
			}
		}

	case events.KindAudioTranscriptDelta:
		evt, err := events.Parse[events.DeltaEvent](data)
		if err != nil {
			s.logger.Error("failed to parse audio transcript delta", slog.Any("err", err))
			return nil
		}
		s.mu.Lock()
		if p := s.activePendingLocked(); p != nil {
			p.transcript.WriteString(evt.Delta)
		}
		s.mu.Unlock()

	case events.KindInputTranscriptionCompleted:
		evt, err := events.Parse[events.InputAudioTranscriptionCompletedEvent](data)
		if err != nil {
			s.logger.Error("failed to parse input transcription", slog.Any("err", err))
			return nil
		}
		s.mu.Lock()
		if p := s.activePendingLocked(); p != nil && p.audioInput {
			p.inputTranscript = evt.Transcript
		}
		s.mu.Unlock()

	case events.KindResponseDone:
		s.mu.Lock()
		if p := s.activePendingLocked(); p != nil {
			s.settleLocked(p, settleResult{
				text:            p.responseText(),
				audioPCM:        p.audioBytes(),
				inputTranscript: p.inputTranscript,
			})
		}
		s.mu.Unlock()

	case events.KindError:
		msg := "remote service error"
		if evt, err := events.Parse[events.ErrorEvent](data); err == nil && evt.ErrorDetail.Message != "" {
			msg = evt.ErrorDetail.Error()
		}
		s.mu.Lock()
		p := s.activePendingLocked()
		if p != nil {
			s.settleLocked(p, settleResult{err: newError(CodeRemoteProtocolError, "%s", msg)})
		}
		s.mu.Unlock()
		if p == nil {
			s.logger.Warn("remote error with no pending request", slog.String("err", msg))
		}

	default:
		// Informational or unknown: intentionally ignored.
	}
	return nil
}

// activePendingLocked resolves "the currently active request" as the most
// recently registered unresolved entry. With calls serialized through
// callMu the table holds at most one entry, so this is exact.
func (s *Session) activePendingLocked() *pendingRequest {
	if len(s.order) == 0 {
		return nil
	}
	return s.pending[s.order[len(s.order)-1]]
}

func (s *Session) handleTransportClose(err error) {
	if err != nil {
		s.teardown(StatusError, wrapError(CodeConnectionError, err, "transport failed"))
	} else {
		s.teardown(StatusClosed, newError(CodeSessionUnavailable, "session %s closed", s.id))
	}
}

// teardown moves the session to a terminal status, rejects every pending
// request with the given cause, releases the transport and notifies the
// registry. Safe to call multiple times; only the first wins.
func (s *Session) teardown(status Status, cause error) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.status = status
	ws := s.ws
	s.ws = nil
	for _, id := range append([]string(nil), s.order...) {
		if p, ok := s.pending[id]; ok {
			s.settleLocked(p, settleResult{err: cause})
		}
	}
	s.mu.Unlock()

	// Unblock a connect() still waiting on negotiation.
	select {
	case s.ready <- cause:
	default:
	}

	if ws != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ws.Close(ctx); err != nil {
			s.logger.Debug("transport close failed", slog.Any("err", err))
		}
	}

	if s.onTerminate != nil {
		s.onTerminate(s)
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) appendTurns(turns ...Turn) {
	s.mu.Lock()
	s.history = append(s.history, turns...)
	s.mu.Unlock()
}

func (s *Session) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Summary is the read-only projection exposed to callers.
func (s *Session) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadata map[string]string
	if len(s.metadata) > 0 {
		metadata = make(map[string]string, len(s.metadata))
		for k, v := range s.metadata {
			metadata[k] = v
		}
	}
	return SessionSummary{
		ID:             s.id,
		Status:         s.status,
		Model:          s.model,
		Voice:          s.voice,
		Instructions:   s.instructions,
		Metadata:       metadata,
		CreatedAt:      s.createdAt,
		LastActivityAt: s.lastActivity,
		Turns:          len(s.history),
	}
}

// History returns a copy of the conversation log.
func (s *Session) History() History {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := append([]Turn(nil), s.history...)
	return History{ID: s.id, Messages: messages, Total: len(messages)}
}
