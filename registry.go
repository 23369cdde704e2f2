// Package bridge turns the realtime API's asynchronous, bidirectional
// streaming protocol into a call/return contract: create a session, send
// text or audio, get an aggregated response back. It owns session
// lifecycle, request/response correlation with timeouts, conversation
// history and idle-session reclamation.
package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns the set of live sessions. It enforces the capacity limit,
// guards against duplicate ids, runs the periodic idle sweep and is the
// only structure shared across sessions.
type Registry struct {
	cfg    *config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(opts ...Option) *Registry {
	cfg := &config{}
	withDefaults()(cfg)
	WithOptions(opts...)(cfg)

	r := &Registry{
		cfg:      cfg,
		logger:   cfg.logger,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.runSweeper()
	return r
}

// CreateSession opens a transport, negotiates configuration and returns
// the new session's summary. Partial state is discarded on any failure.
func (r *Registry) CreateSession(ctx context.Context, params CreateSessionParams) (*SessionSummary, error) {
	if err := r.cfg.validate(); err != nil {
		return nil, wrapError(CodeConnectionError, err, "invalid configuration")
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := newSession(r.cfg, id, params, r.logger)
	s.onTerminate = r.removeSession

	r.mu.Lock()
	if r.cfg.maxSessions > 0 && len(r.sessions) >= r.cfg.maxSessions {
		r.mu.Unlock()
		return nil, newError(CodeLimitExceeded, "session limit of %d reached", r.cfg.maxSessions)
	}
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, newError(CodeInvalidInput, "session id %q is already live", id)
	}
	r.sessions[id] = s
	r.mu.Unlock()

	if r.cfg.metrics != nil {
		r.cfg.metrics.ActiveSessions.Inc()
		r.cfg.metrics.SessionsTotal.WithLabelValues("created").Inc()
	}

	if err := s.connect(ctx); err != nil {
		r.logger.Warn("session creation failed",
			slog.String("session_id", id),
			slog.Any("err", err),
		)
		return nil, err
	}

	r.logger.Info("session created",
		slog.String("session_id", id),
		slog.String("model", s.model),
	)
	sum := s.Summary()
	return &sum, nil
}

// GetSession returns a session's summary, or nil when the id is unknown.
func (r *Registry) GetSession(id string) *SessionSummary {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	sum := s.Summary()
	return &sum
}

// ListSessions returns summaries ordered by creation time.
func (r *Registry) ListSessions() []SessionSummary {
	r.mu.RLock()
	out := make([]SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Summary())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CloseSession rejects all pending requests, releases the transport and
// removes the session. An unknown id yields a SessionNotFound error, so
// closing twice is safe.
func (r *Registry) CloseSession(id string) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return newError(CodeSessionNotFound, "session %q not found", id)
	}

	s.teardown(StatusClosed, newError(CodeSessionUnavailable, "session %s closed", id))
	return nil
}

// SendText forwards a text call to the session with the given id.
func (r *Registry) SendText(ctx context.Context, id, text string, returnAudio bool) (*CallResult, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.SendText(ctx, text, returnAudio)
}

// SendAudio forwards a base64 raw-PCM audio call to the session with the
// given id.
func (r *Registry) SendAudio(ctx context.Context, id, audioBase64 string, returnAudio bool) (*CallResult, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.SendAudio(ctx, audioBase64, returnAudio)
}

// UpdateInstructions replaces the session's instructions going forward.
func (r *Registry) UpdateInstructions(id, text string) error {
	s, err := r.lookup(id)
	if err != nil {
		return err
	}
	return s.UpdateInstructions(text)
}

// GetHistory returns the session's conversation log.
func (r *Registry) GetHistory(id string) (*History, error) {
	s, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	h := s.History()
	return &h, nil
}

// Close stops the sweeper and tears down every live session.
func (r *Registry) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()

	for _, s := range r.snapshot() {
		s.teardown(StatusClosed, newError(CodeSessionUnavailable, "registry shutting down"))
	}
	return ctx.Err()
}

func (r *Registry) lookup(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, newError(CodeSessionNotFound, "session %q not found", id)
	}
	return s, nil
}

func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// removeSession is the session's onTerminate hook. It drops the entry and
// hands the transcript to the archiver, best effort.
func (r *Registry) removeSession(s *Session) {
	r.mu.Lock()
	current, ok := r.sessions[s.id]
	if ok && current == s {
		delete(r.sessions, s.id)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if r.cfg.metrics != nil {
		r.cfg.metrics.ActiveSessions.Dec()
		r.cfg.metrics.SessionsTotal.WithLabelValues("closed").Inc()
	}
	r.logger.Info("session removed", slog.String("session_id", s.id))

	if r.cfg.archiver == nil {
		return
	}
	h := s.History()
	if len(h.Messages) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.cfg.archiver.ArchiveTranscript(ctx, s.id, h.Messages); err != nil {
			r.logger.Warn("transcript archive failed",
				slog.String("session_id", s.id),
				slog.Any("err", err),
			)
		}
	}()
}

func (r *Registry) runSweeper() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

// sweepIdle closes sessions whose last caller activity is older than the
// idle threshold. It works on a snapshot and uses the same idempotent
// close path callers do; failures are logged, never propagated.
func (r *Registry) sweepIdle() {
	now := time.Now()
	for _, s := range r.snapshot() {
		idle := now.Sub(s.lastActivityAt())
		if idle <= r.cfg.idleTimeout {
			continue
		}
		r.logger.Info("closing idle session",
			slog.String("session_id", s.id),
			slog.Duration("idle", idle),
		)
		if r.cfg.metrics != nil {
			r.cfg.metrics.SessionsTotal.WithLabelValues("reclaimed").Inc()
		}
		if err := r.CloseSession(s.id); err != nil {
			r.logger.Debug("idle close skipped", slog.String("session_id", s.id), slog.Any("err", err))
		}
	}
}
