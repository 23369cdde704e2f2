// Package httpapi exposes the bridge engine over HTTP. It is a thin
// surface: request decoding, error-code to status mapping and audio
// container conversion happen here; everything else is delegated to the
// registry.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	bridge "github.com/EurekaEstudio/openai-realtime-voice-bridge"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/audio"
	"github.com/EurekaEstudio/openai-realtime-voice-bridge/internal/metrics"
)

var errEmptyBody = errors.New("empty body")

type Server struct {
	registry *bridge.Registry
}

func New(registry *bridge.Registry) *Server {
	return &Server{registry: registry}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Delete("/v1/sessions/{id}", s.handleCloseSession)
	r.Post("/v1/sessions/{id}/text", s.handleSendText)
	r.Post("/v1/sessions/{id}/audio", s.handleSendAudio)
	r.Post("/v1/sessions/{id}/instructions", s.handleUpdateInstructions)
	r.Get("/v1/sessions/{id}/history", s.handleGetHistory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var params bridge.CreateSessionParams
	if err := decodeJSON(r, &params); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sum, err := s.registry.CreateSession(r.Context(), params)
	if err != nil {
		respondBridgeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sum)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.registry.ListSessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sum := s.registry.GetSession(id)
	if sum == nil {
		respondError(w, http.StatusNotFound, string(bridge.CodeSessionNotFound), "session not found")
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.CloseSession(id); err != nil {
		respondBridgeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

type sendTextRequest struct {
	Text        string `json:"text"`
	ReturnAudio bool   `json:"return_audio"`
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req sendTextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, string(bridge.CodeInvalidInput), "text must not be empty")
		return
	}

	result, err := s.registry.SendText(r.Context(), id, req.Text, req.ReturnAudio)
	if err != nil {
		respondBridgeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type sendAudioRequest struct {
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"` // "pcm", "wav" or "" for sniffing
	ReturnAudio bool   `json:"return_audio"`
}

func (s *Server) handleSendAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req sendAudioRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.AudioBase64 == "" {
		respondError(w, http.StatusBadRequest, string(bridge.CodeInvalidInput), "audio_base64 must not be empty")
		return
	}

	payload, err := normalizeAudio(req.AudioBase64, req.Format)
	if err != nil {
		respondError(w, http.StatusBadRequest, string(bridge.CodeInvalidInput), err.Error())
		return
	}

	result, err := s.registry.SendAudio(r.Context(), id, payload, req.ReturnAudio)
	if err != nil {
		respondBridgeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// normalizeAudio converts WAV-wrapped caller audio to the raw PCM the
// engine expects. Containers are detected by the declared format, or by
// the RIFF signature when the caller did not say.
func normalizeAudio(audioBase64, format string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return "", errors.New("audio payload is not valid base64")
	}

	isWAV := false
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "wav":
		isWAV = true
	case "pcm", "pcm16":
		isWAV = false
	case "":
		isWAV = audio.IsWAV(data)
	default:
		return "", errors.New("format must be \"pcm\" or \"wav\"")
	}
	if !isWAV {
		return audioBase64, nil
	}

	pcm, err := audio.DecodeWAV(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pcm), nil
}

type updateInstructionsRequest struct {
	Instructions string `json:"instructions"`
}

func (s *Server) handleUpdateInstructions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateInstructionsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.registry.UpdateInstructions(id, req.Instructions); err != nil {
		respondBridgeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := s.registry.GetHistory(id)
	if err != nil {
		respondBridgeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func statusForCode(code bridge.Code) int {
	switch code {
	case bridge.CodeInvalidInput:
		return http.StatusBadRequest
	case bridge.CodeSessionNotFound:
		return http.StatusNotFound
	case bridge.CodeSessionUnavailable:
		return http.StatusConflict
	case bridge.CodeLimitExceeded:
		return http.StatusTooManyRequests
	case bridge.CodeRequestTimeout, bridge.CodeConnectionTimeout:
		return http.StatusGatewayTimeout
	case bridge.CodeConnectionError, bridge.CodeRemoteProtocolError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondBridgeError(w http.ResponseWriter, err error) {
	code := bridge.CodeOf(err)
	if code == "" {
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	respondError(w, statusForCode(code), string(code), err.Error())
}

func respondError(w http.ResponseWriter, status int, code, detail string) {
	respondJSON(w, status, map[string]string{
		"error":  code,
		"detail": detail,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 32<<20))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(body, dst)
}
