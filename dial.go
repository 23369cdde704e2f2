package bridge

import (
	"context"
	"log/slog"

	"github.com/EurekaEstudio/openai-realtime-voice-bridge/internal/websocket"
)

// defaultDialer speaks websocket to the realtime API.
func defaultDialer(logger *slog.Logger) Dialer {
	return func(ctx context.Context, cfg DialConfig) (Transport, error) {
		return websocket.Connect(ctx, websocket.ClientConfig{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			OnText:  cfg.OnText,
			OnClose: cfg.OnClose,
			Logger:  logger,
		})
	}
}
