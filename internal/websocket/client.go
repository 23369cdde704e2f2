// Package websocket wraps a gobwas/ws client connection behind a small
// channel-based API: one reader goroutine, one writer goroutine, and a
// dispatcher invoking the configured callbacks in arrival order.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header

	// OnText is invoked for every inbound text frame, strictly in arrival
	// order from a single goroutine.
	OnText func(data []byte) error

	// OnClose is invoked exactly once when the connection ends, with a nil
	// error for a clean close and the read error otherwise.
	OnClose func(err error)

	Logger *slog.Logger
}

type Client struct {
	out       chan wsutil.Message
	done      chan struct{}
	doneOnce  sync.Once
	closeErr  error
	closing   atomic.Bool
	onClose   func(err error)
	closeOnce sync.Once
	logger    *slog.Logger
}

func (c *Client) shutdown(err error) {
	c.doneOnce.Do(func() {
		c.closeErr = err
		close(c.done)
	})
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose(c.closeErr)
		}
	})
}

// Done is closed once the connection has terminated.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) WriteText(data []byte) {
	c.write(ws.OpText, data)
}

func (c *Client) Ping(data []byte) {
	c.write(ws.OpPing, data)
}

// Close sends a close frame and waits for the connection to wind down.
func (c *Client) Close(ctx context.Context) error {
	c.closing.Store(true)
	c.write(ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, "closing"))
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.shutdown(ctx.Err())
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (c *Client) write(opcode ws.OpCode, data []byte) {
	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
	case <-c.done:
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("url", config.URL))

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, _, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	if buf != nil {
		defer ws.PutReader(buf)
	}

	logger.Debug("websocket connected")

	var (
		input  = make(chan wsutil.Message, 1000)
		output = make(chan wsutil.Message, 1000)
	)

	client := &Client{
		out:     output,
		done:    make(chan struct{}),
		onClose: config.OnClose,
		logger:  logger,
	}

	onText := config.OnText
	if onText == nil {
		onText = func([]byte) error { return nil }
	}

	// websocket -> input channel
	go func() {
		defer close(input)
		for {
			messages, err := wsutil.ReadServerMessage(conn, nil)
			if err != nil {
				if errors.Is(err, io.EOF) || client.closing.Load() {
					client.shutdown(nil)
					return
				}
				select {
				case <-client.done:
				default:
					logger.Error("ws read failed", slog.Any("err", err))
				}
				client.shutdown(err)
				return
			}
			for _, msg := range messages {
				input <- msg
			}
		}
	}()

	// output channel -> websocket
	go func() {
		defer conn.Close()
		for {
			select {
			case <-client.done:
				return
			case msg := <-output:
				if err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload); err != nil {
					logger.Error("ws write failed", slog.Any("err", err))
					client.shutdown(err)
					return
				}
				if msg.OpCode == ws.OpClose {
					return
				}
			}
		}
	}()

	// input channel processing
	go func() {
		for msg := range input {
			if ws.OpCode.IsControl(msg.OpCode) {
				if err := wsutil.HandleServerControlMessage(conn, msg); err != nil {
					logger.Debug("control message handling failed", slog.Any("err", err))
				}
				if msg.OpCode == ws.OpClose {
					logger.Debug("ws closed by peer", slog.String("reason", string(msg.Payload)))
					client.shutdown(nil)
					return
				}
				continue
			}

			if msg.OpCode == ws.OpText {
				if err := onText(msg.Payload); err != nil {
					logger.Error("text message handler failed", slog.Any("err", err))
				}
			}
		}
		client.shutdown(client.closeErr)
	}()

	return client, nil
}
