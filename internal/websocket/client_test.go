package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades every request and echoes text frames back.
func echoServer(t *testing.T, gotHeaders chan<- http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotHeaders != nil {
			gotHeaders <- r.Header.Clone()
		}
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			for {
				msg, op, err := wsutil.ReadClientData(conn)
				if err != nil {
					return
				}
				if op == ws.OpText {
					if err := wsutil.WriteServerMessage(conn, ws.OpText, msg); err != nil {
						return
					}
				}
			}
		}()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientEchoAndClose(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := echoServer(t, headers)

	received := make(chan string, 10)
	closed := make(chan error, 1)

	reqHeaders := http.Header{}
	reqHeaders.Add("Authorization", "Bearer test-token")

	client, err := Connect(context.Background(), ClientConfig{
		URL:     wsURL(srv),
		Headers: reqHeaders,
		OnText: func(data []byte) error {
			received <- string(data)
			return nil
		},
		OnClose: func(err error) {
			closed <- err
		},
	})
	require.NoError(t, err)

	require.Equal(t, "Bearer test-token", (<-headers).Get("Authorization"))

	client.WriteText([]byte("hello"))
	select {
	case msg := <-received:
		require.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("echo never arrived")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Close(ctx))

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close callback never fired")
	}

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done channel never closed")
	}
}

func TestClientServerInitiatedClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			_ = wsutil.WriteServerMessage(conn, ws.OpClose,
				ws.NewCloseFrameBody(ws.StatusNormalClosure, "going away"))
			_, _, _ = wsutil.ReadClientData(conn)
		}()
	}))
	t.Cleanup(srv.Close)

	closed := make(chan error, 1)
	client, err := Connect(context.Background(), ClientConfig{
		URL:     wsURL(srv),
		OnClose: func(err error) { closed <- err },
	})
	require.NoError(t, err)

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close callback never fired")
	}

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done channel never closed")
	}
}

func TestConnectFailure(t *testing.T) {
	srv := echoServer(t, nil)
	srv.Close()

	_, err := Connect(context.Background(), ClientConfig{
		URL:         wsURL(srv),
		DialTimeout: 500 * time.Millisecond,
	})
	require.Error(t, err)
}

func TestCloseIsIdempotentUnderDoubleCall(t *testing.T) {
	srv := echoServer(t, nil)

	closed := make(chan error, 2)
	client, err := Connect(context.Background(), ClientConfig{
		URL:     wsURL(srv),
		OnClose: func(err error) { closed <- err },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Close(ctx))
	require.NoError(t, client.Close(ctx))

	require.NoError(t, <-closed)
	select {
	case err := <-closed:
		t.Fatalf("close callback fired twice: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}
