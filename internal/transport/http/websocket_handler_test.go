package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherrador/tightening-project/internal/config"
	"github.com/gherrador/tightening-project/internal/shared/testutil"
	ws "github.com/gherrador/tightening-project/internal/websocket"
)

func newWSServer(t *testing.T, allowed []string) (*httptest.Server, *ws.Hub) {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	hub := ws.NewHub(logger, ws.WithKeepAlive(time.Hour, 2*time.Hour))
	hub.Start()
	t.Cleanup(hub.Stop)

	h := NewWebSocketHandler(hub, config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024}, allowed, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, hub
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketHandler_ConnectsAndReceivesBroadcast(t *testing.T) {
	srv, hub := newWSServer(t, []string{"http://dash.local"})

	header := http.Header{}
	header.Set("Origin", "http://dash.local")
	conn, resp, err := gws.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var hello ws.Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, ws.TypeConnection, hello.Type)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(context.Background(), "build:completed", map[string]string{"id": "b-1"})
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "build:completed", msg.Type)
	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b-1"}`, string(raw))
}

func TestWebSocketHandler_Origins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		wantOK  bool
	}{
		{"no origin header", []string{"http://dash.local"}, "", true},
		{"listed origin", []string{"http://dash.local"}, "http://DASH.local", true},
		{"foreign origin", []string{"http://dash.local"}, "http://evil.local", false},
		{"no allow list", nil, "http://anything.local", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newWSServer(t, tt.allowed)
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := gws.DefaultDialer.Dial(wsURL(srv), header)
			if resp != nil {
				defer resp.Body.Close()
			}
			if tt.wantOK {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}
