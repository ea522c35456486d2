package transport

import (
	"context"
	"net/http"
	"slices"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
)

const (
	pingInterval = 15 * time.Second
	pingTimeout  = 45 * time.Second

	// initTimeout bounds how long an init may wait for the session build.
	initTimeout = 30 * time.Second
)

// NewSocketServer binds h to a Socket.IO server on the root namespace. The
// caller runs Serve and mounts the server under /socket.io/.
func NewSocketServer(h *Handler, allowedOrigins []string) *socketio.Server {
	checkOrigin := originChecker(allowedOrigins)
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: checkOrigin},
			&websocket.Transport{CheckOrigin: checkOrigin},
		},
		PingInterval: pingInterval,
		PingTimeout:  pingTimeout,
	})

	server.OnConnect("/", func(conn socketio.Conn) error {
		return h.Connect(conn)
	})

	server.OnEvent("/", EventInit, func(conn socketio.Conn, params map[string]any) {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		h.Init(ctx, conn, params)
	})
	server.OnEvent("/", EventInput, func(conn socketio.Conn, raw map[string]any) {
		h.Input(conn, raw)
	})
	server.OnEvent("/", EventKeyDown, func(conn socketio.Conn, raw map[string]any) {
		h.KeyboardDown(conn, raw)
	})
	server.OnEvent("/", EventKeyUp, func(conn socketio.Conn, raw map[string]any) {
		h.KeyboardUp(conn, raw)
	})
	server.OnEvent("/", EventUIInput, func(conn socketio.Conn, raw map[string]any) {
		h.UIInput(conn, raw)
	})
	server.OnEvent("/", EventUpdateParam, func(conn socketio.Conn, params map[string]any) {
		h.UpdateParam(conn, params)
	})
	server.OnEvent("/", EventGetOutput, func(conn socketio.Conn) {
		h.GetOutput(conn)
	})

	server.OnError("/", func(conn socketio.Conn, err error) {
		if conn == nil {
			h.log.Warn("socket error", "error", err)
			return
		}
		h.log.Warn("socket error", "client", conn.ID(), "error", err)
	})
	server.OnDisconnect("/", func(conn socketio.Conn, reason string) {
		h.log.Debug("client disconnected", "client", conn.ID(), "reason", reason)
		h.Disconnect(conn.ID())
	})
	return server
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
