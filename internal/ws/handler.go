package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 10 * time.Millisecond

func (ws *WSServer) Serve() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ws.MainHandler)
	return ws.corsMiddleware(mux)
}

func (ws *WSServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// MainHandler upgrades the connection and forwards every broadcast event to the
// client until it disconnects or falls too far behind.
func (ws *WSServer) MainHandler(w http.ResponseWriter, r *http.Request) {
	ws.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket connection request")

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		http.Error(w, "WebSocket connection failed", http.StatusInternalServerError)
		return
	}
	defer c.CloseNow()

	msgChan := make(chan []byte, 16)
	id := ws.broadcaster.RegisterReceiver(msgChan)
	defer ws.broadcaster.UnregisterReceiver(id)

	for {
		select {
		case m, ok := <-msgChan:
			if !ok {
				return
			}
			if err := ws.write(c, m); err != nil {
				ws.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket write failed")
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (ws *WSServer) write(c *websocket.Conn, m []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, m)
}
