// File: internal/server/stream.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smartdevs17/qrcode-generator/internal/viewstate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamMessage is what clients send on the history stream
type streamMessage struct {
	Query string `json:"query"`
}

// streamHandler pushes history snapshots over a websocket. Each connection
// owns its own history model so searches do not leak between clients.
func (s *HTTPServer) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade history stream")
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	if s.metricsManager != nil {
		gauge := s.metricsManager.GetPrometheusMetrics().StreamClients
		gauge.Inc()
		defer gauge.Dec()
	}

	model := viewstate.NewHistoryModel(s.repo)
	model.Query.Set(r.URL.Query().Get("q"))
	model.Start(ctx)
	defer model.Stop()

	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	forward(model.Records.Subscribe(ctx), notify)
	forward(model.Loading.Subscribe(ctx), notify)
	forward(model.Error.Subscribe(ctx), notify)
	forward(model.Query.Subscribe(ctx), notify)

	go s.readStream(conn, model, cancel)

	s.logger.WithField("request_id", RequestID(r.Context())).Debug("History stream opened")
	s.writeStream(ctx, conn, model, changed)
	s.logger.WithField("request_id", RequestID(r.Context())).Debug("History stream closed")
}

// forward turns every emission of ch into a change signal
func forward[T any](ch <-chan T, notify func()) {
	go func() {
		for range ch {
			notify()
		}
	}()
}

// readStream applies client search updates until the connection fails
func (s *HTTPServer) readStream(conn *websocket.Conn, model *viewstate.HistoryModel, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.WithError(err).Debug("History stream read failed")
			}
			return
		}
		model.UpdateSearchQuery(msg.Query)
	}
}

// writeStream is the only writer on conn
func (s *HTTPServer) writeStream(ctx context.Context, conn *websocket.Conn, model *viewstate.HistoryModel, changed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-changed:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(model.Snapshot()); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
