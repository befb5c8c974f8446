package ui

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"fwvoice/metrics"
	"fwvoice/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// streamMessage is the envelope used in both directions on /ws.
// Server to client: {"event":"entry","data":<entry>}.
// Client to server: {"event":"send","text":"block 1.2.3.4"}.
type streamMessage struct {
	Event string                  `json:"event"`
	Data  *models.TranscriptEntry `json:"data,omitempty"`
	Text  string                  `json:"text,omitempty"`
}

const streamWriteWait = 10 * time.Second

func (w *WebInterface) handleWebSocket(wr http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(wr, "Token required", http.StatusUnauthorized)
		return
	}

	sess, err := w.authenticate(token)
	if err != nil {
		http.Error(wr, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := w.upgrader.Upgrade(wr, r, nil)
	if err != nil {
		w.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	entries, unsubscribe := sess.Subscribe(32)
	defer unsubscribe()

	w.log.Debug("stream connected", zap.String("session", sess.ID()))

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	readDone := make(chan struct{})
	defer func() {
		conn.Close()
		<-readDone
		cancel()
		wg.Wait()
	}()

	// The read loop ends when the peer goes away.
	go func() {
		defer close(readDone)
		for {
			var msg streamMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Event != "send" || strings.TrimSpace(msg.Text) == "" {
				continue
			}
			wg.Add(1)
			go func(text string) {
				defer wg.Done()
				// The reply reaches the peer through the subscription.
				sess.Submit(ctx, text)
			}(msg.Text)
		}
	}()

	for {
		select {
		case <-readDone:
			w.log.Debug("stream disconnected", zap.String("session", sess.ID()))
			return
		case entry, ok := <-entries:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logged out"),
					time.Now().Add(streamWriteWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamMessage{Event: "entry", Data: &entry}); err != nil {
				w.log.Debug("stream write failed", zap.String("session", sess.ID()), zap.Error(err))
				return
			}
		}
	}
}
