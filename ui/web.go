package ui

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"fwvoice/config"
	"fwvoice/core/session"
	"fwvoice/metrics"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// WebInterface is a local JSON and websocket gateway. Each login gets its own
// session; the API key stays in memory on this side and the browser only
// holds a signed token naming the session.
type WebInterface struct {
	backend  Backend
	log      *zap.Logger
	secret   []byte
	tokenTTL time.Duration
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*gatewaySession
}

// gatewaySession is a session held until its token expires.
type gatewaySession struct {
	*session.Session
	expires time.Time
}

// NewWebInterface creates the gateway. An empty secret is replaced with a
// random one, which invalidates tokens on restart.
func NewWebInterface(backend Backend, secret string, log *zap.Logger) (*WebInterface, error) {
	if log == nil {
		log = zap.NewNop()
	}

	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}

	return &WebInterface{
		backend:  backend,
		log:      log,
		secret:   key,
		tokenTTL: 60 * time.Minute,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*gatewaySession),
	}, nil
}

// metricsMiddleware counts and times requests per endpoint.
func metricsMiddleware(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		metrics.HttpRequestsTotal.WithLabelValues(
			r.Method,
			endpoint,
			strconv.Itoa(wrapped.statusCode),
		).Inc()

		metrics.HttpRequestDuration.WithLabelValues(
			r.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the gateway routes wrapped in CORS handling.
func (w *WebInterface) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login", metricsMiddleware("/api/login", w.handleLogin))
	mux.HandleFunc("/api/send", metricsMiddleware("/api/send", w.authMiddleware(w.handleSend)))
	mux.HandleFunc("/api/transcript", metricsMiddleware("/api/transcript", w.authMiddleware(w.handleTranscript)))
	mux.HandleFunc("/api/rules", metricsMiddleware("/api/rules", w.authMiddleware(w.handleRules)))
	mux.HandleFunc("/api/logout", metricsMiddleware("/api/logout", w.authMiddleware(w.handleLogout)))
	mux.HandleFunc("/ws", w.handleWebSocket)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(wr http.ResponseWriter, _ *http.Request) {
		wr.WriteHeader(http.StatusOK)
		wr.Write([]byte("OK"))
	})

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
}

// Start serves until ctx is done, then logs every session out.
func (w *WebInterface) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	reapCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go w.reapLoop(reapCtx)

	errCh := make(chan error, 1)
	go func() {
		w.log.Info("gateway listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		w.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close logs out every session.
func (w *WebInterface) Close() {
	w.mu.Lock()
	sessions := w.sessions
	w.sessions = make(map[string]*gatewaySession)
	w.mu.Unlock()

	for _, s := range sessions {
		s.Logout()
	}
}

type loginRequest struct {
	ServerURL string `json:"server_url"`
	APIKey    string `json:"api_key"`
}

type loginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

type sendRequest struct {
	Text string `json:"text"`
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json")
	wr.WriteHeader(status)
	json.NewEncoder(wr).Encode(v)
}

func writeError(wr http.ResponseWriter, status int, msg string) {
	writeJSON(wr, status, map[string]string{"error": msg})
}

func (w *WebInterface) handleLogin(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(wr, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(wr, http.StatusBadRequest, "invalid request")
		return
	}

	cfg, err := config.NewTransportConfig(req.ServerURL, req.APIKey)
	if err != nil {
		writeError(wr, http.StatusBadRequest, "Both fields are required")
		return
	}

	sess := session.New(cfg, w.backend, session.WithLogger(w.log))
	token, err := w.createToken(sess.ID())
	if err != nil {
		sess.Logout()
		writeError(wr, http.StatusInternalServerError, "failed to create token")
		return
	}

	w.mu.Lock()
	w.sessions[sess.ID()] = &gatewaySession{Session: sess, expires: time.Now().Add(w.tokenTTL)}
	w.mu.Unlock()

	w.log.Info("gateway login", zap.String("session", sess.ID()), zap.String("server", cfg.BaseURL()))
	writeJSON(wr, http.StatusOK, loginResponse{Token: token, SessionID: sess.ID()})
}

func (w *WebInterface) handleSend(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(wr, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(wr, http.StatusBadRequest, "invalid request")
		return
	}

	sess := sessionFrom(r.Context())
	entry, err := sess.Submit(r.Context(), req.Text)
	switch {
	case errors.Is(err, session.ErrLoggedOut):
		writeError(wr, http.StatusUnauthorized, "session logged out")
	case errors.Is(err, context.Canceled):
		// client went away
	case entry == nil:
		writeError(wr, http.StatusBadRequest, "text required")
	default:
		writeJSON(wr, http.StatusOK, entry)
	}
}

func (w *WebInterface) handleTranscript(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(wr, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(wr, http.StatusOK, sessionFrom(r.Context()).Transcript())
}

func (w *WebInterface) handleRules(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(wr, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess := sessionFrom(r.Context())
	resp, err := w.backend.ListRules(r.Context(), sess.Config())
	if err != nil {
		writeError(wr, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(wr, http.StatusOK, resp)
}

func (w *WebInterface) handleLogout(wr http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(wr, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	w.drop(sessionFrom(r.Context()).ID())

	wr.WriteHeader(http.StatusNoContent)
}

func (w *WebInterface) lookup(id string) (*session.Session, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Session, true
}

// drop forgets a session and logs it out.
func (w *WebInterface) drop(id string) {
	w.mu.Lock()
	s, ok := w.sessions[id]
	delete(w.sessions, id)
	w.mu.Unlock()

	if ok {
		s.Logout()
	}
}

// reap drops every session whose token expired before now.
func (w *WebInterface) reap(now time.Time) int {
	var expired []*gatewaySession

	w.mu.Lock()
	for id, s := range w.sessions {
		if !now.Before(s.expires) {
			expired = append(expired, s)
			delete(w.sessions, id)
		}
	}
	w.mu.Unlock()

	for _, s := range expired {
		s.Logout()
	}
	if len(expired) > 0 {
		w.log.Debug("expired sessions dropped", zap.Int("count", len(expired)))
	}
	return len(expired)
}

func (w *WebInterface) reapLoop(ctx context.Context) {
	interval := min(max(w.tokenTTL/2, 10*time.Millisecond), time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.reap(now)
		}
	}
}
