package ui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fwvoice/core/voice"
	"fwvoice/models"
)

const testKey = "k1"

// newController starts a fake firewall controller that understands block and
// list, and rejects requests without the right key.
func newController(t *testing.T) (*httptest.Server, *voice.Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(voice.VoicePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(voice.APIKeyHeader) != testKey {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}

		var req models.VoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fields := strings.Fields(req.Text)
		switch {
		case len(fields) >= 2 && fields[0] == "block":
			json.NewEncoder(w).Encode(map[string]string{"result": "✅ Rule added for " + fields[1]})
		case len(fields) == 1 && fields[0] == "list":
			json.NewEncoder(w).Encode(map[string]string{"status": "2 rules"})
		default:
			json.NewEncoder(w).Encode(map[string]string{"error": "could not understand " + req.Text})
		}
	})
	mux.HandleFunc(voice.RulesPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(voice.APIKeyHeader) != testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok": map[string]string{"rules": "block 1.2.3.4 22\nblock 5.6.7.8 all\n"},
		})
	})

	srv := httptest.NewServer(mux)
	client := voice.NewClient()
	t.Cleanup(func() {
		client.CloseIdleConnections()
		srv.Close()
	})
	return srv, client
}
