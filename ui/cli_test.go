package ui

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fwvoice/config"
	"fwvoice/core/persistence"
	"fwvoice/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConsole(t *testing.T, client Backend, cfg *config.Config, input string) string {
	t.Helper()

	var out bytes.Buffer
	console := NewConsoleInterface(client, cfg, strings.NewReader(input), &out, nil)
	require.NoError(t, console.Run(context.Background()))
	return out.String()
}

func TestConsoleSendsCommand(t *testing.T) {
	srv, client := newController(t)
	out := runConsole(t, client, &config.Config{ServerURL: srv.URL, APIKey: testKey}, "block 1.2.3.4\n")

	assert.Contains(t, out, "Logged in to "+srv.URL)
	assert.Contains(t, out, "Server: ✅ Rule added for 1.2.3.4")
	assert.Contains(t, out, "👋 Bye!")
}

func TestConsoleAsksForCredentials(t *testing.T) {
	srv, client := newController(t)
	input := strings.Join([]string{"", "", srv.URL, testKey, "list", "/quit"}, "\n") + "\n"
	out := runConsole(t, client, &config.Config{}, input)

	assert.Contains(t, out, "Server URL")
	assert.Contains(t, out, "API Key: ")
	assert.Contains(t, out, "❌ Both fields are required")
	assert.Contains(t, out, "Logged in to "+srv.URL)
	assert.Contains(t, out, "Server: 2 rules")
}

func TestConsoleReportsServerError(t *testing.T) {
	srv, client := newController(t)
	out := runConsole(t, client, &config.Config{ServerURL: srv.URL, APIKey: "wrong"}, "list\n")

	assert.Contains(t, out, "Error: server error: HTTP 401")
	assert.NotContains(t, out, "wrong")
}

func TestConsoleUnknownCommand(t *testing.T) {
	srv, client := newController(t)
	out := runConsole(t, client, &config.Config{ServerURL: srv.URL, APIKey: testKey}, "/frobnicate\n")

	assert.Contains(t, out, "Unknown command /frobnicate")
}

func TestConsoleRules(t *testing.T) {
	srv, client := newController(t)
	out := runConsole(t, client, &config.Config{ServerURL: srv.URL, APIKey: testKey}, "/rules\n")

	assert.Contains(t, out, "📋 Rules:")
	assert.Contains(t, out, "1. block 1.2.3.4 22")
	assert.Contains(t, out, "2. block 5.6.7.8 all")
}

func TestConsoleHistoryBeforeAnyCommand(t *testing.T) {
	srv, client := newController(t)
	out := runConsole(t, client, &config.Config{ServerURL: srv.URL, APIKey: testKey}, "/history\n/search block\n")

	assert.Contains(t, out, "No commands sent yet")
	assert.Contains(t, out, `Nothing matches "block"`)
}

func TestConsoleSave(t *testing.T) {
	srv, client := newController(t)
	path := filepath.Join(t.TempDir(), "session.yaml")
	out := runConsole(t, client, &config.Config{ServerURL: srv.URL, APIKey: testKey}, "/save "+path+"\n")

	assert.Contains(t, out, "Transcript saved to "+path)

	export, err := persistence.NewTranscriptStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, srv.URL, export.ServerURL)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), testKey)
}

func TestConsoleLogoutAsksAgain(t *testing.T) {
	srv, client := newController(t)
	input := strings.Join([]string{"/logout", srv.URL, testKey, "/quit"}, "\n") + "\n"
	out := runConsole(t, client, &config.Config{ServerURL: srv.URL, APIKey: testKey}, input)

	assert.Contains(t, out, "🔓 Logged out")
	assert.Equal(t, 2, strings.Count(out, "Logged in to "+srv.URL))
}

func TestConsoleStopsWhenInputEndsDuringLogin(t *testing.T) {
	_, client := newController(t)
	out := runConsole(t, client, &config.Config{}, "")

	assert.Contains(t, out, "Server URL")
	assert.Contains(t, out, "👋 Bye!")
}

func TestFormatRules(t *testing.T) {
	msg := "nothing to list"
	tests := []struct {
		name string
		resp *models.VoiceResponse
		want string
	}{
		{"empty", &models.VoiceResponse{}, "ℹ️ No rules"},
		{"error", &models.VoiceResponse{Error: &msg}, "❌ nothing to list"},
		{
			"rules and deleted",
			&models.VoiceResponse{
				Rules:   models.RuleList{{Raw: "block 1.2.3.4 22"}},
				Deleted: models.RuleList{{Raw: "block 9.9.9.9 all"}},
			},
			"📋 Rules:\n  1. block 1.2.3.4 22\n🗑️ Deleted:\n  1. block 9.9.9.9 all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRules(tt.resp))
		})
	}
}
