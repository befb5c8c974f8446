package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fwvoice/config"
	"fwvoice/core/voice"
	"fwvoice/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type commanderFunc func(ctx context.Context, cfg config.TransportConfig, text string) (string, error)

func (f commanderFunc) Send(ctx context.Context, cfg config.TransportConfig, text string) (string, error) {
	return f(ctx, cfg, text)
}

func echo() Commander {
	return commanderFunc(func(_ context.Context, _ config.TransportConfig, text string) (string, error) {
		return "ok: " + text, nil
	})
}

func setupTestSession(t *testing.T, c Commander) *Session {
	t.Helper()
	cfg, err := config.NewTransportConfig("http://10.0.0.5:5000", "k1")
	require.NoError(t, err)
	s := New(cfg, c)
	t.Cleanup(s.Logout)
	return s
}

func senders(entries []models.TranscriptEntry) []models.Sender {
	out := make([]models.Sender, len(entries))
	for i, e := range entries {
		out[i] = e.Sender
	}
	return out
}

func TestSubmitBlankIsNoop(t *testing.T) {
	called := false
	s := setupTestSession(t, commanderFunc(func(context.Context, config.TransportConfig, string) (string, error) {
		called = true
		return "", nil
	}))

	for _, text := range []string{"", "   ", "\t\n"} {
		entry, err := s.Submit(context.Background(), text)
		assert.NoError(t, err)
		assert.Nil(t, entry)
	}
	assert.False(t, called)
	assert.Equal(t, 0, s.Len())
}

func TestSubmitRecordsExchange(t *testing.T) {
	var gotCfg config.TransportConfig
	s := setupTestSession(t, commanderFunc(func(_ context.Context, cfg config.TransportConfig, text string) (string, error) {
		gotCfg = cfg
		return "✅ Rule added for 1.2.3.4", nil
	}))

	entry, err := s.Submit(context.Background(), "  block 1.2.3.4  ")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.SenderServer, entry.Sender)
	assert.Equal(t, "✅ Rule added for 1.2.3.4", entry.Text)
	assert.Equal(t, "k1", gotCfg.APIKey())

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "You: block 1.2.3.4", transcript[0].String())
	assert.Equal(t, "Server: ✅ Rule added for 1.2.3.4", transcript[1].String())
	assert.NotEqual(t, transcript[0].ID, transcript[1].ID)
}

func TestSubmitRecordsError(t *testing.T) {
	failure := &voice.ServerError{StatusCode: 401}
	s := setupTestSession(t, commanderFunc(func(context.Context, config.TransportConfig, string) (string, error) {
		return "", failure
	}))

	entry, err := s.Submit(context.Background(), "block 1.2.3.4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure))
	require.NotNil(t, entry)
	assert.Equal(t, models.SenderError, entry.Sender)
	assert.Equal(t, "server error: HTTP 401", entry.Text)
	assert.Equal(t, []models.Sender{models.SenderUser, models.SenderError}, senders(s.Transcript()))
}

func TestTranscriptKeepsInsertionOrder(t *testing.T) {
	s := setupTestSession(t, echo())
	ctx := context.Background()

	for _, cmd := range []string{"block 1.2.3.4", "list", "unblock 1.2.3.4"} {
		_, err := s.Submit(ctx, cmd)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"block 1.2.3.4", "list", "unblock 1.2.3.4"}, s.Commands())

	last := s.Last(2)
	require.Len(t, last, 2)
	assert.Equal(t, "unblock 1.2.3.4", last[0].Text)
	assert.Equal(t, "ok: unblock 1.2.3.4", last[1].Text)
	assert.Len(t, s.Last(0), 6)
	assert.Len(t, s.Last(100), 6)

	found := s.Search("1.2.3.4")
	assert.Len(t, found, 4)
	assert.Len(t, s.Search("LIST"), 2)
}

func TestConcurrentSubmits(t *testing.T) {
	s := setupTestSession(t, echo())

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := fmt.Sprintf("block 10.0.0.%d", i)
			entry, err := s.Submit(context.Background(), cmd)
			if assert.NoError(t, err) {
				assert.Equal(t, "ok: "+cmd, entry.Text)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2*n, s.Len())
	assert.Len(t, s.Commands(), n)
}

func TestLogoutDropsInFlightReply(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	inFlight := make(chan struct{})
	s := setupTestSession(t, commanderFunc(func(ctx context.Context, _ config.TransportConfig, _ string) (string, error) {
		close(inFlight)
		<-ctx.Done()
		return "", fmt.Errorf("voice request canceled: %w", ctx.Err())
	}))

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "block 1.2.3.4")
		done <- err
	}()

	<-inFlight
	s.Logout()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLoggedOut)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after logout")
	}

	assert.Equal(t, []models.Sender{models.SenderUser}, senders(s.Transcript()))
	assert.True(t, s.LoggedOut())

	_, err := s.Submit(context.Background(), "list")
	assert.ErrorIs(t, err, ErrLoggedOut)
	assert.Equal(t, 1, s.Len())
}

func TestCallerCancelRecordsNoReply(t *testing.T) {
	s := setupTestSession(t, commanderFunc(func(ctx context.Context, _ config.TransportConfig, _ string) (string, error) {
		<-ctx.Done()
		return "", fmt.Errorf("voice request canceled: %w", ctx.Err())
	}))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	entry, err := s.Submit(ctx, "block 1.2.3.4")
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.LoggedOut())
	assert.Equal(t, []models.Sender{models.SenderUser}, senders(s.Transcript()))
}

func TestSubscribe(t *testing.T) {
	s := setupTestSession(t, echo())

	entries, unsubscribe := s.Subscribe(8)
	_, err := s.Submit(context.Background(), "list")
	require.NoError(t, err)

	first := <-entries
	second := <-entries
	assert.Equal(t, models.SenderUser, first.Sender)
	assert.Equal(t, "ok: list", second.Text)

	unsubscribe()
	unsubscribe()
	_, open := <-entries
	assert.False(t, open)

	late, _ := s.Subscribe(1)
	s.Logout()
	_, open = <-late
	assert.False(t, open)

	afterLogout, _ := s.Subscribe(1)
	_, open = <-afterLogout
	assert.False(t, open)
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg, err := config.NewTransportConfig("http://10.0.0.5:5000", "k1")
	require.NoError(t, err)

	s := New(cfg, echo(), WithClock(func() time.Time { return fixed }))
	defer s.Logout()

	_, err = s.Submit(context.Background(), "list")
	require.NoError(t, err)
	for _, e := range s.Transcript() {
		assert.Equal(t, fixed, e.At)
	}
}
