package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"fwvoice/config"
	"fwvoice/core/voice"
	"fwvoice/metrics"
	"fwvoice/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ErrLoggedOut is returned by Submit once the session has been closed.
var ErrLoggedOut = errors.New("session logged out")

// Commander sends one command and returns the text to display.
// *voice.Client satisfies it.
type Commander interface {
	Send(ctx context.Context, cfg config.TransportConfig, text string) (string, error)
}

// Session is the transcript of one login. The transcript only grows; entries
// keep insertion order.
type Session struct {
	id        string
	cfg       config.TransportConfig
	commander Commander
	log       *zap.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	entries     []models.TranscriptEntry
	closed      bool
	subscribers map[int]chan models.TranscriptEntry
	nextSub     int
}

type Option func(*Session)

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func New(cfg config.TransportConfig, commander Commander, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          uuid.NewString(),
		cfg:         cfg,
		commander:   commander,
		log:         zap.NewNop(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]chan models.TranscriptEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("session", s.id))

	metrics.ActiveSessions.Inc()
	s.log.Info("session started", zap.Stringer("server", s.cfg))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Config() config.TransportConfig { return s.cfg }

// Submit sends text and records both sides of the exchange. Blank text is a
// no-op and returns a nil entry. On failure the recorded Error entry is
// returned along with the error. A canceled call records no reply.
// Concurrent calls are not serialized.
func (s *Session) Submit(ctx context.Context, text string) (*models.TranscriptEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	if _, ok := s.append(models.SenderUser, text); !ok {
		return nil, ErrLoggedOut
	}

	callCtx, stop := mergeCancel(ctx, s.ctx)
	defer stop()

	start := s.now()
	reply, err := s.commander.Send(callCtx, s.cfg, text)
	metrics.ObserveCommand(outcome(err), s.now().Sub(start).Seconds())

	if s.ctx.Err() != nil {
		s.log.Debug("dropping reply after logout", zap.String("command", text))
		return nil, ErrLoggedOut
	}
	if errors.Is(err, context.Canceled) {
		s.log.Debug("command canceled", zap.String("command", text))
		return nil, err
	}

	var (
		entry models.TranscriptEntry
		ok    bool
	)
	if err != nil {
		s.log.Warn("command failed", zap.String("command", text), zap.Error(err))
		entry, ok = s.append(models.SenderError, lo.Ternary(err.Error() == "", "Unknown", err.Error()))
	} else {
		entry, ok = s.append(models.SenderServer, reply)
	}
	if !ok {
		return nil, ErrLoggedOut
	}
	return &entry, err
}

// Logout cancels in-flight commands. Their replies are never recorded.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.mu.Unlock()

	metrics.ActiveSessions.Dec()
	s.log.Info("session logged out")
}

func (s *Session) LoggedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Transcript returns a copy of all entries.
func (s *Session) Transcript() []models.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TranscriptEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Last returns up to n most recent entries, oldest first.
func (s *Session) Last(n int) []models.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]models.TranscriptEntry, n)
	copy(out, s.entries[len(s.entries)-n:])
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Commands returns the text of every User entry.
func (s *Session) Commands() []string {
	return lo.FilterMap(s.Transcript(), func(e models.TranscriptEntry, _ int) (string, bool) {
		return e.Text, e.Sender == models.SenderUser
	})
}

// Search returns entries whose text contains keyword, case-insensitively.
func (s *Session) Search(keyword string) []models.TranscriptEntry {
	keyword = strings.ToLower(keyword)
	return lo.Filter(s.Transcript(), func(e models.TranscriptEntry, _ int) bool {
		return strings.Contains(strings.ToLower(e.Text), keyword)
	})
}

// Subscribe streams entries appended from now on. The channel is closed on
// logout or when the returned func is called. A subscriber that falls behind
// misses entries rather than blocking Submit.
func (s *Session) Subscribe(buffer int) (<-chan models.TranscriptEntry, func()) {
	ch := make(chan models.TranscriptEntry, buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subscribers[id]; ok {
				close(c)
				delete(s.subscribers, id)
			}
		})
	}
}

func (s *Session) append(sender models.Sender, text string) (models.TranscriptEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.TranscriptEntry{}, false
	}

	entry := models.TranscriptEntry{
		ID:     uuid.NewString(),
		Sender: sender,
		Text:   text,
		At:     s.now(),
	}
	s.entries = append(s.entries, entry)
	metrics.TranscriptEntries.Inc()

	for _, ch := range s.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
	return entry, true
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case voice.IsTimeout(err):
		return "timeout"
	case voice.IsTransport(err):
		return "transport"
	default:
		if _, ok := voice.AsServerError(err); ok {
			return "server"
		}
		return "error"
	}
}

// mergeCancel returns a context canceled when either parent is done.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(other, func() {
		cancel(context.Cause(other))
	})
	return merged, func() {
		stop()
		cancel(nil)
	}
}
