package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fwvoice/config"
	"fwvoice/core/persistence"
	"fwvoice/core/session"
	"fwvoice/models"

	"go.uber.org/zap"
)

// Backend is what the front ends need from the command client.
// *voice.Client satisfies it.
type Backend interface {
	session.Commander
	ListRules(ctx context.Context, cfg config.TransportConfig) (*models.VoiceResponse, error)
}

// ConsoleInterface is a line based chat front end.
type ConsoleInterface struct {
	backend       Backend
	log           *zap.Logger
	in            io.Reader
	out           io.Writer
	serverURL     string
	apiKey        string
	transcriptDir string

	session *session.Session
	replies chan string
	wg      sync.WaitGroup
}

// NewConsoleInterface creates a console front end. serverURL and apiKey may
// be empty, in which case the user is asked for them.
func NewConsoleInterface(backend Backend, cfg *config.Config, in io.Reader, out io.Writer, log *zap.Logger) *ConsoleInterface {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConsoleInterface{
		backend:       backend,
		log:           log,
		in:            in,
		out:           out,
		serverURL:     cfg.ServerURL,
		apiKey:        cfg.APIKey,
		transcriptDir: cfg.TranscriptDir,
		replies:       make(chan string, 16),
	}
}

// Run reads commands until EOF, /quit or ctx is done. Commands run in the
// background, so input is accepted while earlier replies are pending.
func (c *ConsoleInterface) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	defer func() {
		cancel()
		close(done)
		c.shutdown()
	}()

	c.showWelcome()
	lines := c.readLines(done)

	for {
		if c.session == nil {
			if !c.login(ctx, lines) {
				return nil
			}
			c.prompt()
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return nil

		case reply := <-c.replies:
			fmt.Fprintln(c.out, reply)

		case line, ok := <-lines:
			if !ok {
				c.drain()
				return nil
			}

			input := strings.TrimSpace(line)
			if input == "" {
				c.prompt()
				continue
			}
			if input == "/quit" || input == "/exit" {
				c.drain()
				return nil
			}

			c.processCommand(ctx, input)
			if c.session != nil {
				c.prompt()
			}
		}
	}
}

func (c *ConsoleInterface) prompt() {
	fmt.Fprint(c.out, "fw> ")
}

// readLines feeds input lines to a channel that is closed at EOF.
func (c *ConsoleInterface) readLines(done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// login asks for whatever credentials are missing and starts a session.
// It returns false when input ends or ctx is done first.
func (c *ConsoleInterface) login(ctx context.Context, lines <-chan string) bool {
	serverURL, apiKey := c.serverURL, c.apiKey

	for {
		var ok bool
		if strings.TrimSpace(serverURL) == "" {
			if serverURL, ok = c.ask(ctx, lines, "Server URL (http://<host>:5000): "); !ok {
				return false
			}
		}
		if strings.TrimSpace(apiKey) == "" {
			if apiKey, ok = c.ask(ctx, lines, "API Key: "); !ok {
				return false
			}
		}

		cfg, err := config.NewTransportConfig(serverURL, apiKey)
		if err == nil {
			c.session = session.New(cfg, c.backend, session.WithLogger(c.log))
			fmt.Fprintf(c.out, "🔐 Logged in to %s\n", cfg.BaseURL())
			return true
		}

		fmt.Fprintln(c.out, "❌ Both fields are required")
		serverURL, apiKey = "", ""
	}
}

func (c *ConsoleInterface) ask(ctx context.Context, lines <-chan string, question string) (string, bool) {
	fmt.Fprint(c.out, question)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		return line, ok
	}
}

// showWelcome prints the banner
func (c *ConsoleInterface) showWelcome() {
	fmt.Fprintln(c.out, "🛡️  ═══════════════════════════════════════════")
	fmt.Fprintln(c.out, "   Firewall voice command client")
	fmt.Fprintln(c.out, "═══════════════════════════════════════════")
	fmt.Fprintln(c.out, "Type a command such as \"block 1.2.3.4 port 22\" or /help.")
	fmt.Fprintln(c.out)
}

func (c *ConsoleInterface) processCommand(ctx context.Context, input string) {
	switch {
	case input == "/help":
		c.showHelp()
	case input == "/history":
		c.showHistory()
	case strings.HasPrefix(input, "/search"):
		c.search(strings.TrimSpace(strings.TrimPrefix(input, "/search")))
	case input == "/rules":
		c.listRules(ctx)
	case strings.HasPrefix(input, "/save"):
		c.save(strings.TrimSpace(strings.TrimPrefix(input, "/save")))
	case input == "/clear":
		c.clearScreen()
	case input == "/logout":
		c.logout()
	case strings.HasPrefix(input, "/"):
		fmt.Fprintf(c.out, "❓ Unknown command %s, try /help\n", input)
	default:
		c.send(ctx, input)
	}
}

// send runs the command in the background and posts the reply line.
func (c *ConsoleInterface) send(ctx context.Context, text string) {
	sess := c.session
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		entry, err := sess.Submit(ctx, text)
		if entry == nil {
			if err != nil && !errors.Is(err, session.ErrLoggedOut) && !errors.Is(err, context.Canceled) {
				c.post(models.SenderError.String() + ": " + err.Error())
			}
			return
		}
		c.post(entry.String())
	}()
}

func (c *ConsoleInterface) listRules(ctx context.Context) {
	cfg := c.session.Config()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		resp, err := c.backend.ListRules(ctx, cfg)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.post("❌ " + err.Error())
			}
			return
		}
		c.post(FormatRules(resp))
	}()
}

func (c *ConsoleInterface) post(line string) {
	c.replies <- line
}

// drain waits for in-flight commands and prints their replies.
func (c *ConsoleInterface) drain() {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	for {
		select {
		case reply := <-c.replies:
			fmt.Fprintln(c.out, reply)
		case <-done:
			for {
				select {
				case reply := <-c.replies:
					fmt.Fprintln(c.out, reply)
				default:
					return
				}
			}
		}
	}
}

func (c *ConsoleInterface) shutdown() {
	if c.session != nil {
		c.session.Logout()
		c.session = nil
	}
	// Replies of canceled commands are not printed.
	go func() {
		for range c.replies {
		}
	}()
	c.wg.Wait()
	close(c.replies)
	fmt.Fprintln(c.out, "👋 Bye!")
}

func (c *ConsoleInterface) logout() {
	c.session.Logout()
	c.session = nil
	c.serverURL, c.apiKey = "", ""
	fmt.Fprintln(c.out, "🔓 Logged out")
}

func (c *ConsoleInterface) showHistory() {
	commands := c.session.Commands()
	if len(commands) == 0 {
		fmt.Fprintln(c.out, "ℹ️ No commands sent yet")
		return
	}

	fmt.Fprintln(c.out, "📜 Commands:")
	for i, cmd := range commands {
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, cmd)
	}
}

func (c *ConsoleInterface) search(keyword string) {
	if keyword == "" {
		fmt.Fprintln(c.out, "Usage: /search <text>")
		return
	}

	found := c.session.Search(keyword)
	if len(found) == 0 {
		fmt.Fprintf(c.out, "ℹ️ Nothing matches %q\n", keyword)
		return
	}
	for _, e := range found {
		fmt.Fprintf(c.out, "  [%s] %s\n", e.At.Format("15:04:05"), e)
	}
}

func (c *ConsoleInterface) save(path string) {
	if path == "" {
		path = filepath.Join(c.transcriptDir, persistence.DefaultFileName(c.session.ID(), time.Now()))
	}

	store := persistence.NewTranscriptStore(path)
	err := store.Save(persistence.TranscriptExport{
		SessionID: c.session.ID(),
		ServerURL: c.session.Config().BaseURL(),
		Entries:   c.session.Transcript(),
	})
	if err != nil {
		c.log.Warn("saving transcript failed", zap.String("path", path), zap.Error(err))
		fmt.Fprintf(c.out, "❌ %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "💾 Transcript saved to %s\n", path)
}

// clearScreen pushes old output out of view
func (c *ConsoleInterface) clearScreen() {
	fmt.Fprint(c.out, strings.Repeat("\n", 50))
	fmt.Fprintln(c.out, "🛡️ Screen cleared (transcript kept)")
}

func (c *ConsoleInterface) showHelp() {
	fmt.Fprintln(c.out, "📚 ═══════════════ HELP ═══════════════")
	fmt.Fprintln(c.out, "Anything not starting with / is sent to the firewall controller, e.g.")
	fmt.Fprintln(c.out, "  block 1.2.3.4 port 22")
	fmt.Fprintln(c.out, "  unblock 1.2.3.4 all")
	fmt.Fprintln(c.out, "  list")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "  /rules           - show the controller's rule listing")
	fmt.Fprintln(c.out, "  /history         - commands sent in this session")
	fmt.Fprintln(c.out, "  /search <text>   - search the transcript")
	fmt.Fprintln(c.out, "  /save [file]     - write the transcript to a .json or .yaml file")
	fmt.Fprintln(c.out, "  /clear           - clear the screen")
	fmt.Fprintln(c.out, "  /logout          - end the session and log in again")
	fmt.Fprintln(c.out, "  /quit or /exit   - leave")
	fmt.Fprintln(c.out, "═══════════════════════════════════════")
}

// FormatRules renders a rule listing response for the console.
func FormatRules(resp *models.VoiceResponse) string {
	var b strings.Builder
	rules := resp.Rules
	if len(rules) == 0 && len(resp.Deleted) == 0 {
		if resp.Error != nil {
			return "❌ " + *resp.Error
		}
		return "ℹ️ No rules"
	}

	if len(rules) > 0 {
		b.WriteString("📋 Rules:")
		for i, r := range rules {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, r)
		}
	}
	if len(resp.Deleted) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("🗑️ Deleted:")
		for i, r := range resp.Deleted {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, r)
		}
	}
	return b.String()
}
