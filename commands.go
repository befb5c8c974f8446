package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fwvoice/core/persistence"
	"fwvoice/core/session"
	"fwvoice/models"
	"fwvoice/ui"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr string
	serveOpen bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Log in and type commands interactively",
	Long: `Starts the interactive chat. Missing server URL or API key are asked for.
Type /help inside the chat for the slash commands.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var sendCmd = &cobra.Command{
	Use:   "send [command]...",
	Short: "Send one or more commands and print the replies",
	Long: `Each argument is sent as its own command. Commands run concurrently and the
replies are printed in argument order. The exit status is non-zero if any
command failed.

Example:
  fwvoice send "block 1.2.3.4 port 22" "list"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the controller's rule listing",
	Args:  cobra.NoArgs,
	RunE:  runRules,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local web gateway",
	Long: `Serves a JSON and websocket gateway in front of the controller. Browsers log
in with a server URL and API key and get a session token back; the key stays
in this process.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Work with saved transcripts",
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Print a transcript saved with /save",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptShow,
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	client := newClient()
	defer client.CloseIdleConnections()

	console := ui.NewConsoleInterface(client, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	return console.Run(ctx)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	transport, err := cfg.Transport()
	if err != nil {
		return err
	}

	client := newClient()
	defer client.CloseIdleConnections()

	sess := session.New(transport, client, session.WithLogger(logger))
	defer sess.Logout()

	lines := make([]string, len(args))
	failed := make([]bool, len(args))

	g, gctx := errgroup.WithContext(ctx)
	for i, text := range args {
		g.Go(func() error {
			entry, err := sess.Submit(gctx, text)
			switch {
			case entry != nil:
				lines[i] = entry.String()
				failed[i] = entry.Sender == models.SenderError
			case err != nil:
				lines[i] = models.SenderError.String() + ": " + err.Error()
				failed[i] = true
			default:
				lines[i] = models.SenderError.String() + ": empty command"
				failed[i] = true
			}
			// Failures are reported per line; the others keep running.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	n := 0
	for i, line := range lines {
		fmt.Fprintln(out, line)
		if failed[i] {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%d of %d commands failed", n, len(args))
	}
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	transport, err := cfg.Transport()
	if err != nil {
		return err
	}

	client := newClient()
	defer client.CloseIdleConnections()

	resp, err := client.ListRules(ctx, transport)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.FormatRules(resp))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	addr := serveAddr
	if addr == "" {
		addr = cfg.WebAddr
	}

	client := newClient()
	defer client.CloseIdleConnections()

	web, err := ui.NewWebInterface(client, cfg.WebSecret, logger)
	if err != nil {
		return err
	}
	if cfg.WebSecret == "" {
		logger.Warn("FWVOICE_WEB_SECRET not set, tokens will not survive a restart")
	}

	if serveOpen {
		url := "http://" + addr
		if strings.HasPrefix(addr, ":") {
			url = "http://localhost" + addr
		}
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := open.Run(url); err != nil {
				logger.Warn("could not open browser", zap.String("url", url), zap.Error(err))
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "🌐 Gateway on %s, Ctrl+C to stop\n", addr)
	return web.Start(ctx, addr)
}

func runTranscriptShow(cmd *cobra.Command, args []string) error {
	export, err := persistence.NewTranscriptStore(args[0]).Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s with %s, saved %s\n", export.SessionID, export.ServerURL, export.SavedAt.Local().Format(time.DateTime))
	for _, e := range export.Entries {
		fmt.Fprintf(out, "[%s] %s\n", e.At.Local().Format(time.TimeOnly), e)
	}
	return nil
}
