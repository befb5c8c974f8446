package main

import (
	"fmt"
	"os"
	"time"

	"fwvoice/config"
	"fwvoice/core/voice"
	"fwvoice/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose   bool
	serverURL string
	apiKey    string
	timeout   time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fwvoice",
	Short: "Send free-text commands to a firewall controller",
	Long: `fwvoice talks to a firewall controller that accepts commands such as
"block 1.2.3.4 port 22" at POST /api/voice, authenticated with an x-api-key
header.

Settings come from FWVOICE_* environment variables, an optional .env file in
the working directory, and the flags below (flags win).

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(nil)
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.LogLevel, verbose)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("server") {
			cfg.ServerURL = serverURL
		}
		if cmd.Flags().Changed("api-key") {
			cfg.APIKey = apiKey
		}
		if cmd.Flags().Changed("timeout") {
			if timeout <= 0 {
				return fmt.Errorf("--timeout must be positive, got %s", timeout)
			}
			cfg.CallTimeout = timeout
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Controller URL, e.g. http://10.0.0.5:5000 (or FWVOICE_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Controller API key (or FWVOICE_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Whole-call timeout per command")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default FWVOICE_WEB_ADDR)")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false, "Open the gateway in a browser")

	transcriptCmd.AddCommand(transcriptShowCmd)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(transcriptCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newClient builds the command client from the loaded settings.
func newClient() *voice.Client {
	return voice.NewClient(
		voice.WithTimeouts(voice.Timeouts{
			Connect: cfg.ConnectTimeout,
			Read:    cfg.ReadTimeout,
			Write:   cfg.WriteTimeout,
			Call:    cfg.CallTimeout,
		}),
		voice.WithLogger(logger),
	)
}
