// Package cli holds the cobra command tree. Commands are thin: they collect
// input, call into the session/match/chat controllers, and render status
// lines. No reconciliation logic lives here.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hobbymatch/hobbymatch/internal/app"
	"github.com/hobbymatch/hobbymatch/internal/config"
	"github.com/hobbymatch/hobbymatch/internal/log"
)

type env struct {
	cfg config.Config
	log *zerolog.Logger
}

// Execute runs the command tree. It is the whole of main.
func Execute() error {
	e := &env{}

	var (
		configPath string
		logLevel   string
		apiBase    string
		socketURL  string
		statePath  string
	)

	root := &cobra.Command{
		Use:           "hobbymatch",
		Short:         "Terminal client for the hobby matchmaking chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(logLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{
				LogLevel:   logLevel,
				APIBaseURL: apiBase,
				SocketURL:  socketURL,
				StatePath:  statePath,
			})

			e.cfg = cfg
			e.log = log.New(cfg.LogLevel)
			e.log.Debug().Str("config", path).Msg("configuration loaded")
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&apiBase, "api", "", "backend REST base URL")
	root.PersistentFlags().StringVar(&socketURL, "socket", "", "push channel websocket URL")
	root.PersistentFlags().StringVar(&statePath, "state", "", "local state database path")

	root.AddCommand(
		newLoginCmd(e),
		newRegisterCmd(e),
		newMatchCmd(e),
		newChatCmd(e),
		newResumeCmd(e),
		newLogoutCmd(e),
	)

	return root.Execute()
}

// signalContext returns a context cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newApp wires the application for one command invocation.
func newApp(e *env) (*app.App, error) {
	return app.New(e.cfg, e.log)
}
