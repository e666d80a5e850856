package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dacid44/d4ft4/internal/config"
	"github.com/dacid44/d4ft4/internal/logging"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	password    string
	passwordEnv string
	metrics     bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "d4ft",
		Short: "d4ft - password-authenticated peer-to-peer file and text transfer",
		Long: `d4ft sends text or files directly between two peers over a single
TCP connection, authenticated and encrypted end to end with a shared
password. There is no server, no account, and no intermediary: one side
listens, the other connects, and both derive the session's keys from
the password they agreed on out of band.`,
	}

	root.AddGroup(&cobra.Group{ID: "transfer", Title: "Transfer:"})

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a d4ft config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "override the configured log format (text, json)")
	root.PersistentFlags().StringVar(&flags.password, "password", "", "session password (visible in process listings; prefer --password-env or the interactive prompt)")
	root.PersistentFlags().StringVar(&flags.passwordEnv, "password-env", "D4FT_PASSWORD", "environment variable to read the session password from")
	root.PersistentFlags().BoolVar(&flags.metrics, "metrics", false, "expose Prometheus metrics")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-address", "127.0.0.1:9091", "address to serve Prometheus metrics on")

	send := sendCmd(flags)
	send.GroupID = "transfer"
	root.AddCommand(send)

	receive := receiveCmd(flags)
	receive.GroupID = "transfer"
	root.AddCommand(receive)

	return root
}

// loadConfig reads flags.configPath if set, falling back to defaults,
// then applies any --log-level/--log-format overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	if flags.metrics {
		cfg.Metrics.Enabled = true
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Address = flags.metricsAddr
	}

	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
}

// resolvePassword resolves the session password from --password, then
// the environment variable named by --password-env, then an
// interactive hidden prompt as a last resort.
func resolvePassword(flags *globalFlags) (string, error) {
	if flags.password != "" {
		return flags.password, nil
	}
	if v, ok := os.LookupEnv(flags.passwordEnv); ok && v != "" {
		return v, nil
	}
	return promptPassword()
}

// serveMetricsIfEnabled starts the background /metrics listener when cfg
// enables it. Collection itself is unconditional: handshake.InitSend and
// InitReceive always record against metrics.Default(), since a handful
// of in-memory counters cost nothing until something actually scrapes
// them. This only controls whether anything does.
func serveMetricsIfEnabled(cfg *config.Config, log *slog.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	go serveMetrics(cfg.Metrics.Address, log)
}

func exitWithError(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err)
	return err
}
