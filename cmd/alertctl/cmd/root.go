package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/utrading/utrading-alert-hub/internal/api"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

var (
	serverURL string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "alertctl",
	Short: "alertctl - trading alert hub terminal client",
	Long: `alertctl talks to a running alert_hub.

Examples:
  # Watch today's alerts in realtime
  alertctl watch --server http://127.0.0.1:8080

  # Watch a past trading day, 5 minute signals only
  alertctl watch --date 2024-01-15 --interval 5

  # Post a webhook payload
  alertctl send --file payload.json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.NewBuilder().
			SetLevel(logLevel).
			SetLevelFiles(logger.LevelFiles{{Level: logger.INFO, Path: "logs/alertctl.log"}}).
			Build()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute 入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://127.0.0.1:8080", "alert hub base url")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

// realtimeURL 由 http(s) 地址推导实时订阅地址
func realtimeURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + api.RealtimePath
	return u.String(), nil
}
