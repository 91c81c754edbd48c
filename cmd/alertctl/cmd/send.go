package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/utrading/utrading-alert-hub/internal/alertapi"
)

var sendFile string

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Post a webhook payload to the hub",
	Long: `Post a TradingView style JSON payload to the webhook endpoint.

Examples:
  alertctl send --file payload.json
  cat payload.json | alertctl send`,
	Args: cobra.NoArgs,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "payload file (default: stdin)")
}

func runSend(cmd *cobra.Command, _ []string) error {
	var in io.Reader = cmd.InOrStdin()
	if sendFile != "" {
		f, err := os.Open(sendFile)
		if err != nil {
			return fmt.Errorf("open payload: %w", err)
		}
		defer f.Close()
		in = f
	}

	payload, err := io.ReadAll(io.LimitReader(in, 1<<20))
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	row, err := alertapi.New(serverURL).SendWebhook(ctx, payload)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created %s  %s %s %sm  %s\n", row.ID, row.StockSymbol, row.Type, row.Interval, row.Title)
	return nil
}
