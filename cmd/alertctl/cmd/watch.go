package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/utrading/utrading-alert-hub/internal/alertapi"
	"github.com/utrading/utrading-alert-hub/internal/alertsync"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/internal/notify"
	"github.com/utrading/utrading-alert-hub/internal/ws"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

var (
	watchDate     string
	watchTimezone string
	watchInterval string
	watchTab      string
	watchClip     string
	watchMute     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a trading day's alerts in realtime",
	Long: `Fetch every alert of the trading day, then keep the list in sync through the
realtime channel. Type commands followed by enter:

` + helpText,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchDate, "date", "d", "", "trading date YYYY-MM-DD (default: today)")
	watchCmd.Flags().StringVar(&watchTimezone, "tz", "", "timezone used for the default date (default: the server's trading timezone)")
	watchCmd.Flags().StringVarP(&watchInterval, "interval", "i", alertsync.IntervalAll, "interval filter (1 2 3 5 10 15 all)")
	watchCmd.Flags().StringVarP(&watchTab, "tab", "t", string(alertsync.TabActiveNew), "status tab (all active_new new active ignored)")
	watchCmd.Flags().StringVar(&watchClip, "sound-clip", "", "fallback sound file for new alerts")
	watchCmd.Flags().BoolVar(&watchMute, "mute", false, "disable the new alert sound")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if !validInterval(watchInterval) {
		return fmt.Errorf("invalid interval %q", watchInterval)
	}
	tab, ok := alertsync.ParseTab(watchTab)
	if !ok {
		return fmt.Errorf("invalid tab %q", watchTab)
	}

	store := alertapi.New(serverURL)
	date, err := resolveDate(cmd.Context(), store, watchDate, watchTimezone, time.Now())
	if err != nil {
		return err
	}

	wsURL, err := realtimeURL(serverURL)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var outMu sync.Mutex

	var player notify.Player = notify.Silent
	if !watchMute {
		sound, err := notify.NewSound(notify.SoundOptions{
			Tone:     notify.DefaultTone(),
			ClipPath: watchClip,
			Bell:     lockedWriter{mu: &outMu, w: out},
		})
		if err != nil {
			logger.Warn().Err(err).Msg("sound disabled")
		} else {
			defer sound.Close()
			player = sound
		}
	}

	syncer, err := alertsync.New(alertsync.Options{
		Store:    store,
		Feed:     ws.NewFeed(wsURL),
		Toaster:  notify.NewConsole(lockedWriter{mu: &outMu, w: out}),
		Sound:    player,
		Interval: watchInterval,
		Tab:      tab,
	})
	if err != nil {
		return err
	}
	defer syncer.Close()

	syncer.OnChange(func(snap alertsync.Snapshot) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprint(out, "\033[H\033[2J")
		if err := render(out, snap); err != nil {
			logger.Debug().Err(err).Msg("render failed")
		}
		fmt.Fprint(out, "\n> ")
	})
	syncer.SetDate(date)

	logger.Info().Str("server", serverURL).Str("realtime", wsURL).Str("date", date).Msg("watch started")
	return readCommands(cmd.Context(), cmd.InOrStdin(), lockedWriter{mu: &outMu, w: out}, syncerController{syncer})
}

type dateSource interface {
	TradingDate(ctx context.Context) (string, error)
}

// resolveDate 未指定 --date 时，优先按 --tz 计算，否则取服务端交易日
func resolveDate(ctx context.Context, src dateSource, date, tz string, now time.Time) (string, error) {
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return "", fmt.Errorf("invalid date %q", date)
		}
		return date, nil
	}
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("invalid timezone: %w", err)
		}
		return now.In(loc).Format("2006-01-02"), nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	date, err := src.TradingDate(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve trading date: %w", err)
	}
	return date, nil
}

// readCommands 逐行读取命令直到 q 或输入结束
func readCommands(ctx context.Context, in io.Reader, out io.Writer, c controller) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		parsed, err := parseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if parsed.op == opHelp {
			fmt.Fprintln(out, helpText)
			continue
		}

		opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		quit, err := execute(opCtx, c, parsed)
		cancel()
		if err != nil {
			fmt.Fprintln(out, err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

// syncerController 状态命令支持 id 前缀
type syncerController struct {
	*alertsync.Syncer
}

func (c syncerController) UpdateStatus(ctx context.Context, prefix string, status models.AlertStatus) error {
	id, err := resolveID(c.All(), prefix)
	if err != nil {
		return err
	}
	return c.Syncer.UpdateStatus(ctx, id, status)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
