package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/utrading/utrading-alert-hub/internal/alertsync"
	"github.com/utrading/utrading-alert-hub/internal/models"
)

var stateLabels = map[alertsync.State]string{
	alertsync.StateConnecting:   "Connecting...",
	alertsync.StateConnected:    "Live",
	alertsync.StateDisconnected: "Reconnecting...",
	alertsync.StateError:        "Connection failed (press r to retry)",
}

// render 输出一帧看板
func render(w io.Writer, snap alertsync.Snapshot) error {
	label := stateLabels[snap.State]
	if snap.State == alertsync.StateDisconnected && snap.Retries > 0 {
		label = fmt.Sprintf("%s (attempt %d)", label, snap.Retries)
	}

	st := snap.Stats()
	fmt.Fprintf(w, "Trading Alerts  %s  [%s]\n", snap.Date, label)
	fmt.Fprintf(w, "interval=%s  tab=%s\n", snap.Interval, snap.Tab)
	fmt.Fprintf(w, "total=%d  new=%d  active=%d  ignored=%d  high=%d\n\n",
		st.Total, st.New, st.Active, st.Ignored, st.HighPriority)

	if snap.Loading {
		fmt.Fprintln(w, "Loading alerts...")
		return nil
	}

	visible := snap.Visible()
	if len(visible) == 0 {
		fmt.Fprintln(w, "No alerts for the selected filters.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSYMBOL\tTYPE\tINT\tENTRY\tSTOP\tPRIORITY\tSTATUS\tTITLE")
	for _, a := range visible {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%sm\t%.2f\t%.2f\t%s\t%s\t%s\n",
			shortID(a.ID),
			a.Timestamp.Local().Format("15:04:05"),
			a.StockSymbol,
			a.Type,
			a.Interval,
			a.EntryPrice,
			a.StoplossPrice,
			a.Priority,
			statusLabel(a),
			title(a),
		)
	}
	return tw.Flush()
}

func statusLabel(a models.TradingAlert) string {
	if a.TestMode {
		return string(a.Status) + " (test)"
	}
	return string(a.Status)
}

func title(a models.TradingAlert) string {
	if len(a.Title) > 40 {
		return a.Title[:37] + "..."
	}
	return a.Title
}

// shortID 只展示 id 前 8 位，命令里可用完整 id 或前缀
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveID 按前缀匹配当前交易日的告警 id，前缀不唯一时报错
func resolveID(alerts []models.TradingAlert, prefix string) (string, error) {
	var match string
	for _, a := range alerts {
		if a.ID == prefix {
			return a.ID, nil
		}
		if len(prefix) <= len(a.ID) && a.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("ambiguous id %q", prefix)
			}
			match = a.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("unknown id %q", prefix)
	}
	return match, nil
}
