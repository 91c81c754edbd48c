package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-alert-hub/internal/alertsync"
	"github.com/utrading/utrading-alert-hub/internal/models"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{"a abc123", command{op: opStatus, id: "abc123", status: models.StatusActive}, false},
		{"i abc", command{op: opStatus, id: "abc", status: models.StatusIgnored}, false},
		{"n abc", command{op: opStatus, id: "abc", status: models.StatusNew}, false},
		{"a", command{}, true},
		{"r", command{op: opRefresh}, false},
		{"d 2024-01-15", command{op: opDate, arg: "2024-01-15"}, false},
		{"d 15/01/2024", command{}, true},
		{"f 5", command{op: opInterval, arg: "5"}, false},
		{"f all", command{op: opInterval, arg: "all"}, false},
		{"f 4", command{}, true},
		{"t ignored", command{op: opTab, arg: "ignored"}, false},
		{"t archived", command{}, true},
		{"q", command{op: opQuit}, false},
		{"   ", command{op: opHelp}, false},
		{"zz", command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeController struct {
	calls []string
}

func (f *fakeController) UpdateStatus(_ context.Context, id string, status models.AlertStatus) error {
	f.calls = append(f.calls, "status "+id+" "+string(status))
	return nil
}

func (f *fakeController) Refresh()             { f.calls = append(f.calls, "refresh") }
func (f *fakeController) SetDate(d string)     { f.calls = append(f.calls, "date "+d) }
func (f *fakeController) SetInterval(i string) { f.calls = append(f.calls, "interval "+i) }
func (f *fakeController) SetTab(t alertsync.Tab) {
	f.calls = append(f.calls, "tab "+string(t))
}

func TestReadCommands(t *testing.T) {
	in := strings.NewReader("a a1\nbogus\nr\nd 2024-01-16\nf 15\nt all\nq\nr\n")
	var out bytes.Buffer
	c := &fakeController{}

	require.NoError(t, readCommands(context.Background(), in, &out, c))

	assert.Equal(t, []string{
		"status a1 active",
		"refresh",
		"date 2024-01-16",
		"interval 15",
		"tab all",
	}, c.calls)
	assert.Contains(t, out.String(), `unknown command "bogus"`)
}

func TestReadCommands_HelpOnEmptyLine(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, readCommands(context.Background(), strings.NewReader("\n"), &out, &fakeController{}))
	assert.Contains(t, out.String(), "mark active")
}

func TestRealtimeURL(t *testing.T) {
	tests := map[string]string{
		"http://127.0.0.1:8080":     "ws://127.0.0.1:8080/realtime/v1/websocket",
		"https://hub.example.com/":  "wss://hub.example.com/realtime/v1/websocket",
		"https://hub.example.com/x": "wss://hub.example.com/x/realtime/v1/websocket",
	}
	for in, want := range tests {
		got, err := realtimeURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := realtimeURL("ftp://hub")
	assert.Error(t, err)
}
