package alertsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/utrading/utrading-alert-hub/internal/models"
)

func viewRows() []models.TradingAlert {
	mk := func(id, interval string, st models.AlertStatus, p models.AlertPriority) models.TradingAlert {
		return models.TradingAlert{ID: id, Interval: interval, Status: st, Priority: p}
	}
	return []models.TradingAlert{
		mk("a", "5", models.StatusNew, models.PriorityHigh),
		mk("b", "5", models.StatusActive, models.PriorityMedium),
		mk("c", "15", models.StatusIgnored, models.PriorityHigh),
		mk("d", "1", models.StatusNew, models.PriorityLow),
	}
}

func TestFilterByInterval(t *testing.T) {
	rows := viewRows()

	assert.Len(t, FilterByInterval(rows, IntervalAll), 4)
	assert.Len(t, FilterByInterval(rows, ""), 4)
	assert.Equal(t, []string{"a", "b"}, ids(FilterByInterval(rows, "5")))
	assert.Empty(t, FilterByInterval(rows, "10"))
}

func TestFilterByTab(t *testing.T) {
	rows := viewRows()

	tests := map[Tab][]string{
		TabAll:       {"a", "b", "c", "d"},
		TabActiveNew: {"a", "b", "d"},
		TabNew:       {"a", "d"},
		TabActive:    {"b"},
		TabIgnored:   {"c"},
	}
	for tab, want := range tests {
		assert.Equal(t, want, ids(FilterByTab(rows, tab)), string(tab))
	}
}

func TestParseTab(t *testing.T) {
	tab, ok := ParseTab("ignored")
	assert.True(t, ok)
	assert.Equal(t, TabIgnored, tab)

	tab, ok = ParseTab("archived")
	assert.False(t, ok)
	assert.Equal(t, TabActiveNew, tab)
}

func TestComputeStats(t *testing.T) {
	assert.Equal(t, Stats{Total: 4, New: 2, Active: 1, Ignored: 1, HighPriority: 2}, ComputeStats(viewRows()))
	assert.Equal(t, Stats{Total: 2, New: 1, Active: 1, HighPriority: 1}, ComputeStats(FilterByInterval(viewRows(), "5")))
	assert.Equal(t, Stats{}, ComputeStats(nil))
}
