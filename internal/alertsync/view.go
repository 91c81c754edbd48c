package alertsync

import (
	"github.com/utrading/utrading-alert-hub/internal/models"
)

// IntervalAll 周期过滤通配
const IntervalAll = "all"

// Tab 状态过滤页签
type Tab string

const (
	TabAll       Tab = "all"
	TabActiveNew Tab = "active_new"
	TabNew       Tab = "new"
	TabActive    Tab = "active"
	TabIgnored   Tab = "ignored"
)

// ParseTab 非法值回退到默认页签 active_new
func ParseTab(s string) (Tab, bool) {
	switch t := Tab(s); t {
	case TabAll, TabActiveNew, TabNew, TabActive, TabIgnored:
		return t, true
	}
	return TabActiveNew, false
}

// Stats 看板统计
type Stats struct {
	Total        int `json:"total"`
	New          int `json:"new"`
	Active       int `json:"active"`
	Ignored      int `json:"ignored"`
	HighPriority int `json:"high_priority"`
}

// FilterByInterval interval 为空或 all 时不过滤
func FilterByInterval(alerts []models.TradingAlert, interval string) []models.TradingAlert {
	if interval == "" || interval == IntervalAll {
		return alerts
	}
	out := make([]models.TradingAlert, 0, len(alerts))
	for _, a := range alerts {
		if a.Interval == interval {
			out = append(out, a)
		}
	}
	return out
}

// FilterByTab 按状态页签过滤
func FilterByTab(alerts []models.TradingAlert, tab Tab) []models.TradingAlert {
	if tab == TabAll {
		return alerts
	}
	out := make([]models.TradingAlert, 0, len(alerts))
	for _, a := range alerts {
		if matchTab(a.Status, tab) {
			out = append(out, a)
		}
	}
	return out
}

func matchTab(status models.AlertStatus, tab Tab) bool {
	switch tab {
	case TabActiveNew:
		return status == models.StatusActive || status == models.StatusNew
	case TabNew:
		return status == models.StatusNew
	case TabActive:
		return status == models.StatusActive
	case TabIgnored:
		return status == models.StatusIgnored
	}
	return true
}

// ComputeStats 统计各状态数量
func ComputeStats(alerts []models.TradingAlert) Stats {
	st := Stats{Total: len(alerts)}
	for _, a := range alerts {
		switch a.Status {
		case models.StatusNew:
			st.New++
		case models.StatusActive:
			st.Active++
		case models.StatusIgnored:
			st.Ignored++
		}
		if a.Priority == models.PriorityHigh {
			st.HighPriority++
		}
	}
	return st
}
