package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// AlertStatus 告警处理状态
type AlertStatus string

const (
	StatusNew     AlertStatus = "new"
	StatusActive  AlertStatus = "active"
	StatusIgnored AlertStatus = "ignored"
)

// AlertPriority 告警优先级
type AlertPriority string

const (
	PriorityHigh   AlertPriority = "high"
	PriorityMedium AlertPriority = "medium"
	PriorityLow    AlertPriority = "low"
)

// Level 三态指标：价格相对某条参考线的位置
type Level string

const (
	LevelBelow Level = "below"
	LevelClose Level = "close"
	LevelAbove Level = "above"
)

// Trend supertrend 方向
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

// AllowedTransitions 界面上开放的状态切换（数据层不做限制）
var AllowedTransitions = map[AlertStatus][]AlertStatus{
	StatusNew:     {StatusActive, StatusIgnored},
	StatusActive:  {StatusIgnored},
	StatusIgnored: {StatusActive},
}

// TradingAlert 交易告警表
type TradingAlert struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp time.Time `gorm:"not null;comment:信号时间" json:"timestamp"`

	// 信号信息
	Title         string  `gorm:"type:varchar(255);not null" json:"title"`
	StockSymbol   string  `gorm:"type:varchar(24);not null;index" json:"stock_symbol"`
	Type          string  `gorm:"type:varchar(24);not null;comment:long/short" json:"type"`
	EntryPrice    float64 `gorm:"type:decimal(18,4);not null" json:"entry_price"`
	StoplossPrice float64 `gorm:"type:decimal(18,4);not null" json:"stoploss_price"`
	Interval      string  `gorm:"type:varchar(8);not null;index;comment:周期(分钟)" json:"interval"`
	TestMode      bool    `gorm:"not null;default:false" json:"test_mode"`

	// 可变字段
	Status   AlertStatus   `gorm:"type:varchar(16);not null;default:new" json:"status"`
	Priority AlertPriority `gorm:"type:varchar(16);not null;default:medium" json:"priority"`

	// 技术指标
	MA200With2Min   Level `gorm:"column:ma200_2min;type:varchar(8);not null;default:below" json:"ma200_2min"`
	MA200With5Min   Level `gorm:"column:ma200_5min;type:varchar(8);not null;default:below" json:"ma200_5min"`
	PrevMonthHigh   Level `gorm:"type:varchar(8);not null;default:below" json:"prev_month_high"`
	PrevMonthLow    Level `gorm:"type:varchar(8);not null;default:below" json:"prev_month_low"`
	OrbHigh         Level `gorm:"type:varchar(8);not null;default:below" json:"orb_high"`
	OrbLow          Level `gorm:"type:varchar(8);not null;default:below" json:"orb_low"`
	SupertrendTrend Trend `gorm:"type:varchar(8);not null;default:up" json:"supertrend_trend"`

	// 时间字段
	Date      string    `gorm:"type:varchar(10);not null;index:idx_date_created,priority:1;comment:交易日 YYYY-MM-DD" json:"date"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_date_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (TradingAlert) TableName() string {
	return "trading_alerts"
}

// BeforeCreate 由存储层分配 id
func (a *TradingAlert) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Normalize 修正 status / priority 为合法值，幂等
func (a *TradingAlert) Normalize() {
	a.Status = ParseStatus(string(a.Status))
	a.Priority = ParsePriority(string(a.Priority))
}

// ParseStatus 非法或类型不对的值一律视为 new
func ParseStatus(v any) AlertStatus {
	s, err := cast.ToStringE(v)
	if err != nil {
		return StatusNew
	}
	switch st := AlertStatus(s); st {
	case StatusNew, StatusActive, StatusIgnored:
		return st
	default:
		return StatusNew
	}
}

// ParsePriority 非法或类型不对的值一律视为 medium
func ParsePriority(v any) AlertPriority {
	s, err := cast.ToStringE(v)
	if err != nil {
		return PriorityMedium
	}
	switch p := AlertPriority(s); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p
	default:
		return PriorityMedium
	}
}

// IsValidStatus 严格校验（命令入口使用，不做修正）
func IsValidStatus(s AlertStatus) bool {
	switch s {
	case StatusNew, StatusActive, StatusIgnored:
		return true
	}
	return false
}

// ParseLevel 解析三态指标，失败返回 ok=false
func ParseLevel(v any) (Level, bool) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	switch l := Level(s); l {
	case LevelBelow, LevelClose, LevelAbove:
		return l, true
	}
	return "", false
}

// ParseTrend 解析趋势方向，失败返回 ok=false
func ParseTrend(v any) (Trend, bool) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	switch t := Trend(s); t {
	case TrendUp, TrendDown:
		return t, true
	}
	return "", false
}
