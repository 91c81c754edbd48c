package models

import (
	"errors"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

var (
	ErrMalformedAlert = errors.New("malformed alert row")
	ErrMissingID      = errors.New("alert row has no id")
)

// DecodeAlert 宽松解析外部来源的告警行
// 外部系统给的字段类型不可信：数字可能是字符串，status/priority 可能是任意类型
func DecodeAlert(raw []byte) (*TradingAlert, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedAlert
	}
	return DecodeAlertResult(gjson.ParseBytes(raw))
}

// DecodeAlertResult 从已解析的 gjson 节点构造告警
func DecodeAlertResult(r gjson.Result) (*TradingAlert, error) {
	if !r.IsObject() {
		return nil, ErrMalformedAlert
	}

	id := r.Get("id").String()
	if id == "" {
		return nil, ErrMissingID
	}

	a := &TradingAlert{
		ID:              id,
		Timestamp:       parseTime(r.Get("timestamp")),
		Title:           r.Get("title").String(),
		StockSymbol:     r.Get("stock_symbol").String(),
		Type:            r.Get("type").String(),
		EntryPrice:      cast.ToFloat64(r.Get("entry_price").Value()),
		StoplossPrice:   cast.ToFloat64(r.Get("stoploss_price").Value()),
		Interval:        r.Get("interval").String(),
		TestMode:        cast.ToBool(r.Get("test_mode").Value()),
		Status:          ParseStatus(r.Get("status").Value()),
		Priority:        ParsePriority(r.Get("priority").Value()),
		MA200With2Min:   levelOrDefault(r.Get("ma200_2min")),
		MA200With5Min:   levelOrDefault(r.Get("ma200_5min")),
		PrevMonthHigh:   levelOrDefault(r.Get("prev_month_high")),
		PrevMonthLow:    levelOrDefault(r.Get("prev_month_low")),
		OrbHigh:         levelOrDefault(r.Get("orb_high")),
		OrbLow:          levelOrDefault(r.Get("orb_low")),
		SupertrendTrend: TrendUp,
		Date:            r.Get("date").String(),
		CreatedAt:       parseTime(r.Get("created_at")),
		UpdatedAt:       parseTime(r.Get("updated_at")),
	}
	if t, ok := ParseTrend(r.Get("supertrend_trend").Value()); ok {
		a.SupertrendTrend = t
	}
	return a, nil
}

// DecodeAlerts 解析告警数组，单行格式错误时跳过该行并通过 onSkip 回报
func DecodeAlerts(r gjson.Result, onSkip func(error)) []TradingAlert {
	alerts := make([]TradingAlert, 0)
	r.ForEach(func(_, value gjson.Result) bool {
		a, err := DecodeAlertResult(value)
		if err != nil {
			if onSkip != nil {
				onSkip(err)
			}
			return true
		}
		alerts = append(alerts, *a)
		return true
	})
	return alerts
}

func levelOrDefault(r gjson.Result) Level {
	if l, ok := ParseLevel(r.Value()); ok {
		return l
	}
	return LevelBelow
}

func parseTime(r gjson.Result) time.Time {
	if !r.Exists() {
		return time.Time{}
	}
	if r.Type == gjson.Number {
		return time.Unix(r.Int(), 0).UTC()
	}
	t, err := time.Parse(time.RFC3339Nano, r.String())
	if err != nil {
		return time.Time{}
	}
	return t
}
