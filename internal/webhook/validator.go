package webhook

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-alert-hub/internal/models"
)

// RequiredFields 必填字段，顺序即错误信息中的顺序
var RequiredFields = []string{
	"title",
	"stock_symbol",
	"type",
	"entry_price",
	"stoploss_price",
	"interval",
}

// Defaults 可选字段缺省值，校验结果只由 payload 与此表决定
var Defaults = map[string]any{
	"test_mode":        false,
	"priority":         string(models.PriorityMedium),
	"ma200_2min":       string(models.LevelBelow),
	"ma200_5min":       string(models.LevelBelow),
	"prev_month_high":  string(models.LevelBelow),
	"prev_month_low":   string(models.LevelBelow),
	"orb_high":         string(models.LevelBelow),
	"orb_low":          string(models.LevelBelow),
	"supertrend_trend": string(models.TrendUp),
}

// legacyFlags 旧版布尔字段：close_to 为真取 close，否则 above 为真取 above，其余为 below
type legacyFlags struct {
	closeTo string
	above   string
}

var indicatorFields = []string{"ma200_2min", "ma200_5min", "prev_month_high", "prev_month_low", "orb_high", "orb_low"}

var legacyIndicators = map[string]legacyFlags{
	"ma200_2min":      {closeTo: "close_to_200_ma_2min", above: "above_200_ma_2min"},
	"ma200_5min":      {closeTo: "close_to_200_ma_5min", above: "above_200_ma_5min"},
	"prev_month_high": {closeTo: "close_to_prev_month_high", above: "above_prev_month_high"},
	"prev_month_low":  {closeTo: "close_to_prev_month_low", above: "above_prev_month_low"},
	"orb_high":        {closeTo: "close_to_orb_high", above: "above_orb_high"},
	"orb_low":         {closeTo: "close_to_orb_low", above: "above_orb_low"},
}

// maxInterval 一个交易日的分钟数
const maxInterval = 24 * 60

var ErrInvalidPayload = errors.New("Invalid JSON payload")

// ValidationError 缺失或类型不对的字段
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "Missing required fields: " + strings.Join(e.Missing, ", ")
	}
	return "Invalid fields: " + strings.Join(e.Invalid, ", ")
}

// Validate 校验并归一化 webhook payload
// 返回的告警不含 id、timestamp、date，由调用方在落库前补齐；status 固定为 new
func Validate(body []byte) (*models.TradingAlert, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	p := gjson.ParseBytes(body)
	if !p.IsObject() {
		return nil, ErrInvalidPayload
	}

	verr := &ValidationError{}
	for _, f := range RequiredFields {
		if isMissing(p.Get(f)) {
			verr.Missing = append(verr.Missing, f)
		}
	}
	if len(verr.Missing) > 0 {
		return nil, verr
	}

	a := &models.TradingAlert{
		Status:   models.StatusNew,
		Priority: models.ParsePriority(valueOr(p, "priority")),
	}

	var ok bool
	if a.Title, ok = toText(p.Get("title")); !ok {
		verr.Invalid = append(verr.Invalid, "title")
	}
	if a.StockSymbol, ok = toText(p.Get("stock_symbol")); !ok {
		verr.Invalid = append(verr.Invalid, "stock_symbol")
	}
	if a.Type, ok = toText(p.Get("type")); !ok {
		verr.Invalid = append(verr.Invalid, "type")
	}
	if a.EntryPrice, ok = toPrice(p.Get("entry_price")); !ok {
		verr.Invalid = append(verr.Invalid, "entry_price")
	}
	if a.StoplossPrice, ok = toPrice(p.Get("stoploss_price")); !ok {
		verr.Invalid = append(verr.Invalid, "stoploss_price")
	}
	if a.Interval, ok = toInterval(p.Get("interval")); !ok {
		verr.Invalid = append(verr.Invalid, "interval")
	}

	testMode, err := cast.ToBoolE(valueOr(p, "test_mode"))
	if err != nil {
		verr.Invalid = append(verr.Invalid, "test_mode")
	}
	a.TestMode = testMode

	levels := make(map[string]models.Level, len(indicatorFields))
	for _, f := range indicatorFields {
		l, ok := indicatorLevel(p, f)
		if !ok {
			verr.Invalid = append(verr.Invalid, f)
		}
		levels[f] = l
	}
	a.MA200With2Min = levels["ma200_2min"]
	a.MA200With5Min = levels["ma200_5min"]
	a.PrevMonthHigh = levels["prev_month_high"]
	a.PrevMonthLow = levels["prev_month_low"]
	a.OrbHigh = levels["orb_high"]
	a.OrbLow = levels["orb_low"]

	if a.SupertrendTrend, ok = models.ParseTrend(valueOr(p, "supertrend_trend")); !ok {
		verr.Invalid = append(verr.Invalid, "supertrend_trend")
	}

	if len(verr.Invalid) > 0 {
		return nil, verr
	}
	return a, nil
}

// isMissing 缺失：不存在、null、空白字符串、false 或数值 0
func isMissing(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return true
	case gjson.False:
		return true
	case gjson.String:
		return strings.TrimSpace(r.Str) == ""
	case gjson.Number:
		return r.Num == 0
	}
	return false
}

// valueOr 字段缺失或为 null 时取 Defaults
func valueOr(p gjson.Result, field string) any {
	r := p.Get(field)
	if !r.Exists() || r.Type == gjson.Null {
		return Defaults[field]
	}
	return r.Value()
}

func toText(r gjson.Result) (string, bool) {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str), true
	case gjson.Number, gjson.True:
		return r.String(), true
	}
	return "", false
}

func toPrice(r gjson.Result) (float64, bool) {
	var (
		v   float64
		err error
	)
	switch r.Type {
	case gjson.Number:
		v = r.Num
	case gjson.String:
		v, err = cast.ToFloat64E(strings.TrimSpace(r.Str))
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

// toInterval 周期归一化为正整数字符串，"05"、5、"5.0" 均为 "5"
func toInterval(r gjson.Result) (string, bool) {
	var (
		v   float64
		err error
	)
	switch r.Type {
	case gjson.Number:
		v = r.Num
	case gjson.String:
		v, err = cast.ToFloat64E(strings.TrimSuffix(strings.TrimSpace(r.Str), "m"))
	default:
		return "", false
	}
	if err != nil || v != math.Trunc(v) || v < 1 || v > maxInterval {
		return "", false
	}
	return strconv.Itoa(int(v)), true
}

func indicatorLevel(p gjson.Result, field string) (models.Level, bool) {
	if r := p.Get(field); r.Exists() && r.Type != gjson.Null {
		return models.ParseLevel(r.Value())
	}

	legacy := legacyIndicators[field]
	closeTo, above := p.Get(legacy.closeTo), p.Get(legacy.above)
	if !closeTo.Exists() && !above.Exists() {
		l, _ := models.ParseLevel(Defaults[field])
		return l, true
	}
	switch {
	case cast.ToBool(closeTo.Value()):
		return models.LevelClose, true
	case cast.ToBool(above.Value()):
		return models.LevelAbove, true
	}
	return models.LevelBelow, true
}
