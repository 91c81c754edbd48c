package changefeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-alert-hub/internal/models"
)

// EventType 行级变更类型
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// TableAlerts 唯一的告警表
const TableAlerts = "trading_alerts"

var ErrMalformedEvent = errors.New("malformed change event")

// Event 表变更通知
type Event struct {
	EventType       EventType            `json:"eventType"`
	Table           string               `json:"table"`
	New             *models.TradingAlert `json:"new,omitempty"`
	Old             *models.TradingAlert `json:"old,omitempty"`
	CommitTimestamp time.Time            `json:"commit_timestamp"`
}

// Marshal 序列化事件
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Row 返回决定事件归属的行（INSERT/UPDATE 取 new，DELETE 取 old）
func (e Event) Row() *models.TradingAlert {
	if e.EventType == EventDelete {
		return e.Old
	}
	return e.New
}

// Decode 宽松解析事件
// INSERT/UPDATE 必须带 new，DELETE 必须带 old（至少含 id）
func Decode(raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return Event{}, ErrMalformedEvent
	}
	return DecodeResult(gjson.ParseBytes(raw))
}

// DecodeResult 从 gjson 节点解析事件
func DecodeResult(r gjson.Result) (Event, error) {
	if !r.IsObject() {
		return Event{}, ErrMalformedEvent
	}

	ev := Event{
		EventType: EventType(r.Get("eventType").String()),
		Table:     r.Get("table").String(),
	}
	if ev.Table == "" {
		ev.Table = TableAlerts
	}
	if ts := r.Get("commit_timestamp"); ts.Exists() {
		ev.CommitTimestamp, _ = time.Parse(time.RFC3339Nano, ts.String())
	}

	var err error
	if n := r.Get("new"); n.IsObject() && len(n.Map()) > 0 {
		if ev.New, err = models.DecodeAlertResult(n); err != nil {
			return Event{}, fmt.Errorf("%w: new: %v", ErrMalformedEvent, err)
		}
	}
	if o := r.Get("old"); o.IsObject() && len(o.Map()) > 0 {
		if ev.Old, err = models.DecodeAlertResult(o); err != nil {
			return Event{}, fmt.Errorf("%w: old: %v", ErrMalformedEvent, err)
		}
	}

	switch ev.EventType {
	case EventInsert, EventUpdate:
		if ev.New == nil {
			return Event{}, fmt.Errorf("%w: %s without new row", ErrMalformedEvent, ev.EventType)
		}
	case EventDelete:
		if ev.Old == nil {
			return Event{}, fmt.Errorf("%w: DELETE without old row", ErrMalformedEvent)
		}
	default:
		return Event{}, fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, ev.EventType)
	}

	return ev, nil
}
