package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/pkg/goplus"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

// Feed 基于 websocket 的变更订阅，实现 changefeed.Subscriber
type Feed struct {
	url         string
	table       string
	dialTimeout time.Duration
	pingPeriod  time.Duration
}

// FeedOption Feed 可选参数
type FeedOption func(*Feed)

func WithTable(table string) FeedOption {
	return func(f *Feed) { f.table = table }
}

func WithDialTimeout(d time.Duration) FeedOption {
	return func(f *Feed) { f.dialTimeout = d }
}

func WithPingPeriod(d time.Duration) FeedOption {
	return func(f *Feed) { f.pingPeriod = d }
}

// NewFeed url 为推送中心地址，如 ws://host:8080/realtime/v1/websocket
func NewFeed(url string, opts ...FeedOption) *Feed {
	f := &Feed{
		url:         url,
		table:       changefeed.TableAlerts,
		dialTimeout: 10 * time.Second,
		pingPeriod:  pingPeriod,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe 立即返回，连接在后台建立，结果通过 onStatus 回报
func (f *Feed) Subscribe(onEvent func(changefeed.Event), onStatus func(changefeed.Status, error)) (changefeed.Subscription, error) {
	if onEvent == nil || onStatus == nil {
		return nil, errors.New("ws: feed callbacks must not be nil")
	}

	s := &feedSubscription{
		feed:     f,
		client:   NewClient(f.url),
		onEvent:  onEvent,
		onStatus: onStatus,
	}
	s.client.SetPingPeriod(f.pingPeriod)

	d := NewDispatcher()
	d.Handle(ChannelSystem, s.handleSystem)
	d.Handle(ChannelPostgresChanges, s.handleChange)
	d.Handle(ChannelPong, func(WsMessage) error { return nil })
	s.client.SetMessageHandler(d.Dispatch)
	s.client.SetDisconnectCallback(func() {
		s.fail(changefeed.StatusClosed, errors.New("connection closed by remote"))
	})

	goplus.Go(s.connect)
	return s, nil
}

type feedSubscription struct {
	feed     *Feed
	client   *Client
	onEvent  func(changefeed.Event)
	onStatus func(changefeed.Status, error)

	// closed 之后丢弃一切回调；failed 保证失败状态只报一次
	closed    atomic.Bool
	failed    atomic.Bool
	closeOnce sync.Once
}

func (s *feedSubscription) connect() {
	ctx, cancel := context.WithTimeout(context.Background(), s.feed.dialTimeout)
	defer cancel()

	if err := s.client.Connect(ctx); err != nil {
		s.fail(changefeed.StatusChannelError, err)
		return
	}
	if s.closed.Load() {
		_ = s.client.Close()
		return
	}
	if err := s.client.Subscribe(s.feed.table); err != nil {
		s.fail(changefeed.StatusChannelError, err)
	}
}

func (s *feedSubscription) handleSystem(msg WsMessage) error {
	data := gjson.ParseBytes(msg.Data)
	switch changefeed.Status(data.Get("status").String()) {
	case changefeed.StatusSubscribed:
		s.status(changefeed.StatusSubscribed, nil)
	case changefeed.StatusChannelError:
		reason := data.Get("message").String()
		if reason == "" {
			reason = "channel error"
		}
		s.fail(changefeed.StatusChannelError, errors.New(reason))
	default:
		logger.Debug().RawJSON("data", msg.Data).Msg("ignore system message")
	}
	return nil
}

func (s *feedSubscription) handleChange(msg WsMessage) error {
	ev, err := changefeed.DecodeResult(gjson.ParseBytes(msg.Data))
	if err != nil {
		// 单条坏消息不影响订阅
		logger.Warn().Err(err).Msg("drop malformed change event")
		return nil
	}
	if s.closed.Load() {
		return nil
	}
	s.onEvent(ev)
	return nil
}

func (s *feedSubscription) status(st changefeed.Status, err error) {
	if s.closed.Load() {
		return
	}
	s.onStatus(st, err)
}

func (s *feedSubscription) fail(st changefeed.Status, err error) {
	if !s.failed.CompareAndSwap(false, true) {
		return
	}
	s.status(st, err)
	_ = s.client.Close()
}

// Close 断开连接，之后不再有回调
func (s *feedSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.client.Close()
	})
	return nil
}
