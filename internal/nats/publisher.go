package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/internal/monitor"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

// DefaultSubject 告警变更事件主题
const DefaultSubject = "trading_alerts.changes"

// Publisher 通过 NATS 发布与订阅变更事件
type Publisher struct {
	*nats.Conn
	subject string
	mu      sync.RWMutex
	closed  bool
	subs    []*nats.Subscription
}

// NewPublisher 连接 NATS，断线自动重连
func NewPublisher(url, subject string) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("utrading-alert-hub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			monitor.SetNATSConnected(false)
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			monitor.SetNATSConnected(true)
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	monitor.SetNATSConnected(true)

	return &Publisher{
		Conn:    conn,
		subject: subject,
	}, nil
}

// Publish 实现 changefeed.Publisher
func (p *Publisher) Publish(ev changefeed.Event) error {
	data, err := ev.Marshal()
	if err != nil {
		monitor.IncEventErrors("marshal")
		return fmt.Errorf("marshal change event: %w", err)
	}

	if err = p.Conn.Publish(p.subject, data); err != nil {
		monitor.IncEventErrors("nats_publish")
		return fmt.Errorf("nats publish: %w", err)
	}

	monitor.IncEventsPublished("nats", string(ev.EventType))
	return nil
}

// Subscribe 订阅变更事件，格式错误的消息记录后丢弃
func (p *Publisher) Subscribe(handler func(changefeed.Event)) error {
	sub, err := p.Conn.Subscribe(p.subject, func(msg *nats.Msg) {
		ev, err := changefeed.Decode(msg.Data)
		if err != nil {
			monitor.IncEventErrors("decode")
			logger.Warn().Err(err).Str("subject", msg.Subject).Msg("drop malformed change event")
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()

	logger.Info().Str("subject", p.subject).Msg("nats change feed subscribed")
	return nil
}

// IsConnected 检查发布器是否已连接
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed && p.Conn != nil && p.Conn.IsConnected()
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	for _, sub := range p.subs {
		_ = sub.Unsubscribe()
	}
	p.subs = nil

	monitor.SetNATSConnected(false)

	if p.Conn != nil {
		if err := p.Conn.Drain(); err != nil {
			p.Conn.Close()
		}
	}
	return nil
}
