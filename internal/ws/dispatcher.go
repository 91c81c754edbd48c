package ws

import (
	"sync"

	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

// Dispatcher 按频道分发消息
// 回调在读循环中同步执行，同一连接的消息保持到达顺序
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Channel]Callback
	fallback Callback
}

// NewDispatcher 创建分发器
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Channel]Callback),
	}
}

// Handle 注册频道回调，重复注册覆盖
func (d *Dispatcher) Handle(channel Channel, cb Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[channel] = cb
}

// HandleDefault 未注册频道的回调
func (d *Dispatcher) HandleDefault(cb Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = cb
}

// Dispatch 处理收到的消息
func (d *Dispatcher) Dispatch(msg WsMessage) error {
	d.mu.RLock()
	cb, ok := d.handlers[msg.Channel]
	if !ok {
		cb = d.fallback
	}
	d.mu.RUnlock()

	if cb == nil {
		logger.Debug().Str("channel", string(msg.Channel)).Msg("no handler for channel")
		return nil
	}
	return cb(msg)
}
