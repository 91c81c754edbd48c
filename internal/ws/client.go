package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-alert-hub/pkg/goplus"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

const (
	writeWait      = 10 * time.Second // 写入超时
	pongWait       = 60 * time.Second // 读取超时（应大于心跳间隔）
	pingPeriod     = 30 * time.Second // 心跳间隔
	maxMessageSize = 1024 * 1024      // 最大消息限制 1MB
)

// Client 实时推送客户端连接
type Client struct {
	url        string
	conn       *websocket.Conn
	mu         sync.RWMutex
	writeMu    sync.Mutex
	pingPeriod time.Duration

	// 状态控制
	done      chan struct{}
	closeOnce sync.Once

	// 回调
	onMessage    Callback
	onDisconnect func()
}

func NewClient(url string) *Client {
	if url == "" {
		panic("ws: URL cannot be empty")
	}
	return &Client{
		url:        url,
		pingPeriod: pingPeriod,
		done:       make(chan struct{}),
	}
}

// SetPingPeriod 修改心跳间隔，需在 Connect 之前调用
func (c *Client) SetPingPeriod(d time.Duration) {
	if d > 0 {
		c.pingPeriod = d
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil // 已经连接
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return fmt.Errorf("client closed")
	default:
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// done 关闭时主动断开，解除 ReadMessage 阻塞
	goplus.Go(func() {
		<-c.done
		c.internalClose()
	})

	goplus.Go(c.readPump)
	goplus.Go(c.pingPump)

	return nil
}

// internalClose 内部关闭方法，不触发通知逻辑
func (c *Client) internalClose() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

// Close 主动关闭，之后不会再触发断线回调
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.internalClose()
	})
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.internalClose()
		if !c.isClosed() {
			c.notifyDisconnect()
		}
	}()

	for {
		if c.isClosed() {
			return
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Msg("ws read error")
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, ok := parseMessage(raw)
		if !ok {
			logger.Warn().Str("payload", truncate(raw, 256)).Msg("drop malformed ws message")
			continue
		}

		c.mu.RLock()
		handler := c.onMessage
		c.mu.RUnlock()

		if handler != nil {
			if err = handler(msg); err != nil {
				logger.Error().Err(err).Str("channel", string(msg.Channel)).Msg("onMessage callback error")
			}
		}
	}
}

// parseMessage 只取 channel 与 data 原文，data 留给各频道自行解析
func parseMessage(raw []byte) (WsMessage, bool) {
	if !gjson.ValidBytes(raw) {
		return WsMessage{}, false
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return WsMessage{}, false
	}
	channel := r.Get("channel")
	if channel.Type != gjson.String {
		return WsMessage{}, false
	}

	msg := WsMessage{Channel: Channel(channel.String())}
	if data := r.Get("data"); data.Exists() {
		msg.Data = json.RawMessage(data.Raw)
	}
	return msg, true
}

func (c *Client) pingPump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				return
			}
		}
	}
}

// Ping 同时发送控制帧与业务层 ping
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		return err
	}
	return conn.WriteJSON(Request{Method: MethodPing})
}

// Subscribe 订阅某张表的变更
func (c *Client) Subscribe(table string) error {
	return c.writeJSONWithDeadline(Request{
		Method: MethodSubscribe,
		Table:  table,
	})
}

func (c *Client) writeJSONWithDeadline(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection closed")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (c *Client) notifyDisconnect() {
	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (c *Client) SetMessageHandler(handler Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

func (c *Client) SetDisconnectCallback(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = callback
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
