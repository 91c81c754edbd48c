package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/internal/monitor"
	"github.com/utrading/utrading-alert-hub/pkg/concurrent"
	"github.com/utrading/utrading-alert-hub/pkg/goplus"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

var ErrHubClosed = errors.New("hub closed")

// HubOptions 推送中心参数
type HubOptions struct {
	SendQueueSize int
	PingPeriod    time.Duration
	CheckOrigin   func(r *http.Request) bool
}

// Hub 实时推送中心：接收订阅连接，把变更事件扇出给所有已订阅的客户端
type Hub struct {
	clients    concurrent.Map[string, *hubClient]
	upgrader   websocket.Upgrader
	queueSize  int
	pingPeriod time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
}

type hubClient struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	subscribed atomic.Bool
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub 创建推送中心
func NewHub(opts HubOptions) *Hub {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 256
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = pingPeriod
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		queueSize:  opts.SendQueueSize,
		pingPeriod: opts.PingPeriod,
	}
}

// ServeHTTP 升级连接并注册客户端
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade failed")
		return
	}

	c := &hubClient{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
	}
	h.clients.Store(c.id, c)
	monitor.SetHubClients(h.ClientCount())

	logger.Debug().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("realtime client connected")

	goplus.Go(c.writePump)
	goplus.Go(c.readPump)
}

// Publish 实现 changefeed.Publisher
func (h *Hub) Publish(ev changefeed.Event) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if ev.Table != "" && ev.Table != changefeed.TableAlerts {
		return nil
	}

	data, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	frame, err := json.Marshal(WsMessage{Channel: ChannelPostgresChanges, Data: data})
	if err != nil {
		return fmt.Errorf("marshal ws frame: %w", err)
	}

	h.clients.Range(func(_ string, c *hubClient) bool {
		if c.subscribed.Load() {
			c.enqueue(frame)
		}
		return true
	})
	monitor.IncEventsPublished("hub", string(ev.EventType))
	return nil
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	return int(h.clients.Len())
}

// Close 断开全部客户端，之后的连接直接拒绝
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.clients.Range(func(_ string, c *hubClient) bool {
			c.close()
			return true
		})
	})
}

func (h *Hub) remove(c *hubClient) {
	if _, ok := h.clients.LoadAndDelete(c.id); ok {
		monitor.SetHubClients(h.ClientCount())
		logger.Debug().Str("client", c.id).Msg("realtime client disconnected")
	}
}

// enqueue 非阻塞投递，队列满说明客户端跟不上，直接断开
func (c *hubClient) enqueue(frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- frame:
	default:
		monitor.IncHubDropped()
		logger.Warn().Str("client", c.id).Msg("realtime client too slow, dropping")
		c.close()
	}
}

// close 只发信号，底层连接由 writePump 退出时关闭
func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.remove(c)
	})
}

func (c *hubClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Str("client", c.id).Msg("realtime read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(raw)
	}
}

func (c *hubClient) handle(raw []byte) {
	if !gjson.ValidBytes(raw) {
		logger.Debug().Str("client", c.id).Msg("ignore malformed client request")
		return
	}

	req := gjson.ParseBytes(raw)
	switch req.Get("method").String() {
	case MethodSubscribe:
		table := req.Get("table").String()
		if table != changefeed.TableAlerts {
			c.enqueue(systemMessage(string(changefeed.StatusChannelError), fmt.Sprintf("unknown table %q", table)))
			return
		}
		c.subscribed.Store(true)
		c.enqueue(systemMessage(string(changefeed.StatusSubscribed), ""))
	case MethodPing:
		c.enqueue(pongFrame)
	}
}

var pongFrame, _ = json.Marshal(WsMessage{Channel: ChannelPong})

func (c *hubClient) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
