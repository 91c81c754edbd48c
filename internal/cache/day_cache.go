package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/internal/monitor"
)

const cacheType = "day_alerts"

// DayLoader 按交易日读取告警
type DayLoader func(ctx context.Context, date string) ([]models.TradingAlert, error)

// DayCache 按交易日缓存告警列表，变更事件到达时失效对应日期
type DayCache struct {
	cache  *cache.Cache
	loader DayLoader
	ttl    atomic.Int64
	// 同一日期的并发回源合并为一次
	mu       sync.Mutex
	inflight map[string]*loadCall
}

type loadCall struct {
	done   chan struct{}
	alerts []models.TradingAlert
	err    error
}

// NewDayCache ttl<=0 时不缓存，每次都回源
func NewDayCache(ttl time.Duration, loader DayLoader) *DayCache {
	cleanup := ttl * 2
	if ttl <= 0 {
		cleanup = time.Minute
	}
	c := &DayCache{
		cache:    cache.New(ttl, cleanup),
		loader:   loader,
		inflight: make(map[string]*loadCall),
	}
	c.ttl.Store(int64(ttl))
	return c
}

// SetTTL 配置热更新时调整，只影响之后写入的条目；<=0 时清空并停止缓存
func (c *DayCache) SetTTL(ttl time.Duration) {
	if old := time.Duration(c.ttl.Swap(int64(ttl))); old != ttl && ttl <= 0 {
		c.Flush()
	}
}

// Get 命中直接返回副本，未命中回源后写入
func (c *DayCache) Get(ctx context.Context, date string) ([]models.TradingAlert, error) {
	ttl := time.Duration(c.ttl.Load())
	if ttl <= 0 {
		alerts, err := c.loader(ctx, date)
		return cloneAlerts(alerts), err
	}
	if v, ok := c.cache.Get(date); ok {
		monitor.IncCacheHit(cacheType)
		return cloneAlerts(v.([]models.TradingAlert)), nil
	}
	monitor.IncCacheMiss(cacheType)

	c.mu.Lock()
	if call, ok := c.inflight[date]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return cloneAlerts(call.alerts), call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &loadCall{done: make(chan struct{})}
	c.inflight[date] = call
	c.mu.Unlock()

	call.alerts, call.err = c.loader(ctx, date)

	c.mu.Lock()
	// 回源期间被失效的日期不写回，避免读到旧数据
	if c.inflight[date] == call {
		delete(c.inflight, date)
		if call.err == nil {
			c.cache.Set(date, call.alerts, ttl)
		}
	}
	c.mu.Unlock()
	close(call.done)

	return cloneAlerts(call.alerts), call.err
}

// Invalidate 失效某个交易日
func (c *DayCache) Invalidate(date string) {
	c.mu.Lock()
	delete(c.inflight, date)
	c.mu.Unlock()
	c.cache.Delete(date)
}

// Flush 清空全部
func (c *DayCache) Flush() {
	c.mu.Lock()
	clear(c.inflight)
	c.mu.Unlock()
	c.cache.Flush()
}

// Publish 实现 changefeed.Publisher，作为事件下游挂在 Sinks 上
func (c *DayCache) Publish(ev changefeed.Event) error {
	c.Apply(ev)
	return nil
}

// Apply 按事件涉及的日期失效，日期未知时全部清空
func (c *DayCache) Apply(ev changefeed.Event) {
	dates := make([]string, 0, 2)
	for _, row := range []*models.TradingAlert{ev.New, ev.Old} {
		if row == nil {
			continue
		}
		if row.Date == "" {
			c.Flush()
			return
		}
		dates = append(dates, row.Date)
	}
	if len(dates) == 0 {
		c.Flush()
		return
	}
	for _, d := range dates {
		c.Invalidate(d)
	}
}

// Len 缓存中的日期数
func (c *DayCache) Len() int {
	return c.cache.ItemCount()
}

func cloneAlerts(src []models.TradingAlert) []models.TradingAlert {
	if src == nil {
		return []models.TradingAlert{}
	}
	dst := make([]models.TradingAlert, len(src))
	copy(dst, src)
	return dst
}
