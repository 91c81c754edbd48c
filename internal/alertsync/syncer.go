package alertsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/internal/notify"
	"github.com/utrading/utrading-alert-hub/pkg/goplus"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

const (
	DefaultMaxRetries     = 5
	DefaultBaseDelay      = 2 * time.Second
	DefaultConnectTimeout = 10 * time.Second

	connectionErrorText = "Failed to establish real-time connection. Please refresh the page."
)

var (
	ErrClosed         = errors.New("alertsync: closed")
	errConnectTimeout = errors.New("connect timeout")
)

// Store 告警持久层
type Store interface {
	FetchAlerts(ctx context.Context, date string) ([]models.TradingAlert, error)
	UpdateStatus(ctx context.Context, id string, status models.AlertStatus) (*models.TradingAlert, error)
}

// Options 同步器配置，零值字段取默认
type Options struct {
	Store   Store
	Feed    changefeed.Subscriber
	Toaster notify.Toaster
	Sound   notify.Player
	Clock   Clock

	MaxRetries     int
	BaseDelay      time.Duration
	ConnectTimeout time.Duration

	Interval string
	Tab      Tab
}

// Snapshot 某一时刻的只读视图
type Snapshot struct {
	Date     string
	State    State
	Loading  bool
	Retries  int
	Alerts   []models.TradingAlert
	Interval string
	Tab      Tab
}

// Filtered 周期过滤后的告警
func (s Snapshot) Filtered() []models.TradingAlert {
	return FilterByInterval(s.Alerts, s.Interval)
}

// Visible 周期与页签都过滤后的告警
func (s Snapshot) Visible() []models.TradingAlert {
	return FilterByTab(s.Filtered(), s.Tab)
}

// Stats 周期过滤后的统计
func (s Snapshot) Stats() Stats {
	return ComputeStats(s.Filtered())
}

// Syncer 维护某交易日告警的本地缓存与实时订阅
//
// 所有输入（拉取结果、变更事件、订阅状态、定时器、用户命令）都投递到同一个事件循环中执行，
// 缓存与连接句柄只由事件循环访问。
type Syncer struct {
	opts Options
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	queueMu sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once

	// 以下字段只在事件循环内读写
	closed       bool
	date         string
	cache        alertCache
	state        State
	loading      bool
	retries      int
	sub          changefeed.Subscription
	gen          uint64
	connectTimer Timer
	retryTimer   Timer
	fetchSeq     uint64
	fetching     bool
	replay       []changefeed.Event
	recovering   bool
	interval     string
	tab          Tab

	snapMu    sync.RWMutex
	snap      Snapshot
	listeners []func(Snapshot)
}

// New 创建并启动事件循环；调用 SetDate 后才开始拉取与订阅
func New(opts Options) (*Syncer, error) {
	if opts.Store == nil {
		return nil, errors.New("alertsync: store is required")
	}
	if opts.Feed == nil {
		return nil, errors.New("alertsync: feed is required")
	}
	if opts.Toaster == nil {
		opts.Toaster = notify.Discard
	}
	if opts.Sound == nil {
		opts.Sound = notify.Silent
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Interval == "" {
		opts.Interval = IntervalAll
	}
	if opts.Tab == "" {
		opts.Tab = TabActiveNew
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Syncer{
		opts:     opts,
		log:      logger.Component("alertsync"),
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		state:    StateConnecting,
		interval: opts.Interval,
		tab:      opts.Tab,
	}
	s.snap = s.buildSnapshot()

	goplus.Go(s.loop)
	return s, nil
}

// post 把 fn 放入事件循环，循环已停止时返回 false
func (s *Syncer) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	s.queueMu.Lock()
	s.queue = append(s.queue, fn)
	s.queueMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Syncer) loop() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.queueMu.Lock()
		batch := s.queue
		s.queue = nil
		s.queueMu.Unlock()

		for _, fn := range batch {
			s.exec(fn)
		}
	}
}

func (s *Syncer) exec(fn func()) {
	defer goplus.Recover()
	if s.closed {
		return
	}
	fn()
}

// SetDate 切换交易日：清理旧订阅，全量拉取，再建立一条新订阅
func (s *Syncer) SetDate(date string) {
	s.post(func() {
		s.log.Info().Str("date", date).Msg("switch trading date")

		s.teardown()
		s.date = date
		s.cache.clear()
		s.retries = 0
		s.recovering = false
		s.startFetch()
		s.subscribe()
		s.publish()
	})
}

// Refresh 重新拉取；处于 error 状态时同时重置重试次数并重新订阅
func (s *Syncer) Refresh() {
	s.post(func() {
		if s.date == "" {
			return
		}
		s.startFetch()
		if s.state == StateError {
			s.log.Info().Msg("manual refresh, resubscribe")
			s.retries = 0
			s.recovering = false
			s.subscribe()
		}
		s.publish()
	})
}

// SetInterval 修改周期过滤，all 为不过滤
func (s *Syncer) SetInterval(interval string) {
	if interval == "" {
		interval = IntervalAll
	}
	s.post(func() {
		s.interval = interval
		s.publish()
	})
}

// SetTab 修改状态页签
func (s *Syncer) SetTab(tab Tab) {
	s.post(func() {
		s.tab = tab
		s.publish()
	})
}

// UpdateStatus 先写持久层，成功后再修改本地缓存
func (s *Syncer) UpdateStatus(ctx context.Context, id string, status models.AlertStatus) error {
	if !models.IsValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}

	row, err := s.opts.Store.UpdateStatus(ctx, id, status)
	if err != nil {
		s.log.Error().Err(err).Str("id", id).Str("status", string(status)).Msg("update alert status failed")
		s.opts.Toaster.Toast(notify.Toast{
			Title:       "Error",
			Description: "Failed to update alert status",
			Variant:     notify.VariantDestructive,
		})
		return err
	}

	applied := make(chan struct{})
	ok := s.post(func() {
		defer close(applied)

		cached, found := s.cache.get(id)
		if row != nil {
			patched := *row
			patched.Status = status
			s.cache.replace(patched)
		} else {
			s.cache.setStatus(id, status)
		}

		title := cached.Title
		if !found && row != nil {
			title = row.Title
			found = true
		}
		if found {
			s.opts.Toaster.Toast(notify.Toast{
				Title:       fmt.Sprintf("Alert %s", status),
				Description: fmt.Sprintf("%s status updated to %s", title, status),
			})
		}
		s.publish()
	})
	if !ok {
		return ErrClosed
	}

	select {
	case <-applied:
	case <-s.stopped:
	}
	return nil
}

// OnChange 注册变更回调，回调在事件循环中执行，不能阻塞
func (s *Syncer) OnChange(fn func(Snapshot)) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot 当前视图
func (s *Syncer) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	snap := s.snap
	snap.Alerts = append([]models.TradingAlert(nil), s.snap.Alerts...)
	return snap
}

// Alerts 周期过滤后的告警
func (s *Syncer) Alerts() []models.TradingAlert {
	return s.Snapshot().Filtered()
}

// All 当前交易日全部缓存
func (s *Syncer) All() []models.TradingAlert {
	return s.Snapshot().Alerts
}

func (s *Syncer) State() State {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.State
}

func (s *Syncer) Loading() bool {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap.Loading
}

// Close 停止事件循环与订阅，之后到达的回调全部丢弃
func (s *Syncer) Close() error {
	s.closeOnce.Do(func() {
		cleaned := make(chan struct{})
		if s.post(func() {
			defer close(cleaned)
			s.teardown()
			s.closed = true
		}) {
			<-cleaned
		}
		close(s.done)
		s.cancel()
		<-s.stopped
	})
	return nil
}

// teardown 取消定时器、关闭通道并使旧回调失效
func (s *Syncer) teardown() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close subscription failed")
		}
		s.sub = nil
	}
	s.gen++
}

func (s *Syncer) subscribe() {
	s.teardown()
	s.setState(StateConnecting)
	gen := s.gen

	sub, err := s.opts.Feed.Subscribe(
		func(ev changefeed.Event) {
			s.post(func() {
				if gen == s.gen {
					s.onEvent(ev)
				}
			})
		},
		func(st changefeed.Status, err error) {
			s.post(func() {
				if gen == s.gen {
					s.onStatus(st, err)
				}
			})
		},
	)
	if err != nil {
		s.onStatus(changefeed.StatusChannelError, err)
		return
	}
	s.sub = sub

	s.connectTimer = s.opts.Clock.AfterFunc(s.opts.ConnectTimeout, func() {
		s.post(func() {
			if gen == s.gen && s.state == StateConnecting {
				s.onStatus(changefeed.StatusTimedOut, errConnectTimeout)
			}
		})
	})
}

func (s *Syncer) onStatus(st changefeed.Status, err error) {
	if st == changefeed.StatusSubscribed {
		if s.connectTimer != nil {
			s.connectTimer.Stop()
			s.connectTimer = nil
		}
		s.setState(StateConnected)
		s.retries = 0
		s.log.Info().Str("date", s.date).Msg("realtime subscribed")

		// 断线期间的变更靠一次全量补齐
		if s.recovering {
			s.recovering = false
			s.startFetch()
		}
		s.publish()
		return
	}

	if !st.IsFailure() {
		s.log.Debug().Str("status", string(st)).Msg("ignore subscription status")
		return
	}

	s.log.Warn().Err(err).Str("status", string(st)).Int("retries", s.retries).Msg("realtime subscription failed")
	s.teardown()
	s.setState(StateDisconnected)

	if s.retries < s.opts.MaxRetries {
		s.retries++
		delay := s.backoff(s.retries)
		gen := s.gen
		s.retryTimer = s.opts.Clock.AfterFunc(delay, func() {
			s.post(func() {
				if gen == s.gen {
					s.recovering = true
					s.subscribe()
					s.publish()
				}
			})
		})
		s.log.Info().Int("retry", s.retries).Dur("delay", delay).Msg("realtime reconnect scheduled")
	} else {
		s.setState(StateError)
		s.log.Error().Int("retries", s.retries).Msg("realtime retries exhausted")
		s.opts.Toaster.Toast(notify.Toast{
			Title:       "Connection Error",
			Description: connectionErrorText,
			Variant:     notify.VariantDestructive,
			Persistent:  true,
		})
	}
	s.publish()
}

// backoff 第 n 次重试的等待时间：base * 2^(n-1)
func (s *Syncer) backoff(n int) time.Duration {
	return s.opts.BaseDelay << (n - 1)
}

func (s *Syncer) onEvent(ev changefeed.Event) {
	if s.fetching {
		s.replay = append(s.replay, ev)
	}
	s.apply(ev, true)
	s.publish()
}

// apply live 为假时为拉取后的重放，不再提示
func (s *Syncer) apply(ev changefeed.Event, live bool) {
	switch ev.EventType {
	case changefeed.EventInsert:
		row := ev.New
		if row == nil || row.Date != s.date {
			return
		}
		if fresh := s.cache.upsertFront(*row); fresh && live {
			s.opts.Sound.Play()
			s.opts.Toaster.Toast(notify.Toast{
				Title:       "🚨 New Trading Alert!",
				Description: fmt.Sprintf("%s: %s - %s", row.Title, row.StockSymbol, row.Type),
				Duration:    5 * time.Second,
			})
		}
	case changefeed.EventUpdate:
		row := ev.New
		if row == nil {
			return
		}
		if s.cache.replace(*row) && live {
			s.opts.Toaster.Toast(notify.Toast{
				Title:       "Alert Updated",
				Description: fmt.Sprintf("%s has been updated", row.Title),
				Duration:    3 * time.Second,
			})
		}
	case changefeed.EventDelete:
		if ev.Old == nil {
			return
		}
		if removed, ok := s.cache.remove(ev.Old.ID); ok && live {
			s.opts.Toaster.Toast(notify.Toast{
				Title:       "Alert Removed",
				Description: fmt.Sprintf("%s has been removed", removed.Title),
				Duration:    3 * time.Second,
			})
		}
	}
}

func (s *Syncer) startFetch() {
	s.fetchSeq++
	seq, date := s.fetchSeq, s.date
	s.fetching = true
	s.loading = true
	s.replay = nil

	goplus.Go(func() {
		rows, err := s.opts.Store.FetchAlerts(s.ctx, date)
		s.post(func() {
			s.fetchDone(seq, date, rows, err)
		})
	})
}

func (s *Syncer) fetchDone(seq uint64, date string, rows []models.TradingAlert, err error) {
	if seq != s.fetchSeq || date != s.date {
		return
	}
	s.fetching = false
	s.loading = false
	replay := s.replay
	s.replay = nil

	if err != nil {
		s.log.Error().Err(err).Str("date", date).Msg("fetch alerts failed")
		if !errors.Is(err, context.Canceled) {
			s.opts.Toaster.Toast(notify.Toast{
				Title:       "Error",
				Description: "Failed to fetch alerts",
				Variant:     notify.VariantDestructive,
			})
		}
		s.publish()
		return
	}

	s.cache.reset(rows)
	for _, ev := range replay {
		s.apply(ev, false)
	}
	s.log.Debug().Str("date", date).Int("count", s.cache.len()).Int("replayed", len(replay)).Msg("alerts fetched")
	s.publish()
}

func (s *Syncer) setState(to State) {
	next, err := Transition(s.state, to)
	if err != nil {
		s.log.Warn().Err(err).Msg("state transition rejected")
		return
	}
	if next != s.state {
		s.log.Debug().Str("from", string(s.state)).Str("to", string(next)).Msg("state changed")
	}
	s.state = next
}

func (s *Syncer) buildSnapshot() Snapshot {
	return Snapshot{
		Date:     s.date,
		State:    s.state,
		Loading:  s.loading,
		Retries:  s.retries,
		Alerts:   s.cache.snapshot(),
		Interval: s.interval,
		Tab:      s.tab,
	}
}

func (s *Syncer) publish() {
	snap := s.buildSnapshot()

	s.snapMu.Lock()
	s.snap = snap
	listeners := slices.Clone(s.listeners)
	s.snapMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
