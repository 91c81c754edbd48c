package alertsync

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/internal/notify"
)

// fakeClock 手动推进的时钟
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance 推进时间并同步触发到期的定时器
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// pending 尚未触发且未取消的定时器时长
func (c *fakeClock) pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

// fakeFeed 记录每一次订阅，由测试主动推送状态与事件
type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

type fakeSub struct {
	mu       sync.Mutex
	onEvent  func(changefeed.Event)
	onStatus func(changefeed.Status, error)
	closed   bool
}

func (f *fakeFeed) Subscribe(onEvent func(changefeed.Event), onStatus func(changefeed.Status, error)) (changefeed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSub{onEvent: onEvent, onStatus: onStatus}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeFeed) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) at(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// 关闭后仍然回调，模拟迟到的消息
func (s *fakeSub) status(st changefeed.Status) { s.onStatus(st, nil) }
func (s *fakeSub) event(ev changefeed.Event)   { s.onEvent(ev) }

// fakeStore 内存持久层
type fakeStore struct {
	mu        sync.Mutex
	rows      map[string][]models.TradingAlert
	fetches   int
	fetchErr  error
	updateErr error
	gate      chan struct{}
	fetchFn   func(date string) []models.TradingAlert
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]models.TradingAlert)}
}

func (s *fakeStore) put(date string, rows ...models.TradingAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[date] = rows
}

func (s *fakeStore) FetchAlerts(ctx context.Context, date string) ([]models.TradingAlert, error) {
	s.mu.Lock()
	s.fetches++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.fetchFn != nil {
		return s.fetchFn(date), nil
	}
	return append([]models.TradingAlert(nil), s.rows[date]...), nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, status models.AlertStatus) (*models.TradingAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	for date, rows := range s.rows {
		for i := range rows {
			if rows[i].ID == id {
				rows[i].Status = status
				s.rows[date] = rows
				row := rows[i]
				return &row, nil
			}
		}
	}
	return nil, errNotFound
}

func (s *fakeStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type toastRecorder struct {
	mu     sync.Mutex
	toasts []notify.Toast
}

func (r *toastRecorder) Toast(t notify.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *toastRecorder) all() []notify.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Toast(nil), r.toasts...)
}

func (r *toastRecorder) titles() []string {
	var out []string
	for _, t := range r.all() {
		out = append(out, t.Title)
	}
	return out
}

type soundCounter struct {
	mu sync.Mutex
	n  int
}

func (c *soundCounter) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *soundCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type harness struct {
	s      *Syncer
	clock  *fakeClock
	feed   *fakeFeed
	store  *fakeStore
	toasts *toastRecorder
	sound  *soundCounter
}

func newHarness(t *testing.T, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clock:  &fakeClock{},
		feed:   &fakeFeed{},
		store:  newFakeStore(),
		toasts: &toastRecorder{},
		sound:  &soundCounter{},
	}
	o := Options{
		Store:   h.store,
		Feed:    h.feed,
		Toaster: h.toasts,
		Sound:   h.sound,
		Clock:   h.clock,
	}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := New(o)
	require.NoError(t, err)
	h.s = s
	t.Cleanup(func() { _ = s.Close() })
	return h
}

// flush 等待事件循环处理完此前投递的所有消息
func (h *harness) flush(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, h.s.post(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop stalled")
	}
}

// loaded 等待拉取完成
func (h *harness) loaded(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		done := make(chan struct{})
		if !h.s.post(func() { close(done) }) {
			return false
		}
		<-done
		return !h.s.Loading()
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) start(t *testing.T, date string) {
	t.Helper()
	h.s.SetDate(date)
	h.loaded(t)
	h.feed.last().status(changefeed.StatusSubscribed)
	h.flush(t)
	require.Equal(t, StateConnected, h.s.State())
}

func alert(id, date string) models.TradingAlert {
	return models.TradingAlert{
		ID:          id,
		Date:        date,
		Title:       "Alert " + id,
		StockSymbol: "AAPL",
		Type:        "long",
		Interval:    "5",
		Status:      models.StatusNew,
		Priority:    models.PriorityMedium,
	}
}

func ids(rows []models.TradingAlert) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}
