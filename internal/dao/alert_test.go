package dao

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/utrading/utrading-alert-hub/config"
	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/internal/dal"
	"github.com/utrading/utrading-alert-hub/internal/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []changefeed.Event
	err    error
}

func (p *recordingPublisher) Publish(ev changefeed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []changefeed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]changefeed.Event(nil), p.events...)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := dal.Open(config.Database{
		Driver: dal.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	require.NoError(t, dal.AutoMigrate(conn))

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func newAlert(date, title string) *models.TradingAlert {
	return &models.TradingAlert{
		Timestamp:       time.Now().UTC(),
		Title:           title,
		StockSymbol:     "AAPL",
		Type:            "long",
		EntryPrice:      187.5,
		StoplossPrice:   185.2,
		Interval:        "5",
		Status:          models.StatusNew,
		Priority:        models.PriorityMedium,
		MA200With2Min:   models.LevelBelow,
		MA200With5Min:   models.LevelBelow,
		PrevMonthHigh:   models.LevelBelow,
		PrevMonthLow:    models.LevelBelow,
		OrbHigh:         models.LevelBelow,
		OrbLow:          models.LevelBelow,
		SupertrendTrend: models.TrendUp,
		Date:            date,
	}
}

func TestAlertDAO_CreateAssignsIDAndPublishesInsert(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewAlertDAO(openTestDB(t), pub)

	row, err := d.Create(context.Background(), newAlert("2024-01-15", "Breakout"))
	require.NoError(t, err)
	assert.Len(t, row.ID, 36)
	assert.False(t, row.CreatedAt.IsZero())

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, changefeed.EventInsert, events[0].EventType)
	assert.Equal(t, changefeed.TableAlerts, events[0].Table)
	require.NotNil(t, events[0].New)
	assert.Equal(t, row.ID, events[0].New.ID)
	assert.Nil(t, events[0].Old)
}

func TestAlertDAO_PublishFailureKeepsRow(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d := NewAlertDAO(openTestDB(t), pub)

	row, err := d.Create(context.Background(), newAlert("2024-01-15", "Breakout"))
	require.NoError(t, err)

	got, err := d.Get(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, "Breakout", got.Title)
}

func TestAlertDAO_ListByDateOrdersNewestFirst(t *testing.T) {
	conn := openTestDB(t)
	d := NewAlertDAO(conn, nil)
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	for i, title := range []string{"first", "second", "third"} {
		a := newAlert("2024-01-15", title)
		a.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := d.Create(ctx, a)
		require.NoError(t, err)
	}
	_, err := d.Create(ctx, newAlert("2024-01-16", "other day"))
	require.NoError(t, err)

	alerts, err := d.ListByDate(ctx, "2024-01-15")
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "third", alerts[0].Title)
	assert.Equal(t, "second", alerts[1].Title)
	assert.Equal(t, "first", alerts[2].Title)

	empty, err := d.ListByDate(ctx, "2023-12-31")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAlertDAO_ListNormalizesStoredValues(t *testing.T) {
	conn := openTestDB(t)
	d := NewAlertDAO(conn, nil)
	ctx := context.Background()

	row, err := d.Create(ctx, newAlert("2024-01-15", "Breakout"))
	require.NoError(t, err)

	// 外部写入的非法值
	require.NoError(t, conn.Model(&models.TradingAlert{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{"status": "archived", "priority": "urgent"}).Error)

	alerts, err := d.ListByDate(ctx, "2024-01-15")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.StatusNew, alerts[0].Status)
	assert.Equal(t, models.PriorityMedium, alerts[0].Priority)
}

func TestAlertDAO_UpdateStatus(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewAlertDAO(openTestDB(t), pub)
	ctx := context.Background()

	row, err := d.Create(ctx, newAlert("2024-01-15", "Breakout"))
	require.NoError(t, err)

	updated, err := d.UpdateStatus(ctx, row.ID, models.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, updated.Status)
	assert.Equal(t, "Breakout", updated.Title)

	events := pub.Events()
	require.Len(t, events, 2)
	ev := events[1]
	assert.Equal(t, changefeed.EventUpdate, ev.EventType)
	require.NotNil(t, ev.New)
	require.NotNil(t, ev.Old)
	assert.Equal(t, models.StatusActive, ev.New.Status)
	assert.Equal(t, models.StatusNew, ev.Old.Status)
}

func TestAlertDAO_UpdateStatusUnknownID(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewAlertDAO(openTestDB(t), pub)

	_, err := d.UpdateStatus(context.Background(), "missing", models.StatusIgnored)
	assert.ErrorIs(t, err, ErrAlertNotFound)
	assert.Empty(t, pub.Events())

	_, err = d.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}
