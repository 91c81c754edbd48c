package dao

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

var ErrAlertNotFound = errors.New("alert not found")

// AlertDAO 告警存储，写入成功后发布行级变更事件
type AlertDAO struct {
	db        *gorm.DB
	publisher changefeed.Publisher
	now       func() time.Time
}

var (
	_alert     *AlertDAO
	_alertOnce sync.Once
)

// InitAlertDAO 初始化 AlertDAO 单例
func InitAlertDAO(db *gorm.DB, publisher changefeed.Publisher) {
	_alertOnce.Do(func() {
		_alert = NewAlertDAO(db, publisher)
	})
}

// Alert 获取 AlertDAO 单例
func Alert() *AlertDAO {
	return _alert
}

// NewAlertDAO 创建 AlertDAO，publisher 为空时不发布事件
func NewAlertDAO(db *gorm.DB, publisher changefeed.Publisher) *AlertDAO {
	if publisher == nil {
		publisher = changefeed.Discard
	}
	return &AlertDAO{
		db:        db,
		publisher: publisher,
		now:       time.Now,
	}
}

// Create 插入一行，返回包含 id 与时间戳的完整行
func (d *AlertDAO) Create(ctx context.Context, alert *models.TradingAlert) (*models.TradingAlert, error) {
	if err := d.db.WithContext(ctx).Create(alert).Error; err != nil {
		return nil, fmt.Errorf("insert alert: %w", err)
	}

	d.publish(changefeed.Event{
		EventType: changefeed.EventInsert,
		New:       alert,
	})
	return alert, nil
}

// ListByDate 查询某交易日全部告警，按创建时间倒序
func (d *AlertDAO) ListByDate(ctx context.Context, date string) ([]models.TradingAlert, error) {
	var alerts []models.TradingAlert
	err := d.db.WithContext(ctx).
		Where("date = ?", date).
		Order("created_at DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("list alerts by date: %w", err)
	}

	for i := range alerts {
		alerts[i].Normalize()
	}
	return alerts, nil
}

// Get 按 id 查询
func (d *AlertDAO) Get(ctx context.Context, id string) (*models.TradingAlert, error) {
	var alert models.TradingAlert
	err := d.db.WithContext(ctx).Where("id = ?", id).Take(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	alert.Normalize()
	return &alert, nil
}

// UpdateStatus 修改状态并发布 UPDATE 事件
func (d *AlertDAO) UpdateStatus(ctx context.Context, id string, status models.AlertStatus) (*models.TradingAlert, error) {
	var (
		before models.TradingAlert
		after  models.TradingAlert
	)

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlertNotFound
			}
			return err
		}

		result := tx.Model(&models.TradingAlert{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":     status,
				"updated_at": d.now(),
			})
		if result.Error != nil {
			return result.Error
		}

		return tx.Where("id = ?", id).Take(&after).Error
	})
	if errors.Is(err, ErrAlertNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update alert status: %w", err)
	}

	before.Normalize()
	after.Normalize()
	d.publish(changefeed.Event{
		EventType: changefeed.EventUpdate,
		New:       &after,
		Old:       &before,
	})
	return &after, nil
}

func (d *AlertDAO) publish(ev changefeed.Event) {
	ev.Table = changefeed.TableAlerts
	ev.CommitTimestamp = d.now()
	if err := d.publisher.Publish(ev); err != nil {
		// 行已落库，通知失败只影响实时推送
		logger.Error().Err(err).
			Str("event", string(ev.EventType)).
			Str("id", ev.Row().ID).
			Msg("publish change event failed")
	}
}
