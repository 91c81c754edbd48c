package alertsync

import (
	"github.com/utrading/utrading-alert-hub/internal/models"
)

// alertCache 当前交易日的告警，按创建时间倒序，只在事件循环内访问
type alertCache struct {
	rows []models.TradingAlert
}

// reset 整体替换，同一 id 只保留第一次出现
func (c *alertCache) reset(rows []models.TradingAlert) {
	seen := make(map[string]struct{}, len(rows))
	c.rows = make([]models.TradingAlert, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		r.Normalize()
		c.rows = append(c.rows, r)
	}
}

func (c *alertCache) index(id string) int {
	for i := range c.rows {
		if c.rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *alertCache) get(id string) (models.TradingAlert, bool) {
	if i := c.index(id); i >= 0 {
		return c.rows[i], true
	}
	return models.TradingAlert{}, false
}

// upsertFront 新行插到最前，已存在则原位替换；返回是否为新行
func (c *alertCache) upsertFront(row models.TradingAlert) bool {
	row.Normalize()
	if i := c.index(row.ID); i >= 0 {
		c.rows[i] = row
		return false
	}
	c.rows = append(c.rows, models.TradingAlert{})
	copy(c.rows[1:], c.rows)
	c.rows[0] = row
	return true
}

// replace 只替换已存在的行
func (c *alertCache) replace(row models.TradingAlert) bool {
	i := c.index(row.ID)
	if i < 0 {
		return false
	}
	row.Normalize()
	c.rows[i] = row
	return true
}

func (c *alertCache) setStatus(id string, status models.AlertStatus) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.rows[i].Status = status
	c.rows[i].Normalize()
	return true
}

func (c *alertCache) remove(id string) (models.TradingAlert, bool) {
	i := c.index(id)
	if i < 0 {
		return models.TradingAlert{}, false
	}
	row := c.rows[i]
	c.rows = append(c.rows[:i], c.rows[i+1:]...)
	return row, true
}

func (c *alertCache) clear() {
	c.rows = nil
}

func (c *alertCache) len() int {
	return len(c.rows)
}

func (c *alertCache) snapshot() []models.TradingAlert {
	out := make([]models.TradingAlert, len(c.rows))
	copy(out, c.rows)
	return out
}
