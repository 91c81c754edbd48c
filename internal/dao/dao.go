package dao

import (
	"gorm.io/gorm"

	"github.com/utrading/utrading-alert-hub/internal/changefeed"
)

// InitDAO 初始化所有 DAO（应用启动时调用）
func InitDAO(db *gorm.DB, publisher changefeed.Publisher) {
	InitAlertDAO(db, publisher)
}
