package dal

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	proxymysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/proxy"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"github.com/utrading/utrading-alert-hub/config"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type GormLogger struct{}

func (l GormLogger) Printf(f string, args ...any) {
	logger.Printf(f, args...)
}

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

// InitDB 初始化全局连接，只执行一次
func InitDB(cfg config.Database) error {
	dbOnce.Do(func() {
		db, dbErr = Open(cfg)
	})
	return dbErr
}

// Open 按驱动建立连接
func Open(cfg config.Database) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(
			GormLogger{}, gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	switch cfg.Driver {
	case DriverSQLite:
		conn, err := gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite failed: %w", err)
		}
		logger.Info().Str("dsn", cfg.DSN).Msg("sqlite connected")
		return conn, nil
	case DriverMySQL, "":
		return connectMySQL(cfg, gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// registerProxyDialer 注册 SOCKS5 代理拨号器
func registerProxyDialer(proxyAddr string) error {
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, nil, &net.Dialer{})
	if err != nil {
		return fmt.Errorf("create proxy dialer failed: %w", err)
	}

	proxymysql.RegisterDialContext("tcp", func(ctx context.Context, addr string) (net.Conn, error) {
		return dialer.Dial("tcp", addr)
	})

	return nil
}

func connectMySQL(cfg config.Database, gormCfg *gorm.Config) (*gorm.DB, error) {
	if cfg.ProxyEnabled {
		if err := registerProxyDialer(cfg.ProxyAddr); err != nil {
			return nil, fmt.Errorf("register proxy failed: %w", err)
		}
		logger.Infof("mysql proxy enabled: %s", cfg.ProxyAddr)
	}

	gormCfg.PrepareStmt = true
	conn, err := gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect mysql master failed: %w", err)
	}

	maxIdleTime := time.Hour
	if cfg.SetConnMaxIdleTime > 0 {
		maxIdleTime = time.Duration(cfg.SetConnMaxIdleTime) * time.Second
	}

	maxLifetime := 2 * time.Hour
	if cfg.SetConnMaxLifetime > 0 {
		maxLifetime = time.Duration(cfg.SetConnMaxLifetime) * time.Second
	}

	// 读写分离：列表查询走从库
	if len(cfg.SlaveAddr) > 0 {
		replicas := make([]gorm.Dialector, 0, len(cfg.SlaveAddr))
		for _, addr := range cfg.SlaveAddr {
			replicas = append(replicas, mysql.Open(addr))
		}
		plugin := dbresolver.Register(dbresolver.Config{
			Replicas:          replicas,
			TraceResolverMode: true,
		}).
			SetConnMaxIdleTime(maxIdleTime).
			SetConnMaxLifetime(maxLifetime).
			SetMaxIdleConns(cfg.MaxIdleConnections).
			SetMaxOpenConns(cfg.MaxOpenConnections)
		if err = conn.Use(plugin); err != nil {
			return nil, fmt.Errorf("register dbresolver failed: %w", err)
		}
		logger.Infof("mysql %d slave(s) configured", len(cfg.SlaveAddr))
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB failed: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetConnMaxIdleTime(maxIdleTime)
	sqlDB.SetConnMaxLifetime(maxLifetime)

	logger.Info().Msgf("mysql connected: max_idle=%d, max_open=%d, max_idle_time=%v, max_lifetime=%v",
		cfg.MaxIdleConnections, cfg.MaxOpenConnections, maxIdleTime, maxLifetime)

	return conn, nil
}

// DB 返回全局连接
func DB() *gorm.DB {
	return db
}

// Ping 健康检查使用
func Ping(ctx context.Context) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close() {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error().Err(err).Msg("get sql.DB failed")
		return
	}
	if err = sqlDB.Close(); err != nil {
		logger.Error().Err(err).Msg("close database failed")
	}

	logger.Infof("database closed.")
}

// AutoMigrate 自动迁移表结构
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("database not initialized")
	}

	for _, model := range Models() {
		if err := conn.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto migrate %s failed: %w", getTableName(model), err)
		}
		log.Info().Str("table", getTableName(model)).Msg("auto migrate success")
	}
	return nil
}

// Models 需要迁移与生成查询代码的模型
func Models() []any {
	return []any{
		&models.TradingAlert{},
	}
}

func getTableName(model any) string {
	if t, ok := model.(interface{ TableName() string }); ok {
		return t.TableName()
	}
	return "unknown"
}
