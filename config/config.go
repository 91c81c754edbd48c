package config

import (
	"os"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

type Server struct {
	Addr            string        `toml:"addr"`
	TradingTimezone string        `toml:"trading_timezone"`
	RateLimit       int           `toml:"rate_limit"` // 每个 IP 每分钟 webhook 次数，0 关闭
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	CORSOrigins     []string      `toml:"cors_origins"`
	DayCacheTTL     time.Duration `toml:"day_cache_ttl"`
}

type Database struct {
	Driver             string   `toml:"driver"` // mysql / sqlite
	DSN                string   `toml:"dsn"`
	SlaveAddr          []string `toml:"slave_addr"`
	MaxIdleConnections int      `toml:"max_idle_connections"`
	MaxOpenConnections int      `toml:"max_open_connections"`
	SetConnMaxLifetime int      `toml:"set_conn_max_lifetime"`
	SetConnMaxIdleTime int      `toml:"set_conn_max_idle_time"`
	ProxyEnabled       bool     `toml:"proxy_enabled"`
	ProxyAddr          string   `toml:"proxy_addr"`
}

type NATS struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Subject  string `toml:"subject"`
}

type Realtime struct {
	SendQueueSize int           `toml:"send_queue_size"`
	PingPeriod    time.Duration `toml:"ping_period"`
}

type Health struct {
	Addr string `toml:"addr"`
}

type Logger struct {
	Level      string `toml:"level"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
	Console    bool   `toml:"console"`
	InfoFile   string `toml:"info_file"`
	ErrorFile  string `toml:"error_file"`
}

type Config struct {
	Server   Server   `toml:"server"`
	Database Database `toml:"database"`
	NATS     NATS     `toml:"nats"`
	Realtime Realtime `toml:"realtime"`
	Health   Health   `toml:"health"`
	Logger   Logger   `toml:"log"`
}

var (
	cfg         *Config
	cfgPath     string
	cfgLock     sync.RWMutex
	lastModTime time.Time
	stopChan    chan struct{}
	stopOnce    sync.Once

	hooksMu sync.Mutex
	hooks   []func(*Config)
)

func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            "0.0.0.0:8080",
			TradingTimezone: "UTC",
			RateLimit:       120,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			CORSOrigins:     []string{"*"},
			DayCacheTTL:     30 * time.Second,
		},
		Database: Database{
			Driver:             "mysql",
			DSN:                "root:password@tcp(localhost:3306)/utrading?charset=utf8mb4&parseTime=True&loc=Local",
			SlaveAddr:          []string{},
			MaxIdleConnections: 16,
			MaxOpenConnections: 64,
			SetConnMaxLifetime: 7200,
			SetConnMaxIdleTime: 3600,
			ProxyEnabled:       false,
			ProxyAddr:          "127.0.0.1:7890",
		},
		NATS: NATS{
			Enabled:  false,
			Endpoint: "nats://localhost:4222",
			Subject:  "trading_alerts.changes",
		},
		Realtime: Realtime{
			SendQueueSize: 256,
			PingPeriod:    30 * time.Second,
		},
		Health: Health{
			Addr: "0.0.0.0:16801",
		},
		Logger: Logger{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 60,
			MaxAge:     7,
			Compress:   false,
			Console:    false,
			InfoFile:   "logs/info.log",
			ErrorFile:  "logs/err.log",
		},
	}
}

// Location 解析交易日时区，非法时回退 UTC
func (s Server) Location() *time.Location {
	loc, err := time.LoadLocation(s.TradingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func Load(path string) error {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	cfgLock.Lock()
	defer cfgLock.Unlock()
	cfg = c
	cfgPath = path
	lastModTime = info.ModTime()

	return nil
}

// Get 返回当前配置，未加载时返回默认值
func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	if cfg == nil {
		return Default()
	}
	return cfg
}

// Init 初始化配置并启动定期重载（默认10秒）
func Init(path string) error {
	return InitWithInterval(path, 10*time.Second)
}

// InitWithInterval 初始化配置并指定重载间隔
func InitWithInterval(path string, interval time.Duration) error {
	if err := Load(path); err != nil {
		return err
	}

	stopChan = make(chan struct{})
	stopOnce = sync.Once{}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reloadIfNeeded()
			case <-stopChan:
				return
			}
		}
	}()

	return nil
}

// Stop 停止配置重载
func Stop() {
	if stopChan != nil {
		stopOnce.Do(func() { close(stopChan) })
	}
}

// OnReload 注册重载成功后的回调，用于应用可热更新的配置项
func OnReload(fn func(*Config)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = append(hooks, fn)
}

func runHooks(c *Config) {
	hooksMu.Lock()
	fns := append([]func(*Config){}, hooks...)
	hooksMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// reloadIfNeeded 仅在文件修改时重载
func reloadIfNeeded() {
	cfgLock.RLock()
	path := cfgPath
	lastMod := lastModTime
	cfgLock.RUnlock()

	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		logger.Error().Err(err).Msg("config stat failed")
		return
	}

	if info.ModTime().After(lastMod) {
		if err = Load(path); err != nil {
			logger.Error().Err(err).Msg("config reload failed")
		} else {
			logger.Info().Msg("config reloaded")
			runHooks(Get())
		}
	}
}
