package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/utrading/utrading-alert-hub/config"
	"github.com/utrading/utrading-alert-hub/internal/api"
	"github.com/utrading/utrading-alert-hub/internal/cache"
	"github.com/utrading/utrading-alert-hub/internal/changefeed"
	"github.com/utrading/utrading-alert-hub/internal/dal"
	"github.com/utrading/utrading-alert-hub/internal/dao"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/internal/monitor"
	"github.com/utrading/utrading-alert-hub/internal/nats"
	"github.com/utrading/utrading-alert-hub/internal/ws"
	"github.com/utrading/utrading-alert-hub/pkg/goplus"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
	"github.com/utrading/utrading-alert-hub/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("alert_hub service starting...")

	// 初始化指标
	monitor.InitMetrics()

	// 初始化数据库
	if err := dal.InitDB(cfg.Database); err != nil {
		logger.Fatal().Err(err).Msg("init database failed")
	}
	if err := dal.AutoMigrate(dal.DB()); err != nil {
		logger.Fatal().Err(err).Msg("auto migrate failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 实时推送中心
	hub := ws.NewHub(ws.HubOptions{
		SendQueueSize: cfg.Realtime.SendQueueSize,
		PingPeriod:    cfg.Realtime.PingPeriod,
	})

	// 按交易日的列表缓存，回源走 DAO（DAO 在下方初始化，调用时已就绪）
	days := cache.NewDayCache(cfg.Server.DayCacheTTL, func(ctx context.Context, date string) ([]models.TradingAlert, error) {
		return dao.Alert().ListByDate(ctx, date)
	})

	// 热更新：日志等级与列表缓存 TTL
	config.OnReload(func(c *config.Config) {
		logger.SetLevel(c.Logger.Level)
		days.SetTTL(c.Server.DayCacheTTL)
		logger.Info().Str("level", c.Logger.Level).Dur("day_cache_ttl", c.Server.DayCacheTTL).Msg("reloadable settings applied")
	})

	// 本机下游：推送中心 + 列表缓存
	local := changefeed.Sinks{days, hub}

	// 启用 NATS 时经 NATS 扇出，多实例部署下每个实例都能收到完整的变更流
	var (
		publisher changefeed.Publisher = local
		natsPub   *nats.Publisher
		natsRef   monitor.PublisherRef
	)
	if cfg.NATS.Enabled {
		var err error
		natsPub, err = nats.NewPublisher(cfg.NATS.Endpoint, cfg.NATS.Subject)
		if err != nil {
			logger.Fatal().Err(err).Msg("init nats publisher failed")
		}
		if err = natsPub.Subscribe(func(ev changefeed.Event) {
			if err := local.Publish(ev); err != nil {
				logger.Warn().Err(err).Str("event", string(ev.EventType)).Msg("fan out change event failed")
			}
		}); err != nil {
			logger.Fatal().Err(err).Msg("subscribe nats subject failed")
		}
		publisher = natsPub
		natsRef = natsPub
	}

	// 初始化 DAO
	dao.InitDAO(dal.DB(), publisher)

	router := api.NewRouter(api.Options{
		Store:       dao.Alert(),
		Days:        days,
		Realtime:    hub,
		Location:    cfg.Server.Location(),
		RateLimit:   cfg.Server.RateLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	server := api.NewServer(cfg.Server.Addr, router, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	goplus.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api server error")
		}
	})

	// 初始化健康检查服务器
	healthServer := monitor.NewHealthServer(
		cfg.Health.Addr,
		monitor.DatabaseFunc(dal.Ping),
		natsRef,
		hub,
	)
	if err := healthServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	logger.Info().
		Str("addr", server.Addr()).
		Str("health_addr", cfg.Health.Addr).
		Str("trading_timezone", cfg.Server.TradingTimezone).
		Bool("nats", cfg.NATS.Enabled).
		Msg("alert_hub service started successfully")

	// 优雅关闭
	sigproc.GracefulShutdown(func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		// 先停止接收 webhook
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("api server shutdown failed")
		}

		// 断开实时客户端
		hub.Close()

		if natsPub != nil {
			if err := natsPub.Close(); err != nil {
				logger.Warn().Err(err).Msg("close nats failed")
			}
		}

		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("health server shutdown failed")
		}

		// 关闭配置重载
		config.Stop()

		// 关闭数据库
		dal.Close()

		logger.Info().Msg("alert_hub service stopped")
		cancel()
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	// 未配置的等级不建文件，全部为空时只写默认 info 文件
	var files logger.LevelFiles
	if cfg.Logger.ErrorFile != "" {
		files = append(files, logger.LevelFileEntry{Level: logger.ERROR, Path: cfg.Logger.ErrorFile})
	}
	if cfg.Logger.InfoFile != "" {
		files = append(files, logger.LevelFileEntry{Level: logger.INFO, Path: cfg.Logger.InfoFile})
	}

	return logger.NewBuilder().
		SetLevelFiles(files).
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
