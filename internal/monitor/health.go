package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utrading/utrading-alert-hub/pkg/goplus"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

// DatabaseRef 数据库探活
type DatabaseRef interface {
	Ping(ctx context.Context) error
}

// PublisherRef NATS发布器引用接口
type PublisherRef interface {
	IsConnected() bool
}

// HubRef 实时推送中心引用接口
type HubRef interface {
	ClientCount() int
}

// DatabaseFunc 函数适配 DatabaseRef
type DatabaseFunc func(ctx context.Context) error

func (f DatabaseFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthServer HTTP 健康检查和指标服务器
type HealthServer struct {
	addr         string
	database     DatabaseRef
	publisher    PublisherRef
	hub          HubRef
	server       *http.Server
	mu           sync.RWMutex
	healthy      bool
	healthySince time.Time
	startTime    time.Time
	pingTimeout  time.Duration
}

// NewHealthServer 创建健康检查服务器，publisher 为空表示未启用 NATS
func NewHealthServer(addr string, database DatabaseRef, publisher PublisherRef, hub HubRef) *HealthServer {
	return &HealthServer{
		addr:         addr,
		database:     database,
		publisher:    publisher,
		hub:          hub,
		healthy:      true,
		healthySince: time.Now(),
		startTime:    time.Now(),
		pingTimeout:  2 * time.Second,
	}
}

// Handler 返回路由，测试直接挂到 httptest
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", h.statusHandler)

	return mux
}

// Start 启动HTTP服务器
func (h *HealthServer) Start() error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	goplus.Go(func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("health server error")
		}
	})

	logger.Info().Str("addr", h.addr).Msg("health server started")
	return nil
}

// Stop 停止服务器
func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (h *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !h.isReady(r.Context()) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthServer) liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := h.getHealthStatus(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// isReady 数据库可用即就绪，NATS 启用时还需已连接
func (h *HealthServer) isReady(ctx context.Context) bool {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	if !healthy {
		return false
	}
	if h.pingDatabase(ctx) != nil {
		return false
	}
	if h.publisher != nil && !h.publisher.IsConnected() {
		return false
	}
	return true
}

func (h *HealthServer) pingDatabase(ctx context.Context) error {
	if h.database == nil {
		return errors.New("database not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
	defer cancel()
	return h.database.Ping(ctx)
}

func (h *HealthServer) getHealthStatus(ctx context.Context) HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	healthySince := h.healthySince
	h.mu.RUnlock()

	dbStatus := DatabaseStatus{Connected: true}
	if err := h.pingDatabase(ctx); err != nil {
		dbStatus = DatabaseStatus{Connected: false, Error: err.Error()}
		healthy = false
	}

	natsStatus := NATSStatus{}
	if h.publisher != nil {
		natsStatus.Enabled = true
		natsStatus.Connected = h.publisher.IsConnected()
	}

	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}

	return HealthStatus{
		Healthy:      healthy,
		HealthySince: healthySince.Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).String(),
		Database:     dbStatus,
		NATS:         natsStatus,
		Realtime: RealtimeStatus{
			Clients: clients,
		},
		Goroutines: goplus.Running(),
	}
}

// HealthStatus 健康状态结构
type HealthStatus struct {
	Healthy      bool           `json:"healthy"`
	HealthySince string         `json:"healthy_since"`
	Uptime       string         `json:"uptime"`
	Database     DatabaseStatus `json:"database"`
	NATS         NATSStatus     `json:"nats"`
	Realtime     RealtimeStatus `json:"realtime"`
	Goroutines   int64          `json:"goroutines"`
}

// DatabaseStatus 数据库连接状态
type DatabaseStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// NATSStatus NATS连接状态
type NATSStatus struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// RealtimeStatus 实时订阅状态
type RealtimeStatus struct {
	Clients int `json:"clients"`
}
