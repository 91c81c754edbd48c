package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/utrading/utrading-alert-hub/internal/cache"
	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/internal/webhook"
)

const (
	WebhookPath  = "/functions/v1/trading-webhook"
	RealtimePath = "/realtime/v1/websocket"
)

// AlertStore 对外接口依赖的存储能力
type AlertStore interface {
	webhook.AlertCreator
	UpdateStatus(ctx context.Context, id string, status models.AlertStatus) (*models.TradingAlert, error)
}

// Options 路由依赖
type Options struct {
	Store    AlertStore
	Days     *cache.DayCache
	Realtime http.Handler
	Location *time.Location
	// 每个 IP 每分钟允许的 webhook 次数，<=0 不限流
	RateLimit   int
	CORSOrigins []string
}

// NewRouter 组装全部 HTTP 路由
func NewRouter(opts Options) http.Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &alertHandler{
		store: opts.Store,
		days:  opts.Days,
		loc:   opts.Location,
		now:   time.Now,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// webhook 自带固定的 CORS 头，不走全局 CORS 中间件
	hook := webhook.NewHandler(opts.Store, opts.Location)
	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
		}
		r.Handle(WebhookPath, hook)
		r.Handle("/webhook", hook)
	})

	r.Route("/api/alerts", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPatch, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "apikey", "x-client-info"},
			MaxAge:         300,
		}))
		r.Get("/", h.list)
		r.Patch("/{id}/status", h.updateStatus)
	})

	if opts.Realtime != nil {
		r.Handle(RealtimePath, opts.Realtime)
	}

	return r
}

// Server 对外 HTTP 服务
type Server struct {
	server *http.Server
}

func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

// ListenAndServe 阻塞直到服务关闭
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *Server) Addr() string {
	return s.server.Addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
