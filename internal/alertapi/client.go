package alertapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/utrading/utrading-alert-hub/internal/models"
	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

const (
	alertsPath  = "/api/alerts"
	webhookPath = "/functions/v1/trading-webhook"
	maxBody     = 4 << 20
)

var ErrNotFound = errors.New("alert not found")

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("alert hub: http %d", e.Code)
	}
	return fmt.Sprintf("alert hub: http %d: %s", e.Code, e.Message)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client 告警中心 REST 客户端，实现 alertsync.Store
type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger
}

// New base 形如 http://127.0.0.1:8080
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
		log:  logger.Component("alertapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAlerts 拉取某交易日全部告警，单行格式错误时跳过
func (c *Client) FetchAlerts(ctx context.Context, date string) ([]models.TradingAlert, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	target := c.base + alertsPath
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	alerts := models.DecodeAlerts(gjson.GetBytes(body, "alerts"), func(err error) {
		c.log.Warn().Err(err).Str("date", date).Msg("skip malformed alert row")
	})
	return alerts, nil
}

// TradingDate 服务端交易时区下的今天，与 webhook 写入的 date 一致
func (c *Client) TradingDate(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, c.base+alertsPath, nil)
	if err != nil {
		return "", err
	}
	date := gjson.GetBytes(body, "date").String()
	if _, err = time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("invalid trading date %q", date)
	}
	return date, nil
}

// UpdateStatus 修改告警状态，返回服务端最新的行
func (c *Client) UpdateStatus(ctx context.Context, id string, status models.AlertStatus) (*models.TradingAlert, error) {
	payload, err := json.Marshal(map[string]string{"status": string(status)})
	if err != nil {
		return nil, err
	}

	target := c.base + alertsPath + "/" + url.PathEscape(id) + "/status"
	body, err := c.do(ctx, http.MethodPatch, target, payload)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	row, err := models.DecodeAlertResult(gjson.GetBytes(body, "alert"))
	if err != nil {
		return nil, fmt.Errorf("decode updated alert: %w", err)
	}
	return row, nil
}

// SendWebhook 投递一条原始 webhook 负载
func (c *Client) SendWebhook(ctx context.Context, payload []byte) (*models.TradingAlert, error) {
	body, err := c.do(ctx, http.MethodPost, c.base+webhookPath, payload)
	if err != nil {
		return nil, err
	}
	row, err := models.DecodeAlertResult(gjson.GetBytes(body, "alert"))
	if err != nil {
		return nil, fmt.Errorf("decode created alert: %w", err)
	}
	return row, nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Code:    resp.StatusCode,
			Message: gjson.GetBytes(body, "error").String(),
		}
	}
	return body, nil
}
