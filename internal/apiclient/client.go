// Package apiclient はPinkMuse REST APIへの唯一のトランスポートを提供する。
// 全リクエストにベアラートークンとリクエストIDを付与し、
// {data, message, errors} 形式のレスポンスを解釈してmodel.APIErrorへ正規化する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/pinkmuse/internal/metrics"
	"github.com/hitoshi/pinkmuse/internal/model"
)

const (
	// maxResponseSize はレスポンスボディの読み取り上限（8MB）。
	maxResponseSize = 8 << 20
	// userAgent はリクエストに付与するUser-Agent。
	userAgent = "PinkMuse-Sync/1.0"
	// requestIDHeader はリクエスト追跡用のヘッダー名。
	requestIDHeader = "X-Request-ID"
)

// Credentials はリクエストに付与する認証情報の保持者。
// 401応答を受けたときにInvalidateが呼ばれる。
type Credentials interface {
	Token() string
	Invalidate()
}

// Config はClientの設定。
type Config struct {
	BaseURL   string
	RateLimit rate.Limit // 0以下は無制限
	RateBurst int
}

// Client はPinkMuse REST APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	creds      Credentials
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	newID      func() string // テスト用に差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// BaseURLがhttp(s)の絶対URLでない場合はエラーを返す。
func NewClient(httpClient *http.Client, logger *slog.Logger, creds Credentials, cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("APIのベースURLのパースに失敗しました: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("APIのベースURLはhttp(s)の絶対URLである必要があります: %q", cfg.BaseURL)
	}

	limit := cfg.RateLimit
	burst := cfg.RateBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		creds:      creds,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    metrics.Nop{},
		newID:      uuid.NewString,
	}, nil
}

// SetMetrics はメトリクスの記録先を設定する。
func (c *Client) SetMetrics(m metrics.MetricsCollector) {
	if m != nil {
		c.metrics = m
	}
}

// BaseURL は末尾のスラッシュを除いたAPIのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Envelope はAPIレスポンスの共通エンベロープ。
type Envelope struct {
	Data    json.RawMessage
	Message string
	Errors  map[string][]string
	Raw     json.RawMessage // レスポンスボディ全体
}

// HasData はdataフィールドがnull以外の値を持つかを返す。
func (e *Envelope) HasData() bool {
	return e != nil && len(e.Data) > 0 && !bytes.Equal(bytes.TrimSpace(e.Data), []byte("null"))
}

// DataOrRaw はdataフィールドがあればそれを、なければボディ全体を返す。
func (e *Envelope) DataOrRaw() json.RawMessage {
	if e == nil {
		return nil
	}
	if e.HasData() {
		return e.Data
	}
	return e.Raw
}

type wireEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Message json.RawMessage `json:"message"`
	Errors  json.RawMessage `json:"errors"`
}

// Get はGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil)
}

// Post はJSONボディ付きのPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Put はJSONボディ付きのPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string) (*Envelope, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do はAPIへ1回だけリクエストを送信する。自動リトライは行わない。
// pathは先頭スラッシュ付きで、動的セグメントは呼び出し元がエスケープ済みであること。
// 2xx以外の応答と通信失敗は *model.APIError として返す（Messageはサーバー提供値、なければ空）。
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.APIError{Code: model.ErrCodeAPI, Category: "system", Err: err}
	}

	reqURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("リクエストURLのパースに失敗しました: %w", err)
	}
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	requestID := c.newID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(method, 0, time.Since(start))
		c.logger.Error("APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, &model.APIError{Code: model.ErrCodeAPI, Category: "system", Err: err}
	}
	defer resp.Body.Close()
	c.metrics.RecordAPIRequest(method, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &model.APIError{
			Code:     model.ErrCodeAPI,
			Category: "system",
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err),
		}
	}

	env := decodeEnvelope(raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.creds.Invalidate()
		}
		level := slog.LevelWarn
		if resp.StatusCode >= 500 {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, statusError(resp.StatusCode, env)
	}

	c.logger.Debug("API呼び出し完了",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("request_id", requestID),
		slog.Int("http_status", resp.StatusCode),
	)

	return env, nil
}

// decodeEnvelope はレスポンスボディを寛容に解釈する。
// JSONでない、またはエンベロープ形式でないボディでもRawは保持する。
func decodeEnvelope(raw []byte) *Envelope {
	env := &Envelope{Raw: raw}
	if len(bytes.TrimSpace(raw)) == 0 {
		return env
	}

	var wire wireEnvelope
	if err := json.Unmarshal(raw, &wire); err != nil {
		return env
	}
	env.Data = wire.Data

	var msg string
	if err := json.Unmarshal(wire.Message, &msg); err == nil {
		env.Message = strings.TrimSpace(msg)
	}
	env.Errors = decodeDetails(wire.Errors)
	return env
}

// decodeDetails は {"field": ["msg", ...]} または {"field": "msg"} 形式の検証エラーを読み取る。
func decodeDetails(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	details := make(map[string][]string, len(generic))
	for field, value := range generic {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			details[field] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			details[field] = []string{single}
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func statusError(status int, env *Envelope) *model.APIError {
	code := model.ErrCodeAPI
	category := "api"
	switch {
	case status == http.StatusUnauthorized:
		code = model.ErrCodeUnauthenticated
		category = "auth"
	case status == http.StatusNotFound:
		code = model.ErrCodeNotFound
	case status == http.StatusUnprocessableEntity:
		category = "validation"
	}
	return &model.APIError{
		Code:     code,
		Message:  env.Message,
		Category: category,
		Status:   status,
		Details:  env.Errors,
		Err:      fmt.Errorf("APIがステータス %d を返しました", status),
	}
}

// IsStatus はerrがリモートAPIの指定ステータスによるエラーかを判定する。
func IsStatus(err error, status int) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
