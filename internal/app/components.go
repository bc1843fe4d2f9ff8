package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/pinkmuse/internal/apiclient"
	"github.com/hitoshi/pinkmuse/internal/comment"
	"github.com/hitoshi/pinkmuse/internal/config"
	"github.com/hitoshi/pinkmuse/internal/event"
	"github.com/hitoshi/pinkmuse/internal/handler"
	"github.com/hitoshi/pinkmuse/internal/media"
	"github.com/hitoshi/pinkmuse/internal/metrics"
	"github.com/hitoshi/pinkmuse/internal/middleware"
	"github.com/hitoshi/pinkmuse/internal/news"
	"github.com/hitoshi/pinkmuse/internal/reaction"
	"github.com/hitoshi/pinkmuse/internal/security"
	"github.com/hitoshi/pinkmuse/internal/session"
	"github.com/hitoshi/pinkmuse/internal/worker/refresh"
)

// Components は1つのセッションに属するキャッシュ群とその依存関係。
type Components struct {
	Session   *session.Session
	Manager   *session.Manager
	Client    *apiclient.Client
	Events    *event.Store
	News      *news.Store
	Reactions *reaction.Aggregator
	Comments  *comment.Store
	Registry  *prometheus.Registry
}

// NewComponents は設定から全キャッシュを構築し、共通のクライアントとメトリクスを配線する。
func NewComponents(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	sess := session.New(cfg.APIToken)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	client, err := apiclient.NewClient(
		&http.Client{Timeout: cfg.APITimeout},
		logger,
		sess,
		apiclient.Config{
			BaseURL:   cfg.APIBaseURL,
			RateLimit: rate.Limit(cfg.APIRateLimit),
			RateBurst: cfg.APIRateBurst,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	client.SetMetrics(collector)

	events := event.NewStore(event.NewHTTPAPI(client), logger)
	events.SetMetrics(collector)

	presenter := news.NewPresenter(media.NewResolver(media.StorageBase(cfg.APIBaseURL)), security.NewContentSanitizer(), time.Local)
	newsStore := news.NewStore(news.NewHTTPAPI(client), presenter, logger)
	newsStore.SetMetrics(collector)

	reactions := reaction.NewAggregator(reaction.NewHTTPAPI(client), sess, logger)
	reactions.SetMetrics(collector)

	comments := comment.NewStore(comment.NewHTTPAPI(client), sess, logger)
	comments.SetMetrics(collector)
	comments.SetReactionPrimer(reactions)

	return &Components{
		Session:   sess,
		Manager:   session.NewManager(sess, client, logger),
		Client:    client,
		Events:    events,
		News:      newsStore,
		Reactions: reactions,
		Comments:  comments,
		Registry:  reg,
	}, nil
}

// RefreshTargets はバックグラウンドで再取得する一覧キャッシュを返す。
func (c *Components) RefreshTargets() []refresh.Target {
	return []refresh.Target{
		{Name: "events", Fetch: c.Events.Fetch},
		{Name: "news", Fetch: c.News.Fetch},
	}
}

// NewHandler はゲートウェイのルーターを構築する。
// 返されたRateLimiterは終了時にStopすること。
func NewHandler(cfg *config.Config, c *Components, logger *slog.Logger) (http.Handler, *middleware.RateLimiter) {
	limiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.GatewayRateLimit > 0 {
		limiterCfg.GeneralRate = middleware.PerMinute(cfg.GatewayRateLimit)
		limiterCfg.GeneralBurst = cfg.GatewayRateLimit
	}
	limiter := middleware.NewRateLimiter(limiterCfg, logger)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            logger,
		Users:             c.Session,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Metrics:           metrics.Handler(c.Registry),
		Sessions:          c.Manager,
		Events:            c.Events,
		News:              c.News,
		Presenter:         c.News.Presenter(),
		Reactions:         c.Reactions,
		Comments:          c.Comments,
	})
	return router, limiter
}
