package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pinkmuse/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Users             middleware.UserSource
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig

	// Metrics はPrometheusのエンドポイント。nilの場合は/metricsを公開しない。
	Metrics http.Handler

	Sessions  SessionManager
	Events    EventStore
	News      NewsStore
	Presenter ArticlePresenter
	Reactions ReactionAggregator
	Comments  CommentStore
}

// NewRouter はゲートウェイの全エンドポイントとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Identity → Logging → RateLimit(General) → CSRF
//
// 書き込み操作には RateLimit(Mutation) を追加する。
// /health と /metrics はレート制限とCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewIdentityMiddleware(deps.Users))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	r.Get("/health", Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	sessionHandler := NewSessionHandler(deps.Sessions)
	eventHandler := NewEventHandler(deps.Events)
	newsHandler := NewNewsHandler(deps.News, deps.Presenter, clearerOf(deps.Comments))
	reactionHandler := NewReactionHandler(deps.Reactions)
	commentHandler := NewCommentHandler(deps.Comments)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF, deps.Logger))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF, deps.Logger))

		mutation := deps.RateLimiter.MutationMiddleware()

		r.Route("/api/sesion", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/refresh", sessionHandler.Refresh)
			r.Post("/logout", sessionHandler.Logout)
		})

		r.Route("/api/eventos", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.With(mutation).Post("/", eventHandler.Create)

			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", eventHandler.Get)
				r.With(mutation).Put("/", eventHandler.Update)
				r.With(mutation).Delete("/", eventHandler.Delete)
			})
		})

		r.Route("/api/noticias", func(r chi.Router) {
			r.Get("/", newsHandler.List)
			r.With(mutation).Post("/", newsHandler.Create)

			// {key} は記事の取得・更新・削除ではタイトル、コメントでは記事ID
			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", newsHandler.Get)
				r.With(mutation).Put("/", newsHandler.Update)
				r.With(mutation).Delete("/", newsHandler.Delete)

				r.Get("/comentarios", commentHandler.List)
				r.With(mutation).Post("/comentarios", commentHandler.Create)
				r.With(mutation).Delete("/comentarios/{commentID}", commentHandler.Delete)
			})
		})

		r.Route("/api/reacciones/{type}/{id}", func(r chi.Router) {
			r.Get("/", reactionHandler.Get)
			r.With(mutation).Post("/", reactionHandler.Toggle)
		})
	})

	return r
}

// clearerOf はコメントストアがスレッドの破棄に対応していればそれを返す。
func clearerOf(store CommentStore) CommentClearer {
	if c, ok := store.(CommentClearer); ok {
		return c
	}
	return nil
}
