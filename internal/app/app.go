package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hitoshi/pinkmuse/internal/config"
	"github.com/hitoshi/pinkmuse/internal/logger"
	"github.com/hitoshi/pinkmuse/internal/worker/refresh"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel)), nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。outには単発コマンドの結果、logwにはログを出力する。
func Run(out, logw io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8090"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(logw)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandEvents:
		return runEvents(ctx, cfg, log, out)
	case CommandNews:
		return runNews(ctx, cfg, log, out)
	default:
		return runServe(ctx, cfg, log)
	}
}

// runServe はローカル同期ゲートウェイとして起動する。
// トークンがあれば起動時にプロフィールを取得し、一覧キャッシュの再取得とHTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	comps, err := NewComponents(cfg, log)
	if err != nil {
		return err
	}

	if comps.Session.Token() != "" {
		if ident, ok, err := comps.Manager.Refresh(ctx); err != nil {
			log.Warn("起動時のプロフィール取得に失敗しました", slog.String("error", err.Error()))
		} else if ok {
			log.Info("signed in", slog.String("user_id", ident.ID))
		}
	}

	router, limiter := NewHandler(cfg, comps, log)
	defer limiter.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	scheduler := refresh.NewScheduler(comps.RefreshTargets(), log, 0)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Start(refreshCtx, cfg.RefreshInterval)
	}()

	server := &http.Server{
		Addr:         net.JoinHostPort("127.0.0.1", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.APITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-errCh

	log.Info("gateway stopped gracefully")
	return nil
}

// runEvents はイベントを取得し、今後／過去に分割した一覧をJSONで出力する。
func runEvents(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer) error {
	comps, err := NewComponents(cfg, log)
	if err != nil {
		return err
	}
	if err := comps.Events.Fetch(ctx); err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}
	return writeResult(out, comps.Events.View())
}

// runNews はニュースを取得し、日付の降順に並べた一覧をJSONで出力する。
func runNews(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer) error {
	comps, err := NewComponents(cfg, log)
	if err != nil {
		return err
	}
	if err := comps.News.Fetch(ctx); err != nil {
		return fmt.Errorf("failed to fetch news: %w", err)
	}
	return writeResult(out, comps.News.View())
}

func writeResult(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
