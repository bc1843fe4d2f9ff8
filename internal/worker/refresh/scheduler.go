// Package refresh はゲートウェイが保持する一覧キャッシュのバックグラウンド再取得を提供する。
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Target は再取得の対象となるキャッシュ。
type Target struct {
	Name  string
	Fetch func(ctx context.Context) error
}

// Scheduler は一覧キャッシュの定期的な再取得と並列制御を行う。
// 古い応答の破棄はキャッシュ側が行うため、UIからの取得と重なってもよい。
type Scheduler struct {
	targets        []Target
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値2を使用する。
func NewScheduler(targets []Target, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	return &Scheduler{
		targets:        targets,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は起動直後に1回再取得し、以降はintervalごとに再取得する。
// intervalが0以下の場合は起動直後の1回のみ実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.RunOnce(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("再取得スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("target_count", len(s.targets)),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再取得スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は全対象を1回ずつ再取得する。
// semaphoreパターンで最大並列数を制御し、失敗はログに記録して他の対象を続行する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	if len(s.targets) == 0 {
		return
	}
	start := time.Now()

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, target := range s.targets {
		wg.Add(1)
		sem <- struct{}{}

		go func(t Target) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := t.Fetch(ctx); err != nil {
				s.logger.Warn("キャッシュの再取得に失敗しました",
					slog.String("target", t.Name),
					slog.String("error", err.Error()),
				)
			}
		}(target)
	}

	wg.Wait()

	s.logger.Debug("再取得サイクルが完了しました",
		slog.Int("target_count", len(s.targets)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
