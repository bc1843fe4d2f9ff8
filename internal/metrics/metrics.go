// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// リアクショントグルの結果ラベル
const (
	ToggleCommitted  = "committed"
	ToggleRolledBack = "rolled_back"
)

// MetricsCollector はメトリクス収集のインターフェース。
// apiclientと各キャッシュから利用する。
type MetricsCollector interface {
	RecordAPIRequest(method string, statusCode int, duration time.Duration)
	RecordCacheFetch(cache string, ok bool)
	RecordStaleFetchDiscarded(cache string)
	RecordReactionToggle(outcome string)
	RecordCommentMutation(op string, ok bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests    *prometheus.CounterVec
	apiLatency     prometheus.Histogram
	cacheFetches   *prometheus.CounterVec
	staleFetches   *prometheus.CounterVec
	toggles        *prometheus.CounterVec
	commentChanges *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinkmuse_api_requests_total",
			Help: "リモートAPI呼び出しのメソッド・ステータス別の合計数（ステータス0は通信失敗）",
		}, []string{"method", "status_code"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pinkmuse_api_latency_seconds",
			Help:    "リモートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cacheFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinkmuse_cache_fetch_total",
			Help: "キャッシュ別の一覧取得の結果",
		}, []string{"cache", "result"}),
		staleFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinkmuse_cache_stale_fetch_discarded_total",
			Help: "より新しい取得結果が適用済みのため破棄されたレスポンス数",
		}, []string{"cache"}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinkmuse_reaction_toggle_total",
			Help: "楽観的リアクショントグルの確定・ロールバック数",
		}, []string{"outcome"}),
		commentChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pinkmuse_comment_mutation_total",
			Help: "コメントの作成・削除の結果",
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.cacheFetches,
		c.staleFetches,
		c.toggles,
		c.commentChanges,
	)

	return c
}

// RecordAPIRequest はリモートAPI呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordAPIRequest(method string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.Observe(duration.Seconds())
}

// RecordCacheFetch はキャッシュの一覧取得結果を記録する。
func (c *Collector) RecordCacheFetch(cache string, ok bool) {
	c.cacheFetches.WithLabelValues(cache, resultLabel(ok)).Inc()
}

// RecordStaleFetchDiscarded は古い取得結果の破棄を記録する。
func (c *Collector) RecordStaleFetchDiscarded(cache string) {
	c.staleFetches.WithLabelValues(cache).Inc()
}

// RecordReactionToggle はリアクショントグルの結果を記録する。
func (c *Collector) RecordReactionToggle(outcome string) {
	c.toggles.WithLabelValues(outcome).Inc()
}

// RecordCommentMutation はコメントの作成・削除の結果を記録する。
func (c *Collector) RecordCommentMutation(op string, ok bool) {
	c.commentChanges.WithLabelValues(op, resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAPIRequest(string, int, time.Duration) {}
func (Nop) RecordCacheFetch(string, bool)               {}
func (Nop) RecordStaleFetchDiscarded(string)            {}
func (Nop) RecordReactionToggle(string)                 {}
func (Nop) RecordCommentMutation(string, bool)          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
