// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン試行の結果ラベル。
const (
	LoginSuccess     = "success"
	LoginFailure     = "failure"
	LoginRateLimited = "rate_limited"
)

// 記事変更操作のラベル。
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアとハンドラーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	RecordLoginAttempt(result string)
	RecordPostMutation(op string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	loginAttempts *prometheus.CounterVec
	postMutations *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blog_http_requests_total",
			Help: "メソッド・ルート・ステータス別のHTTPリクエスト数",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blog_http_request_duration_seconds",
			Help:    "ルート別のHTTPリクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blog_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		postMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blog_posts_mutations_total",
			Help: "操作別の記事変更数",
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.loginAttempts,
		c.postMutations,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはURLそのものではなくルートパターンを渡し、ラベルの爆発を防ぐ。
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordLoginAttempt はログイン試行を結果別に記録する。
func (c *Collector) RecordLoginAttempt(result string) {
	c.loginAttempts.WithLabelValues(result).Inc()
}

// RecordPostMutation は記事の作成・更新・削除を記録する。
func (c *Collector) RecordPostMutation(op string) {
	c.postMutations.WithLabelValues(op).Inc()
}

// SetupMetricsRoute はPrometheusメトリクスを公開するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
