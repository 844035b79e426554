// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ガード、ハンドラー、カタログ、クライアントレジストリから利用する。
type MetricsCollector interface {
	RecordGuardDecision(outcome, reason string)
	RecordSignIn(method string, success bool)
	RecordCatalogFetch(success bool, duration time.Duration)
	RecordCartMutation(op string)
	AddCartItems(delta int)
	SetActiveClients(n int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	guardDecisions *prometheus.CounterVec
	signIns        *prometheus.CounterVec
	catalogFetch   *prometheus.CounterVec
	catalogLatency prometheus.Histogram
	cartMutations  *prometheus.CounterVec
	cartItems      prometheus.Gauge
	activeClients  prometheus.Gauge
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_guard_decisions_total",
			Help: "ナビゲーションガードの判定数",
		}, []string{"outcome", "reason"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_sign_in_total",
			Help: "サインイン試行数",
		}, []string{"method", "result"}),
		catalogFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_catalog_fetch_total",
			Help: "商品カタログ取得数",
		}, []string{"result"}),
		catalogLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_catalog_fetch_latency_seconds",
			Help:    "商品カタログ取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "カート操作数",
		}, []string{"op"}),
		cartItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_cart_items",
			Help: "全クライアントのカート内商品数の合計",
		}),
		activeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_active_clients",
			Help: "保持しているクライアントインスタンス数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.guardDecisions,
		c.signIns,
		c.catalogFetch,
		c.catalogLatency,
		c.cartMutations,
		c.cartItems,
		c.activeClients,
		c.httpStatus,
	)

	return c
}

// RecordGuardDecision はガードの判定結果を記録する。
func (c *Collector) RecordGuardDecision(outcome, reason string) {
	c.guardDecisions.WithLabelValues(outcome, reason).Inc()
}

// RecordSignIn はサインイン試行を記録する。
func (c *Collector) RecordSignIn(method string, success bool) {
	c.signIns.WithLabelValues(method, result(success)).Inc()
}

// RecordCatalogFetch はカタログ取得の結果とレイテンシを記録する。
func (c *Collector) RecordCatalogFetch(success bool, duration time.Duration) {
	c.catalogFetch.WithLabelValues(result(success)).Inc()
	c.catalogLatency.Observe(duration.Seconds())
}

// RecordCartMutation はカート操作を記録する。
func (c *Collector) RecordCartMutation(op string) {
	c.cartMutations.WithLabelValues(op).Inc()
}

// AddCartItems はカート内商品数の合計を増減する。
func (c *Collector) AddCartItems(delta int) {
	c.cartItems.Add(float64(delta))
}

// SetActiveClients はクライアントインスタンス数を設定する。
func (c *Collector) SetActiveClients(n int) {
	c.activeClients.Set(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても残りのメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordGuardDecision(string, string)     {}
func (Nop) RecordSignIn(string, bool)              {}
func (Nop) RecordCatalogFetch(bool, time.Duration) {}
func (Nop) RecordCartMutation(string)              {}
func (Nop) AddCartItems(int)                       {}
func (Nop) SetActiveClients(int)                   {}
func (Nop) RecordHTTPStatus(int)                   {}
