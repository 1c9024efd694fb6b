// Package metrics はPrometheus形式のアプリケーションメトリクスを提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はアプリケーション全体のメトリクスを保持する。
type Collector struct {
	registry *prometheus.Registry

	eventsPublished   *prometheus.CounterVec
	eventsConsumed    *prometheus.CounterVec
	eventsFailed      *prometheus.CounterVec
	consumeLatency    *prometheus.HistogramVec
	tokensIssued      prometheus.Counter
	tokenValidateFail prometheus.Counter
	httpRequests      *prometheus.CounterVec
}

// NewCollector はCollectorを生成し、全メトリクスを登録する。
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "konecta_events_published_total",
			Help: "発行したイベントの総数",
		}, []string{"routing_key"}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "konecta_events_consumed_total",
			Help: "正常に処理したイベントの総数",
		}, []string{"routing_key"}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "konecta_events_failed_total",
			Help: "処理に失敗しデッドレターへ送ったイベントの総数",
		}, []string{"routing_key"}),
		consumeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "konecta_event_consume_duration_seconds",
			Help:    "イベント処理の所要時間",
			Buckets: prometheus.DefBuckets,
		}, []string{"routing_key"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "konecta_tokens_issued_total",
			Help: "発行したアクセストークンの総数",
		}),
		tokenValidateFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "konecta_token_validation_failures_total",
			Help: "検証に失敗したトークンの総数",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "konecta_http_requests_total",
			Help: "HTTPリクエストの総数",
		}, []string{"method", "path", "status"}),
	}

	registry.MustRegister(
		c.eventsPublished,
		c.eventsConsumed,
		c.eventsFailed,
		c.consumeLatency,
		c.tokensIssued,
		c.tokenValidateFail,
		c.httpRequests,
	)
	return c
}

// EventPublished は発行イベントを記録する。
func (c *Collector) EventPublished(routingKey string) {
	c.eventsPublished.WithLabelValues(routingKey).Inc()
}

// EventConsumed は処理成功イベントと所要時間を記録する。
func (c *Collector) EventConsumed(routingKey string, elapsed time.Duration) {
	c.eventsConsumed.WithLabelValues(routingKey).Inc()
	c.consumeLatency.WithLabelValues(routingKey).Observe(elapsed.Seconds())
}

// EventFailed は処理失敗イベントを記録する。
func (c *Collector) EventFailed(routingKey string) {
	c.eventsFailed.WithLabelValues(routingKey).Inc()
}

// TokenIssued はトークン発行を記録する。
func (c *Collector) TokenIssued() {
	c.tokensIssued.Inc()
}

// TokenValidationFailed はトークン検証失敗を記録する。
func (c *Collector) TokenValidationFailed() {
	c.tokenValidateFail.Inc()
}

// HTTPRequest はHTTPリクエストの結果を記録する。
func (c *Collector) HTTPRequest(method, path, status string) {
	c.httpRequests.WithLabelValues(method, path, status).Inc()
}

// Handler は /metrics 用のHTTPハンドラを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
