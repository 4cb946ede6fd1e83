// Package metrics はPrometheusメトリクスの収集を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はアプリケーションメトリクスの収集インターフェース。
// テストではNopCollectorを使用する。
type Collector interface {
	// EventIngested は通知イベントの取り込みを記録する。
	EventIngested(eventType string)
	// EventClaimed はイベントのクレーム成功を記録する。
	EventClaimed()
	// PollExpired はイベントなしで期限切れになったポーリングを記録する。
	PollExpired()
	// ObservePollDuration はポーリングの所要時間を記録する。
	ObservePollDuration(seconds float64)
	// SubscribeOutcome は購読作成の結果を記録する。outcomeは created / already_exists / failed。
	SubscribeOutcome(outcome string)
	// ObserveReconcilePass は再同期パスの所要時間と対象ユーザー数を記録する。
	ObserveReconcilePass(seconds float64, users int)
}

// PrometheusCollector はPrometheusレジストリに登録するCollector実装。
type PrometheusCollector struct {
	registry         *prometheus.Registry
	eventsIngested   *prometheus.CounterVec
	eventsClaimed    prometheus.Counter
	pollsExpired     prometheus.Counter
	pollDuration     prometheus.Histogram
	subscribeResults *prometheus.CounterVec
	reconcilePass    prometheus.Histogram
	reconcileUsers   prometheus.Gauge
}

// NewPrometheusCollector はPrometheusCollectorを生成し、メトリクスを登録する。
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		registry: registry,
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsub_events_ingested_total",
			Help: "Total number of EventSub notifications ingested, by event type.",
		}, []string{"event_type"}),
		eventsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventsub_events_claimed_total",
			Help: "Total number of events claimed and delivered to pollers.",
		}),
		pollsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventsub_polls_expired_total",
			Help: "Total number of long polls that expired without an event.",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventsub_poll_duration_seconds",
			Help:    "Duration of long poll requests.",
			Buckets: []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120, 180},
		}),
		subscribeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsub_subscribe_results_total",
			Help: "Total number of subscription attempts, by outcome.",
		}, []string{"outcome"}),
		reconcilePass: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventsub_reconcile_pass_duration_seconds",
			Help:    "Duration of reconciliation passes.",
			Buckets: prometheus.DefBuckets,
		}),
		reconcileUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventsub_reconcile_users",
			Help: "Number of users processed in the last reconciliation pass.",
		}),
	}

	registry.MustRegister(
		c.eventsIngested,
		c.eventsClaimed,
		c.pollsExpired,
		c.pollDuration,
		c.subscribeResults,
		c.reconcilePass,
		c.reconcileUsers,
	)

	return c
}

// EventIngested は通知イベントの取り込みを記録する。
func (c *PrometheusCollector) EventIngested(eventType string) {
	c.eventsIngested.WithLabelValues(eventType).Inc()
}

// EventClaimed はイベントのクレーム成功を記録する。
func (c *PrometheusCollector) EventClaimed() {
	c.eventsClaimed.Inc()
}

// PollExpired は期限切れポーリングを記録する。
func (c *PrometheusCollector) PollExpired() {
	c.pollsExpired.Inc()
}

// ObservePollDuration はポーリング所要時間を記録する。
func (c *PrometheusCollector) ObservePollDuration(seconds float64) {
	c.pollDuration.Observe(seconds)
}

// SubscribeOutcome は購読作成の結果を記録する。
func (c *PrometheusCollector) SubscribeOutcome(outcome string) {
	c.subscribeResults.WithLabelValues(outcome).Inc()
}

// ObserveReconcilePass は再同期パスの所要時間と対象ユーザー数を記録する。
func (c *PrometheusCollector) ObserveReconcilePass(seconds float64, users int) {
	c.reconcilePass.Observe(seconds)
	c.reconcileUsers.Set(float64(users))
}

// Handler は/metricsエンドポイント用のHTTPハンドラーを返す。
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないCollector。テストで使用する。
type NopCollector struct{}

func (NopCollector) EventIngested(eventType string)                  {}
func (NopCollector) EventClaimed()                                   {}
func (NopCollector) PollExpired()                                    {}
func (NopCollector) ObservePollDuration(seconds float64)             {}
func (NopCollector) SubscribeOutcome(outcome string)                 {}
func (NopCollector) ObserveReconcilePass(seconds float64, users int) {}

var (
	_ Collector = (*PrometheusCollector)(nil)
	_ Collector = NopCollector{}
)
