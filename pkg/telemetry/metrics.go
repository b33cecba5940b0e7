package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics はパイプラインのPrometheusメトリクス。
// nilレシーバーでも安全に呼び出せる。
type Metrics struct {
	handlerEvents        *prometheus.CounterVec
	notificationsWritten *prometheus.CounterVec
	deliveryAttempts     *prometheus.CounterVec
	subscriptions        *prometheus.CounterVec
	gatherer             prometheus.Gatherer
}

// NewMetrics はメトリクスを生成してregに登録する。
// regにnilを渡すと専用のレジストリを作る。
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		handlerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatehub",
			Name:      "handler_events_total",
			Help:      "Number of change events handled, by handler and outcome.",
		}, []string{"handler", "outcome"}),
		notificationsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatehub",
			Name:      "notifications_written_total",
			Help:      "Number of notification writes, by outcome.",
		}, []string{"outcome"}),
		deliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatehub",
			Name:      "delivery_attempts_total",
			Help:      "Number of delivery channel attempts, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "estatehub",
			Name:      "subscriptions_total",
			Help:      "Number of subscription requests, by outcome.",
		}, []string{"outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.handlerEvents, m.notificationsWritten, m.deliveryAttempts, m.subscriptions)
	return m
}

// HandlerEvent はハンドラーの処理結果を記録する。
func (m *Metrics) HandlerEvent(handler, outcome string) {
	if m == nil {
		return
	}
	m.handlerEvents.WithLabelValues(handler, outcome).Inc()
}

// NotificationWritten は通知書き込みの結果を記録する。
func (m *Metrics) NotificationWritten(outcome string) {
	if m == nil {
		return
	}
	m.notificationsWritten.WithLabelValues(outcome).Inc()
}

// DeliveryAttempt は配信チャネルの試行結果を記録する。
func (m *Metrics) DeliveryAttempt(channel, outcome string) {
	if m == nil {
		return
	}
	m.deliveryAttempts.WithLabelValues(channel, outcome).Inc()
}

// Subscription は購読処理の結果を記録する。
func (m *Metrics) Subscription(outcome string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(outcome).Inc()
}

// Handler は/metrics用のHTTPハンドラーを返す。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
