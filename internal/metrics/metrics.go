// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ワーカー、リアルタイムリスナーから利用する。
type MetricsCollector interface {
	RecordRoleplayStart(result string)
	RecordRoleplayCompleted()
	RecordProviderLatency(operation string, duration time.Duration)
	RecordProviderFailure(operation string)
	RecordInvitationSent()
	RecordInvitationsExpired(count int64)
	RecordSweepAbandoned(count int64)
	RecordRealtimeEvent(channel string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	roleplayStart     *prometheus.CounterVec
	roleplayCompleted prometheus.Counter
	providerLatency   *prometheus.HistogramVec
	providerFailure   *prometheus.CounterVec
	invitationsSent   prometheus.Counter
	invitationsExpire prometheus.Counter
	sweepAbandoned    prometheus.Counter
	realtimeEvents    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		roleplayStart: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicedojo_roleplay_start_total",
			Help: "ロールプレイセッション開始の結果別合計数",
		}, []string{"result"}),
		roleplayCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicedojo_roleplay_completed_total",
			Help: "完了したロールプレイセッションの合計数",
		}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicedojo_provider_latency_seconds",
			Help:    "音声プロバイダAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		providerFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicedojo_provider_failure_total",
			Help: "音声プロバイダAPI呼び出し失敗の操作別合計数",
		}, []string{"operation"}),
		invitationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicedojo_invitations_sent_total",
			Help: "送信した招待メールの合計数",
		}),
		invitationsExpire: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicedojo_invitations_expired_total",
			Help: "期限切れにした招待の合計数",
		}),
		sweepAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voicedojo_sweep_abandoned_total",
			Help: "スイープで放棄扱いにしたセッションの合計数",
		}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voicedojo_realtime_events_total",
			Help: "配信したリアルタイムイベントのチャネル別合計数",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		c.roleplayStart,
		c.roleplayCompleted,
		c.providerLatency,
		c.providerFailure,
		c.invitationsSent,
		c.invitationsExpire,
		c.sweepAbandoned,
		c.realtimeEvents,
	)

	return c
}

// RecordRoleplayStart はセッション開始の結果を記録する。
func (c *Collector) RecordRoleplayStart(result string) {
	c.roleplayStart.WithLabelValues(result).Inc()
}

// RecordRoleplayCompleted はセッション完了を記録する。
func (c *Collector) RecordRoleplayCompleted() {
	c.roleplayCompleted.Inc()
}

// RecordProviderLatency はプロバイダAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(operation string, duration time.Duration) {
	c.providerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordProviderFailure はプロバイダAPI呼び出しの失敗を記録する。
func (c *Collector) RecordProviderFailure(operation string) {
	c.providerFailure.WithLabelValues(operation).Inc()
}

// RecordInvitationSent は招待メールの送信を記録する。
func (c *Collector) RecordInvitationSent() {
	c.invitationsSent.Inc()
}

// RecordInvitationsExpired は期限切れにした招待数を記録する。
func (c *Collector) RecordInvitationsExpired(count int64) {
	c.invitationsExpire.Add(float64(count))
}

// RecordSweepAbandoned は放棄扱いにしたセッション数を記録する。
func (c *Collector) RecordSweepAbandoned(count int64) {
	c.sweepAbandoned.Add(float64(count))
}

// RecordRealtimeEvent はリアルタイムイベントの配信を記録する。
func (c *Collector) RecordRealtimeEvent(channel string) {
	c.realtimeEvents.WithLabelValues(channel).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
