// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// oauth.MetricsRecorder、facto.MetricsRecorder、cleanup.MetricsRecorderを満たす。
type Collector struct {
	authorize          *prometheus.CounterVec
	callback           *prometheus.CounterVec
	validationReject   *prometheus.CounterVec
	tokensCleaned      prometheus.Counter
	connectionsCleared prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authorize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fkt_oauth_authorize_total",
			Help: "サービス別の認可URL発行数",
		}, []string{"service"}),
		callback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fkt_oauth_callback_total",
			Help: "終端状態別のOAuthコールバック数",
		}, []string{"outcome"}),
		validationReject: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fkt_facto_validation_rejected_total",
			Help: "禁止語別の事実記述拒否数",
		}, []string{"term"}),
		tokensCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fkt_oauth_tokens_cleaned_total",
			Help: "クリーンアップで削除された使用不能トークンの合計数",
		}),
		connectionsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fkt_service_connections_cleared_total",
			Help: "クリーンアップで未接続に戻した接続状態の合計数",
		}),
	}

	reg.MustRegister(
		c.authorize,
		c.callback,
		c.validationReject,
		c.tokensCleaned,
		c.connectionsCleared,
	)

	return c
}

// RecordAuthorize は認可URLの発行を記録する。
func (c *Collector) RecordAuthorize(service string) {
	c.authorize.WithLabelValues(service).Inc()
}

// RecordCallbackOutcome はコールバックの終端状態を記録する。
// outcomeは有限集合のラベル（success、missing_params、provider_error等）であること。
func (c *Collector) RecordCallbackOutcome(outcome string) {
	c.callback.WithLabelValues(outcome).Inc()
}

// RecordValidationRejected は事実記述の拒否を禁止語別に記録する。
func (c *Collector) RecordValidationRejected(term string) {
	c.validationReject.WithLabelValues(term).Inc()
}

// RecordCleanup はクリーンアップで削除したトークン数と解除した接続数を記録する。
func (c *Collector) RecordCleanup(tokens, connections int64) {
	c.tokensCleaned.Add(float64(tokens))
	c.connectionsCleared.Add(float64(connections))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
