// Package metrics は認証フローの Prometheus メトリクスを提供します。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	ResultSuccess     = "success"
	ResultInvalid     = "invalid"
	ResultConflict    = "conflict"
	ResultFailure     = "failure"
	ResultNoSuchUser  = "no_such_user"
	ResultBadPassword = "incorrect_password"
	ResultError       = "error"
)

// Metrics はアプリケーション専用のレジストリとコレクターをまとめたものです。
type Metrics struct {
	Registry *prometheus.Registry

	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	logouts       prometheus.Counter
	hashDuration  prometheus.Histogram
}

// New は Metrics を作成し、プロセス・Go ランタイムのコレクターも登録します。
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of registration attempts by result",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Total number of login attempts by result",
		}, []string{"result"}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Total number of logouts",
		}),
		hashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "password_hash_duration_seconds",
			Help:      "Duration of password hashing and verification",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	registry.MustRegister(
		m.registrations,
		m.logins,
		m.logouts,
		m.hashDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler は /metrics 用の HTTP ハンドラーを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveRegistration は登録結果を記録します。nil レシーバーでは何もしません。
func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// ObserveLogin はログイン結果を記録します。
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// ObserveLogout はログアウトを記録します。
func (m *Metrics) ObserveLogout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}

// ObserveHash はハッシュ計算にかかった時間を記録します。
func (m *Metrics) ObserveHash(d time.Duration) {
	if m == nil {
		return
	}
	m.hashDuration.Observe(d.Seconds())
}
