// Package metrics содержит Prometheus-коллекторы сервисов.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP метрики
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "entitlements_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)

	// Метрики планировщика
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "entitlements_scan_duration_seconds",
			Help:    "Duration of one reconciliation pass",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
	ScanRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_scan_rows_total",
			Help: "Subscription rows processed by the reconciliation loop",
		},
		[]string{"state", "result"},
	)
	Revocations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_revocations_total",
			Help: "Number of committed key revocations",
		},
	)

	// Метрики начислений
	CreditedDays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_credited_days_total",
			Help: "Days credited to subscriptions",
		},
		[]string{"source"},
	)

	// Метрики уведомлений
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_notifications_total",
			Help: "Notification delivery attempts",
		},
		[]string{"kind", "result"},
	)
)

var once sync.Once

// InitMetrics регистрирует коллекторы в реестре по умолчанию. Повторные вызовы ничего не делают.
func InitMetrics() {
	once.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(ScanDuration)
		prometheus.MustRegister(ScanRows)
		prometheus.MustRegister(Revocations)
		prometheus.MustRegister(CreditedDays)
		prometheus.MustRegister(NotificationsTotal)
	})
}

// Result переводит признак успеха в значение метки.
func Result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
