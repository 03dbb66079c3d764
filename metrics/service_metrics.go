package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// KaspiAPIRequests 記錄 Kaspi API 呼叫次數，label: operation / result
	KaspiAPIRequests *prometheus.CounterVec

	// OrderNotifications 記錄送出的訂單通知數
	OrderNotifications prometheus.Counter

	// PollCycles 記錄輪詢週期次數，label: result (success / error / panic)
	PollCycles *prometheus.CounterVec

	// HandoffSessionsActive 記錄進行中的交貨安全碼 session 數
	HandoffSessionsActive prometheus.Gauge
)

// Init 註冊所有 metrics，需在服務啟動時呼叫一次
func Init(registry *prometheus.Registry) {
	KaspiAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kaspi_api_requests_total",
			Help: "Total number of Kaspi seller API requests",
		},
		[]string{"operation", "result"},
	)

	OrderNotifications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "order_notifications_total",
			Help: "Total number of order notifications pushed to the operator",
		},
	)

	PollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_cycles_total",
			Help: "Total number of order poll cycles",
		},
		[]string{"result"},
	)

	HandoffSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "handoff_sessions_active",
			Help: "Number of in-flight security code sessions",
		},
	)

	registry.MustRegister(
		KaspiAPIRequests,
		OrderNotifications,
		PollCycles,
		HandoffSessionsActive,
	)
}

// RecordKaspiRequest 記錄一次 API 呼叫，未初始化時直接略過（例如單元測試）
func RecordKaspiRequest(operation, result string) {
	if KaspiAPIRequests == nil {
		return
	}
	KaspiAPIRequests.WithLabelValues(operation, result).Inc()
}

func RecordOrderNotification() {
	if OrderNotifications == nil {
		return
	}
	OrderNotifications.Inc()
}

func RecordPollCycle(result string) {
	if PollCycles == nil {
		return
	}
	PollCycles.WithLabelValues(result).Inc()
}

func SetActiveHandoffSessions(n int) {
	if HandoffSessionsActive == nil {
		return
	}
	HandoffSessionsActive.Set(float64(n))
}
