package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 引擎核心指标：状态流转、过期扫描、延迟释放、事件发布失败。
var (
	ReservationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carrentlink",
		Subsystem: "reservation",
		Name:      "transitions_total",
		Help:      "Reservation lifecycle transitions by event type.",
	}, []string{"type"})

	ExpiredReservations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carrentlink",
		Subsystem: "reservation",
		Name:      "expired_total",
		Help:      "Reservations expired by the background sweeper.",
	})

	DeferredReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carrentlink",
		Subsystem: "fleet",
		Name:      "deferred_releases_total",
		Help:      "Deferred vehicle release timer firings.",
	}, []string{"outcome"}) // released / noop / error

	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "carrentlink",
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Lifecycle event publish failures (logged and swallowed).",
	})
)
