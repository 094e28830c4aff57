package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OnboardingStages counts stage handler outcomes (sent|failed|skipped) per stage.
	OnboardingStages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerhub_onboarding_stages_total",
			Help: "Onboarding stage handler outcomes",
		},
		[]string{"stage", "result"},
	)

	// BonusGrants records welcome bonus attempts by result (granted|already_granted|error).
	BonusGrants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerhub_bonus_grants_total",
			Help: "Welcome bonus grant attempts",
		},
		[]string{"result"},
	)

	// WelcomeStatusLookups counts status queries by the source that answered them.
	WelcomeStatusLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerhub_welcome_status_lookups_total",
			Help: "Welcome status lookups by answering source",
		},
		[]string{"source"},
	)

	// NotificationsCreated counts persisted notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerhub_notifications_created_total",
			Help: "Notifications persisted",
		},
		[]string{"type"},
	)

	TemplateMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerhub_template_misses_total",
			Help: "Template lookups that fell back",
		},
		[]string{"language", "fallback"},
	)

	// PendingStages tracks stage tasks scheduled in this process and not yet fired.
	PendingStages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "careerhub_onboarding_pending_stages",
			Help: "Scheduled onboarding stage tasks awaiting execution",
		},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "careerhub_realtime_connections",
			Help: "Open realtime websocket connections",
		},
	)

	// RealtimeDropped counts messages discarded because a client's send buffer was full.
	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "careerhub_realtime_dropped_messages_total",
			Help: "Realtime messages dropped for slow clients",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careerhub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
