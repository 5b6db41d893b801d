// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the NovelMaze backend.
var (
	// Gamification.
	XPAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_xp_awarded_total",
			Help: "Total experience points awarded",
		},
		[]string{"source"},
	)

	LevelUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novelmaze_level_ups_total",
			Help: "Total number of levels gained by users",
		},
	)

	AchievementsUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_achievements_unlocked_total",
			Help: "Total number of achievement tiers unlocked",
		},
		[]string{"tier_key", "tier"},
	)

	NormalizationRepairsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novelmaze_normalization_repairs_total",
			Help: "Total number of gamification rows repaired by normalization",
		},
	)

	SummaryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_summary_cache_total",
			Help: "Gamification summary cache lookups by result",
		},
		[]string{"result"},
	)

	CoinsGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_coins_granted_total",
			Help: "Total coins credited to wallets",
		},
		[]string{"type"},
	)

	// Purchases.
	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_purchases_total",
			Help: "Total purchase attempts by outcome",
		},
		[]string{"status", "code"},
	)

	PurchaseRevenueCoinsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "novelmaze_purchase_revenue_coins_total",
			Help: "Total coins spent on purchases",
		},
	)

	PurchaseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novelmaze_purchase_duration_seconds",
			Help:    "Duration of purchase transactions in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
		[]string{"status"},
	)

	// Episode access.
	AccessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_access_checks_total",
			Help: "Total episode access checks by decision reason",
		},
		[]string{"granted", "code"},
	)

	// Event bus.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_events_published_total",
			Help: "Total domain events published",
		},
		[]string{"kind"},
	)

	EventHandlerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_event_handler_failures_total",
			Help: "Total event handler failures (errors and panics)",
		},
		[]string{"kind", "handler", "reason"},
	)

	// Notifications.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_notifications_sent_total",
			Help: "Total notifications delivered by channel",
		},
		[]string{"channel", "type"},
	)

	NotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_notifications_failed_total",
			Help: "Total notification delivery failures by channel",
		},
		[]string{"channel"},
	)

	// Scheduler.
	SchedulerJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_scheduler_job_runs_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novelmaze_scheduler_job_duration_seconds",
			Help:    "Duration of scheduler jobs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"job"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "novelmaze_scheduler_last_run_timestamp",
			Help: "Unix timestamp of the last scheduler job run",
		},
		[]string{"job"},
	)

	// HTTP.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelmaze_http_requests_total",
			Help: "Total HTTP requests by route and status class",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordXPAwarded increments the XP counter.
func RecordXPAwarded(source string, points int64) {
	XPAwardedTotal.WithLabelValues(source).Add(float64(points))
}

// RecordLevelUps increments the level-up counter.
func RecordLevelUps(levels int) {
	if levels > 0 {
		LevelUpsTotal.Add(float64(levels))
	}
}

// RecordAchievementUnlocked increments the achievement unlock counter.
func RecordAchievementUnlocked(tierKey, tier string) {
	AchievementsUnlockedTotal.WithLabelValues(tierKey, tier).Inc()
}

// RecordNormalizationRepair increments the normalization repair counter.
func RecordNormalizationRepair() {
	NormalizationRepairsTotal.Inc()
}

// RecordSummaryCache records a summary cache hit or miss.
func RecordSummaryCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	SummaryCacheTotal.WithLabelValues(result).Inc()
}

// RecordCoinsGranted increments the coins granted counter.
func RecordCoinsGranted(txType string, amount int64) {
	CoinsGrantedTotal.WithLabelValues(txType).Add(float64(amount))
}

// RecordPurchase records a purchase attempt outcome. code is empty on success.
func RecordPurchase(status, code string, seconds float64) {
	PurchasesTotal.WithLabelValues(status, code).Inc()
	PurchaseDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// RecordPurchaseRevenue adds coins spent on a completed purchase.
func RecordPurchaseRevenue(amount int64) {
	PurchaseRevenueCoinsTotal.Add(float64(amount))
}

// RecordAccessCheck records an access decision.
func RecordAccessCheck(granted bool, code string) {
	g := "false"
	if granted {
		g = "true"
	}
	AccessChecksTotal.WithLabelValues(g, code).Inc()
}

// RecordEventPublished increments the published events counter.
func RecordEventPublished(kind string) {
	EventsPublishedTotal.WithLabelValues(kind).Inc()
}

// RecordEventHandlerFailure increments the handler failure counter.
// reason is "error" or "panic".
func RecordEventHandlerFailure(kind, handler, reason string) {
	EventHandlerFailuresTotal.WithLabelValues(kind, handler, reason).Inc()
}

// RecordNotificationSent increments the notification sent counter.
func RecordNotificationSent(channel, notificationType string) {
	NotificationsSentTotal.WithLabelValues(channel, notificationType).Inc()
}

// RecordNotificationFailed increments the notification failure counter.
func RecordNotificationFailed(channel string) {
	NotificationsFailedTotal.WithLabelValues(channel).Inc()
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string, seconds float64) {
	SchedulerJobRunsTotal.WithLabelValues(job, status).Inc()
	SchedulerJobDuration.WithLabelValues(job).Observe(seconds)
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(method, route, status string) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}
