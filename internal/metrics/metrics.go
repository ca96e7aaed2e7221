package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MintsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuer_mints_total",
		Help: "Completed mint jobs",
	})

	BurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuer_burns_total",
		Help: "Completed burn jobs",
	})

	PayoutAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuer_payout_attempts_total",
		Help: "Payout attempts by outcome",
	}, []string{"outcome"})

	WebhookRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuer_webhook_rejected_total",
		Help: "Bank webhook deliveries rejected at the trust boundary",
	})

	DeliveriesIgnoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuer_deliveries_ignored_total",
		Help: "Bank deliveries recorded as IGNORED",
	})

	BurnEventsDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuer_burn_events_deduped_total",
		Help: "Replayed burn events skipped by (tx_id, event_index) dedup",
	})
)
