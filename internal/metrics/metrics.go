// Package metrics holds the Prometheus collectors exported on /metrics. All
// collectors register with the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "consent"

// CreditsReservedTotal counts reservations committed together with a consent.
// Label:
//   - method: "subscription" or "credit"
var CreditsReservedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_reserved_total",
		Help:      "Total number of consent reservations, by method.",
	},
	[]string{"method"},
)

// CreditsGrantedTotal counts payment confirmations seen by the ledger.
// Label:
//   - outcome: "granted" or "already_processed"
var CreditsGrantedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_granted_total",
		Help:      "Total number of credit grant attempts, by outcome.",
	},
	[]string{"outcome"},
)

// CreditsGrantedQuantity sums the credits actually added to balances.
var CreditsGrantedQuantity = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_granted_quantity_total",
		Help:      "Total number of credits added to user balances.",
	},
)

// TransitionsTotal counts consent operations.
// Labels:
//   - operation: "create", "accept", "refuse", "confirm_biometric", "soft_delete"
//   - result: "ok" or a short failure reason (e.g. "unauthorized", "already_terminal")
var TransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Total number of consent operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// BiometricValidatedTotal counts consents that reached dual biometric validation.
var BiometricValidatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "biometric_validated_total",
		Help:      "Total number of consents validated by both parties.",
	},
)

// WebhookEventsTotal counts provider notifications.
// Labels:
//   - type: provider event type, or "invalid" when the signature failed
//   - outcome: "granted", "duplicate", "ignored", "rejected", "error"
var WebhookEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Total number of payment provider notifications, by type and outcome.",
	},
	[]string{"type", "outcome"},
)

// IntentsCreatedTotal counts payment intents created for credit packs.
// Label:
//   - quantity: pack size
var IntentsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intents_created_total",
		Help:      "Total number of payment intents created, by pack size.",
	},
	[]string{"quantity"},
)

// TxDuration measures store transaction latency including retries.
// Label:
//   - operation: the service operation that opened the transaction
var TxDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tx_duration_seconds",
		Help:      "Duration of store transactions, including transient retries.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation"},
)
