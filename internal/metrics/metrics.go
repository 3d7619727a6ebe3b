package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rulesDeclaredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appfence_rules_declared_total",
		Help: "Total number of block rules successfully declared",
	})
	rulesRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appfence_rules_revoked_total",
		Help: "Total number of block rules revoked (manual or bulk)",
	})
	rulesExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appfence_rules_expired_total",
		Help: "Total number of block rules removed by the expiry scheduler",
	})
	syncLinkedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appfence_sync_linked_total",
		Help: "Total number of local rules linked to remote policies by sync",
	})
	cleanupDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appfence_cleanup_deleted_total",
		Help: "Total number of orphaned remote policies deleted by cleanup",
	})
	remoteErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appfence_remote_errors_total",
		Help: "Total number of failed calls to the network controller",
	}, []string{"kind"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		rulesDeclaredTotal,
		rulesRevokedTotal,
		rulesExpiredTotal,
		syncLinkedTotal,
		cleanupDeletedTotal,
		remoteErrorsTotal,
	)
}

// IncDeclared increments the declared rules counter.
func IncDeclared() { rulesDeclaredTotal.Inc() }

// IncRevoked increments the revoked rules counter.
func IncRevoked() { rulesRevokedTotal.Inc() }

// IncExpired increments the expired rules counter.
func IncExpired() { rulesExpiredTotal.Inc() }

// AddSyncLinked adds to the sync-linked counter.
func AddSyncLinked(n int) { syncLinkedTotal.Add(float64(n)) }

// AddCleanupDeleted adds to the cleanup-deleted counter.
func AddCleanupDeleted(n int) { cleanupDeletedTotal.Add(float64(n)) }

// IncRemoteError increments the remote error counter for a failure kind.
func IncRemoteError(kind string) { remoteErrorsTotal.WithLabelValues(kind).Inc() }
