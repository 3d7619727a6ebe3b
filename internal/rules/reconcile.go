package rules

import (
	"context"
	"fmt"

	"github.com/appfence/appfence/internal/logger"
	"github.com/appfence/appfence/internal/metrics"
)

// CleanupFailure records one orphaned remote policy whose delete failed.
type CleanupFailure struct {
	RemoteID string `json:"remote_id"`
	Name     string `json:"name"`
	Error    string `json:"error"`
}

// CleanupReport summarizes one cleanup pass.
type CleanupReport struct {
	Deleted  int              `json:"deleted"`
	Failures []CleanupFailure `json:"failures,omitempty"`
}

// MaintenanceReport summarizes one combined sync + cleanup pass.
type MaintenanceReport struct {
	Linked  int           `json:"linked"`
	Cleanup CleanupReport `json:"cleanup"`
}

// Sync links local rules that lost their remote id (crash between remote
// create and local persist, or out-of-band creation) by matching the derived
// remote name against a full controller enumeration. First exact name match
// wins; two local rules deriving the same name are not disambiguated. Rules
// with no match stay unlinked for a future pass.
func (c *Controller) Sync(ctx context.Context) (int, error) {
	unlinked := 0
	for _, rule := range c.store.Snapshot() {
		if rule.RemoteID == "" {
			unlinked++
		}
	}
	if unlinked == 0 {
		return 0, nil
	}

	policies, err := c.remote.ListPolicies(ctx)
	if err != nil {
		observeRemoteError(err)
		return 0, fmt.Errorf("enumerate remote policies: %w", err)
	}

	byName := make(map[string]string, len(policies))
	for _, p := range policies {
		if p.ID == "" || p.Name == "" {
			continue // malformed enumeration entries are skipped, not fatal
		}
		if _, ok := byName[p.Name]; !ok {
			byName[p.Name] = p.ID
		}
	}

	linked := 0
	for _, rule := range c.store.Snapshot() {
		if rule.RemoteID != "" {
			continue
		}
		remoteID, ok := byName[rule.RemoteName()]
		if !ok {
			continue
		}
		rule.RemoteID = remoteID
		if err := c.store.Update(rule.ID, rule); err != nil {
			logger.WithFields(map[string]interface{}{"rule": rule.ID}).
				WithError(err).Warn("could not persist recovered remote link")
			continue
		}
		linked++
		logger.WithFields(map[string]interface{}{
			"rule":      rule.ID,
			"remote_id": remoteID,
		}).Info("linked rule to existing remote policy")
	}

	metrics.AddSyncLinked(linked)
	return linked, nil
}

// Cleanup deletes remote policies that carry this service's naming prefix but
// are referenced by no local rule. Individual delete failures do not abort the
// pass; they are surfaced in the report.
func (c *Controller) Cleanup(ctx context.Context) (CleanupReport, error) {
	var report CleanupReport

	policies, err := c.remote.ListPolicies(ctx)
	if err != nil {
		observeRemoteError(err)
		return report, fmt.Errorf("enumerate remote policies: %w", err)
	}

	referenced := make(map[string]bool)
	for _, rule := range c.store.Snapshot() {
		if rule.RemoteID != "" {
			referenced[rule.RemoteID] = true
		}
	}

	for _, p := range policies {
		if p.ID == "" || !HasRemotePrefix(p.Name) || referenced[p.ID] {
			continue
		}
		if err := c.remote.DeletePolicy(ctx, p.ID); err != nil {
			observeRemoteError(err)
			report.Failures = append(report.Failures, CleanupFailure{
				RemoteID: p.ID,
				Name:     p.Name,
				Error:    err.Error(),
			})
			continue
		}
		report.Deleted++
		logger.WithFields(map[string]interface{}{
			"remote_id": p.ID,
			"name":      p.Name,
		}).Info("deleted orphaned remote policy")
	}

	metrics.AddCleanupDeleted(report.Deleted)
	return report, nil
}

// Maintain runs Sync before Cleanup so freshly linked rules are not treated as
// orphans.
func (c *Controller) Maintain(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport

	linked, err := c.Sync(ctx)
	if err != nil {
		return report, err
	}
	report.Linked = linked

	cleanup, err := c.Cleanup(ctx)
	if err != nil {
		return report, err
	}
	report.Cleanup = cleanup
	return report, nil
}
