package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appfence/appfence/internal/logger"
	"github.com/appfence/appfence/internal/metrics"
)

// RemotePolicy is one enforcement object as enumerated from the controller.
type RemotePolicy struct {
	ID   string
	Name string
}

// RemoteClient is the contract against the network controller. Failures are
// reported as *RemoteError (or ErrNotAuthenticated when no session exists).
type RemoteClient interface {
	CreatePolicy(ctx context.Context, name string, appIDs, devices []string, enabled bool) (string, error)
	DeletePolicy(ctx context.Context, remoteID string) error
	ListPolicies(ctx context.Context) ([]RemotePolicy, error)
}

// AppResolver maps application names to controller application IDs, dropping
// names it does not know.
type AppResolver interface {
	ResolveIDs(names []string) []string
}

// DeclareInput is the caller's intent to block a set of apps.
type DeclareInput struct {
	ID            string
	Apps          []string
	Type          RuleType
	Devices       []string
	Status        string
	DurationHours float64
	EndAt         *time.Time
	Schedule      *Schedule
}

// RevokeFailure records one rule whose remote delete failed during RevokeAll.
type RevokeFailure struct {
	RuleID string `json:"rule_id"`
	Error  string `json:"error"`
}

// RevokeAllReport summarizes a best-effort bulk revoke.
type RevokeAllReport struct {
	Deleted  int             `json:"deleted"`
	Failures []RevokeFailure `json:"failures,omitempty"`
}

// Controller orchestrates the lifecycle of block rules: it creates the remote
// policy, records the local rule, arms expiry, and tears both down again. All
// store mutations for one rule id are serialized by the store's own lock.
type Controller struct {
	store    *Store
	remote   RemoteClient
	resolver AppResolver
	sched    *Scheduler

	// OnExpired, when set, observes scheduler-driven removals. There is no
	// caller to receive those errors, so they are reported here and logged.
	OnExpired func(rule BlockRule, err error)
}

// NewController wires a lifecycle controller around a store, a remote client
// and an app resolver. The expiry scheduler is owned by the controller and
// converges with manual revocation through Revoke's not-found handling.
func NewController(store *Store, remote RemoteClient, resolver AppResolver) *Controller {
	c := &Controller{
		store:    store,
		remote:   remote,
		resolver: resolver,
	}
	c.sched = NewScheduler(c.expire)
	return c
}

// Scheduler exposes the expiry scheduler, mainly for tests and shutdown.
func (c *Controller) Scheduler() *Scheduler {
	return c.sched
}

// List returns a snapshot of all declared rules.
func (c *Controller) List() []BlockRule {
	return c.store.Snapshot()
}

// Declare validates the intent, creates the remote policy, stores the rule,
// and arms expiry for time-bounded rules. On remote failure nothing is stored.
func (c *Controller) Declare(ctx context.Context, in DeclareInput) (*BlockRule, error) {
	rule := BlockRule{
		ID:            in.ID,
		Apps:          in.Apps,
		Type:          in.Type,
		Devices:       in.Devices,
		Status:        in.Status,
		CreatedAt:     time.Now(),
		DurationHours: in.DurationHours,
		EndAt:         in.EndAt,
		Schedule:      in.Schedule,
	}
	if rule.Status == "" {
		rule.Status = StatusActive
	}
	if len(rule.Devices) == 0 {
		rule.Devices = []string{DeviceAll}
	}

	if err := rule.validateShape(); err != nil {
		return nil, err
	}
	if c.store.Exists(rule.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, rule.ID)
	}

	appIDs := c.resolver.ResolveIDs(rule.Apps)
	if len(appIDs) == 0 {
		return nil, ErrInvalidApps
	}

	// Resolve the absolute end time before touching the controller so a bad
	// declaration costs no remote call.
	if rule.Type == TypeDuration {
		end := rule.CreatedAt.Add(time.Duration(rule.DurationHours * float64(time.Hour)))
		rule.EndAt = &end
	}

	remoteID, err := c.remote.CreatePolicy(ctx, rule.RemoteName(), appIDs, rule.Devices, rule.Status == StatusActive)
	if err != nil {
		observeRemoteError(err)
		return nil, err
	}
	rule.RemoteID = remoteID

	if err := c.store.Add(rule); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			// Lost a race with a concurrent declare for the same id. Undo the
			// remote create so the loser leaves no trace.
			if rule.RemoteID != "" {
				if delErr := c.remote.DeletePolicy(ctx, rule.RemoteID); delErr != nil {
					logger.WithFields(map[string]interface{}{"rule": rule.ID, "remote_id": rule.RemoteID}).
						WithError(delErr).Warn("could not undo remote policy after duplicate id")
				}
			}
			return nil, err
		}
		// Persistence failure: the rule is live in memory and remotely
		// enforced. Arm expiry anyway and surface the error.
		var perr *PersistenceError
		if errors.As(err, &perr) {
			if rule.Expiring() {
				c.sched.Arm(rule.ID, *rule.EndAt)
			}
			return &rule, err
		}
		return nil, err
	}

	if rule.Expiring() {
		c.sched.Arm(rule.ID, *rule.EndAt)
	}

	metrics.IncDeclared()
	logger.WithFields(map[string]interface{}{
		"rule":      rule.ID,
		"type":      string(rule.Type),
		"remote_id": rule.RemoteID,
	}).Info("block rule declared")
	return &rule, nil
}

// Revoke removes a rule locally and deletes its remote policy. If the remote
// delete fails the record is re-inserted so the rule is never lost locally
// while still enforced remotely; the caller may retry.
func (c *Controller) Revoke(ctx context.Context, id string) error {
	removed, err := c.store.Remove(id)
	if err != nil && removed == nil {
		return err
	}

	if removed.RemoteID != "" {
		if delErr := c.remote.DeletePolicy(ctx, removed.RemoteID); delErr != nil {
			observeRemoteError(delErr)
			if addErr := c.store.Add(*removed); addErr != nil {
				logger.WithFields(map[string]interface{}{"rule": id}).
					WithError(addErr).Error("could not restore rule after failed remote delete")
			}
			return delErr
		}
	}

	c.sched.Cancel(id)
	metrics.IncRevoked()
	logger.WithFields(map[string]interface{}{"rule": id}).Info("block rule revoked")
	// A persistence error from the optimistic removal is reported only now
	// that the remote side is consistent.
	return err
}

// RevokeAll deletes every remote-linked policy best-effort, then clears the
// local store regardless of individual failures; cleanup reconciles stragglers
// on a later pass. The report lists which deletes failed.
func (c *Controller) RevokeAll(ctx context.Context) (RevokeAllReport, error) {
	var report RevokeAllReport

	for _, rule := range c.store.Snapshot() {
		if rule.RemoteID == "" {
			continue
		}
		if err := c.remote.DeletePolicy(ctx, rule.RemoteID); err != nil {
			observeRemoteError(err)
			report.Failures = append(report.Failures, RevokeFailure{RuleID: rule.ID, Error: err.Error()})
			continue
		}
		report.Deleted++
	}

	c.sched.CancelAll()
	if err := c.store.ClearAll(); err != nil {
		return report, err
	}

	metrics.IncRevoked()
	logger.WithFields(map[string]interface{}{
		"deleted":  report.Deleted,
		"failures": len(report.Failures),
	}).Info("all block rules revoked")
	return report, nil
}

// expiryRetryInterval is how soon a failed expiry (remote unreachable, no
// controller session yet) is retried.
const expiryRetryInterval = time.Minute

// RearmAll walks the store after a restart: rules whose end time elapsed while
// the process was down are revoked immediately, the rest get fresh timers.
// Call before serving requests.
func (c *Controller) RearmAll(ctx context.Context) {
	now := time.Now()
	for _, rule := range c.store.Snapshot() {
		if !rule.Expiring() {
			continue
		}
		if rule.EndAt.After(now) {
			c.sched.Arm(rule.ID, *rule.EndAt)
			continue
		}
		if err := c.Revoke(ctx, rule.ID); err != nil && !errors.Is(err, ErrNotFound) {
			logger.WithFields(map[string]interface{}{"rule": rule.ID}).
				WithError(err).Warn("could not expire rule found elapsed at startup")
			c.sched.Arm(rule.ID, now.Add(expiryRetryInterval))
			continue
		}
		metrics.IncExpired()
	}
}

// expire is the scheduler callback. An already-removed rule is a defined
// no-op, not an error.
func (c *Controller) expire(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var rule BlockRule
	for _, r := range c.store.Snapshot() {
		if r.ID == id {
			rule = r
			break
		}
	}

	err := c.Revoke(ctx, id)
	switch {
	case err == nil:
		metrics.IncExpired()
		logger.WithFields(map[string]interface{}{"rule": id}).Info("block rule expired")
	case errors.Is(err, ErrNotFound):
		logger.WithFields(map[string]interface{}{"rule": id}).Debug("expiry fired for already-removed rule")
		return
	default:
		logger.WithFields(map[string]interface{}{"rule": id}).WithError(err).Error("expiry failed")
		c.sched.Arm(id, time.Now().Add(expiryRetryInterval))
	}

	if c.OnExpired != nil {
		c.OnExpired(rule, err)
	}
}

func observeRemoteError(err error) {
	var rerr *RemoteError
	switch {
	case errors.As(err, &rerr):
		metrics.IncRemoteError(string(rerr.Kind))
	case errors.Is(err, ErrNotAuthenticated):
		metrics.IncRemoteError("not_authenticated")
	}
}
