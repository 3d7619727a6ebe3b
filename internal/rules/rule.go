package rules

import (
	"fmt"
	"strings"
	"time"
)

// RuleType discriminates how long a block rule stays in force.
type RuleType string

const (
	// TypePermanent blocks until explicitly revoked.
	TypePermanent RuleType = "permanent"
	// TypeDuration blocks for a number of hours from creation.
	TypeDuration RuleType = "duration"
	// TypeUntil blocks until an absolute point in time.
	TypeUntil RuleType = "until"
	// TypeRecurring blocks during a weekly schedule window, enforced by the
	// controller itself; no local expiry applies.
	TypeRecurring RuleType = "recurring"
)

// Rule statuses: the declared desired state of the remote policy. Status does
// not drive expiry.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// DeviceAll is the sentinel device entry meaning "every client on the network".
const DeviceAll = "all"

// namePrefix is the reserved naming convention for remote policies created by
// this service. Create, sync and cleanup all derive names the same way; a
// remote policy carrying this prefix is considered ours.
const namePrefix = "appfence: "

// Schedule describes a weekly recurring block window.
type Schedule struct {
	Days  []string `json:"days"`  // e.g. ["mon","tue"]
	Start string   `json:"start"` // HH:MM
	End   string   `json:"end"`   // HH:MM
}

// BlockRule is the persisted unit of intent: block a set of applications for
// a set of devices under a time policy. RemoteID links it to the policy object
// inside the network controller and is empty until the create call succeeds or
// a later sync links it.
type BlockRule struct {
	ID            string     `json:"id"`
	Apps          []string   `json:"apps"`
	Type          RuleType   `json:"type"`
	Devices       []string   `json:"devices"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	DurationHours float64    `json:"duration_hours,omitempty"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	Schedule      *Schedule  `json:"schedule,omitempty"`
	RemoteID      string     `json:"remote_id,omitempty"`
}

// RemoteName derives the remote policy name for a list of app names. The same
// derivation is used at create time, by sync to relink lost policies, and by
// cleanup to recognize orphans.
func RemoteName(appNames []string) string {
	return namePrefix + strings.Join(appNames, ", ")
}

// HasRemotePrefix reports whether a remote policy name carries this service's
// reserved prefix.
func HasRemotePrefix(name string) bool {
	return strings.HasPrefix(name, namePrefix)
}

// RemoteName returns the derived remote policy name for this rule.
func (r *BlockRule) RemoteName() string {
	return RemoteName(r.Apps)
}

// Expiring reports whether the rule carries an absolute end time and is
// subject to the expiry scheduler.
func (r *BlockRule) Expiring() bool {
	return (r.Type == TypeDuration || r.Type == TypeUntil) && r.EndAt != nil
}

// validateShape checks that exactly the fields required by the rule type are
// present. App resolution is checked separately by the lifecycle controller.
func (r *BlockRule) validateShape() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id", ErrMissingField)
	}
	if len(r.Apps) == 0 {
		return ErrInvalidApps
	}
	if r.Status != StatusActive && r.Status != StatusDisabled {
		return fmt.Errorf("%w: status must be %q or %q", ErrValidation, StatusActive, StatusDisabled)
	}

	switch r.Type {
	case TypePermanent:
		if r.DurationHours != 0 || r.EndAt != nil || r.Schedule != nil {
			return fmt.Errorf("%w: permanent rules carry no schedule fields", ErrValidation)
		}
	case TypeDuration:
		if r.DurationHours <= 0 {
			return fmt.Errorf("%w: duration_hours", ErrMissingField)
		}
		if r.Schedule != nil {
			return fmt.Errorf("%w: duration rules carry no recurring schedule", ErrValidation)
		}
	case TypeUntil:
		if r.EndAt == nil {
			return fmt.Errorf("%w: end_at", ErrMissingField)
		}
		if r.DurationHours != 0 || r.Schedule != nil {
			return fmt.Errorf("%w: until rules carry only end_at", ErrValidation)
		}
	case TypeRecurring:
		if r.Schedule == nil || len(r.Schedule.Days) == 0 || r.Schedule.Start == "" || r.Schedule.End == "" {
			return fmt.Errorf("%w: schedule", ErrMissingField)
		}
		if r.DurationHours != 0 || r.EndAt != nil {
			return fmt.Errorf("%w: recurring rules carry only a schedule", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown rule type %q", ErrValidation, r.Type)
	}

	return nil
}
