package models

import "time"

// Audit actions recorded for rule lifecycle and reconciliation outcomes.
const (
	AuditActionDeclare   = "declare"
	AuditActionRevoke    = "revoke"
	AuditActionRevokeAll = "revoke_all"
	AuditActionExpire    = "expire"
	AuditActionSync      = "sync"
	AuditActionCleanup   = "cleanup"
)

// AuditEvent is one recorded rule lifecycle or reconciliation outcome.
type AuditEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Action    string    `json:"action" gorm:"index"`
	RuleID    string    `json:"rule_id,omitempty" gorm:"index"`
	Detail    string    `json:"detail,omitempty"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}
