package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/appfence/appfence/internal/logger"
	"github.com/appfence/appfence/internal/models"
)

// AuditService records rule lifecycle and reconciliation outcomes. Recording
// is best-effort: a failed insert is logged, never propagated, so audit
// trouble can't block enforcement.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates an audit service.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record stores one audit event.
func (s *AuditService) Record(action, ruleID, detail string, success bool) {
	event := models.AuditEvent{
		UUID:    uuid.NewString(),
		Action:  action,
		RuleID:  ruleID,
		Detail:  detail,
		Success: success,
	}
	if err := s.db.Create(&event).Error; err != nil {
		logger.WithFields(map[string]interface{}{"action": action, "rule": ruleID}).
			WithError(err).Warn("could not record audit event")
	}
}

// List returns the most recent events, newest first.
func (s *AuditService) List(limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []models.AuditEvent
	if err := s.db.Order("created_at desc").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
