package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/appfence/appfence/internal/models"
	"github.com/appfence/appfence/internal/rules"
	"github.com/appfence/appfence/internal/services"
)

// RuleHandler exposes the rule lifecycle and reconciliation operations.
type RuleHandler struct {
	controller *rules.Controller
	audit      *services.AuditService
	notify     *services.NotificationService
}

// NewRuleHandler creates a rule handler.
func NewRuleHandler(controller *rules.Controller, audit *services.AuditService, notify *services.NotificationService) *RuleHandler {
	return &RuleHandler{controller: controller, audit: audit, notify: notify}
}

// RegisterRoutes registers rule routes on a protected group.
func (h *RuleHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/rules", h.List)
	router.POST("/rules", h.Declare)
	router.DELETE("/rules/:id", h.Revoke)
	router.DELETE("/rules", h.RevokeAll)
	router.POST("/rules/sync", h.Sync)
	router.POST("/rules/cleanup", h.Cleanup)
	router.GET("/audit", h.Audit)
}

type declareRequest struct {
	ID            string          `json:"id"`
	Apps          []string        `json:"apps" binding:"required"`
	Type          rules.RuleType  `json:"type" binding:"required"`
	Devices       []string        `json:"devices"`
	Status        string          `json:"status"`
	DurationHours float64         `json:"duration_hours"`
	EndAt         *time.Time      `json:"end_at"`
	UntilTime     string          `json:"until_time"` // HH:MM shorthand for the next occurrence
	Schedule      *rules.Schedule `json:"schedule"`
}

// List returns all declared rules.
func (h *RuleHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.List())
}

// Declare creates a new block rule.
func (h *RuleHandler) Declare(c *gin.Context) {
	var req declareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	endAt := req.EndAt
	if req.Type == rules.TypeUntil && endAt == nil && req.UntilTime != "" {
		parsed, err := nextOccurrence(req.UntilTime, time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		endAt = &parsed
	}

	rule, err := h.controller.Declare(c.Request.Context(), rules.DeclareInput{
		ID:            req.ID,
		Apps:          req.Apps,
		Type:          req.Type,
		Devices:       req.Devices,
		Status:        req.Status,
		DurationHours: req.DurationHours,
		EndAt:         endAt,
		Schedule:      req.Schedule,
	})
	if err != nil {
		h.audit.Record(models.AuditActionDeclare, req.ID, err.Error(), false)
		writeRuleError(c, err)
		return
	}

	h.audit.Record(models.AuditActionDeclare, rule.ID, fmt.Sprintf("blocks %v", rule.Apps), true)
	h.notify.RuleDeclared(rule.ID, rule.Apps)
	c.JSON(http.StatusCreated, rule)
}

// Revoke removes one rule.
func (h *RuleHandler) Revoke(c *gin.Context) {
	id := c.Param("id")

	if err := h.controller.Revoke(c.Request.Context(), id); err != nil {
		h.audit.Record(models.AuditActionRevoke, id, err.Error(), false)
		writeRuleError(c, err)
		return
	}

	h.audit.Record(models.AuditActionRevoke, id, "", true)
	h.notify.RuleRevoked(id, "manual")
	c.JSON(http.StatusOK, gin.H{"message": "rule revoked"})
}

// RevokeAll removes every rule best-effort and reports partial failures.
func (h *RuleHandler) RevokeAll(c *gin.Context) {
	report, err := h.controller.RevokeAll(c.Request.Context())
	detail := fmt.Sprintf("deleted %d, %d failures", report.Deleted, len(report.Failures))
	if err != nil {
		h.audit.Record(models.AuditActionRevokeAll, "", detail+": "+err.Error(), false)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}

	h.audit.Record(models.AuditActionRevokeAll, "", detail, true)
	h.notify.RuleRevoked("*", "bulk revoke")
	c.JSON(http.StatusOK, report)
}

// Sync backfills remote links for rules that lost them.
func (h *RuleHandler) Sync(c *gin.Context) {
	linked, err := h.controller.Sync(c.Request.Context())
	if err != nil {
		h.audit.Record(models.AuditActionSync, "", err.Error(), false)
		writeRuleError(c, err)
		return
	}

	h.audit.Record(models.AuditActionSync, "", fmt.Sprintf("linked %d", linked), true)
	c.JSON(http.StatusOK, gin.H{"linked": linked})
}

// Cleanup deletes orphaned remote policies carrying our naming prefix.
func (h *RuleHandler) Cleanup(c *gin.Context) {
	report, err := h.controller.Cleanup(c.Request.Context())
	if err != nil {
		h.audit.Record(models.AuditActionCleanup, "", err.Error(), false)
		writeRuleError(c, err)
		return
	}

	h.audit.Record(models.AuditActionCleanup, "",
		fmt.Sprintf("deleted %d, %d failures", report.Deleted, len(report.Failures)), true)
	c.JSON(http.StatusOK, report)
}

// Audit returns recent audit events.
func (h *RuleHandler) Audit(c *gin.Context) {
	events, err := h.audit.List(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

// nextOccurrence resolves an HH:MM wall-clock time to the next absolute
// instant: today if still ahead, otherwise tomorrow.
func nextOccurrence(hhmm string, now time.Time) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid until_time %q, expected HH:MM", hhmm)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next, nil
}

// writeRuleError maps the core error taxonomy onto HTTP statuses.
func writeRuleError(c *gin.Context, err error) {
	var rerr *rules.RemoteError
	var perr *rules.PersistenceError

	switch {
	case errors.Is(err, rules.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, rules.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, rules.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, rules.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.As(err, &rerr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.As(err, &perr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
