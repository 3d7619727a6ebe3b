package services

import (
	"fmt"

	"github.com/containrrr/shoutrrr"

	"github.com/appfence/appfence/internal/logger"
)

// NotificationService pushes rule lifecycle events to external channels
// (Discord, Slack, email, ...) via shoutrrr URLs. Sends are fire-and-forget:
// a broken channel is logged and never blocks the caller.
type NotificationService struct {
	urls []string
}

// NewNotificationService creates a notification service for the given
// shoutrrr URLs. An empty list disables notifications.
func NewNotificationService(urls []string) *NotificationService {
	return &NotificationService{urls: urls}
}

// Enabled reports whether at least one notification channel is configured.
func (s *NotificationService) Enabled() bool {
	return len(s.urls) > 0
}

// Notify sends title and message to every configured channel.
func (s *NotificationService) Notify(title, message string) {
	if !s.Enabled() {
		return
	}
	for _, url := range s.urls {
		go func(url string) {
			msg := fmt.Sprintf("%s\n\n%s", title, message)
			if err := shoutrrr.Send(url, msg); err != nil {
				logger.WithFields(map[string]interface{}{"title": title}).
					WithError(err).Warn("could not send notification")
			}
		}(url)
	}
}

// RuleDeclared announces a newly declared block rule.
func (s *NotificationService) RuleDeclared(id string, apps []string) {
	s.Notify("Block rule created", fmt.Sprintf("Rule %s now blocks %v", id, apps))
}

// RuleRevoked announces a removed block rule.
func (s *NotificationService) RuleRevoked(id, reason string) {
	s.Notify("Block rule removed", fmt.Sprintf("Rule %s removed (%s)", id, reason))
}

// MaintenancePass announces the outcome of a reconciliation pass.
func (s *NotificationService) MaintenancePass(linked, deleted, failed int) {
	if linked == 0 && deleted == 0 && failed == 0 {
		return
	}
	s.Notify("Reconciliation pass",
		fmt.Sprintf("Linked %d rule(s), deleted %d orphan(s), %d failure(s)", linked, deleted, failed))
}
