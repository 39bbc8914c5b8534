package attendance

import (
	"context"
	"log"

	"fieldtrack/internal/db/models"
)

// Fallbacks used when no transport is configured. They only log.

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, n Notification) error {
	log.Printf("Notification for %s %s: %s - %s", n.Audience, n.TargetID, n.Title, n.Message)
	return nil
}

type logBroadcaster struct{}

func (logBroadcaster) Broadcast(_ context.Context, event string, payload any) error {
	log.Printf("Event %s: %v", event, payload)
	return nil
}

type logAuditRecorder struct{}

func (logAuditRecorder) RecordAudit(_ context.Context, entry *models.AuditLog) error {
	log.Printf("Audit: actor=%s action=%s %s=%s %s", entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, entry.Details)
	return nil
}
