package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog records a supervisor or admin override.
type AuditLog struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ActorID    string    `db:"actor_id" json:"actorId"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entityType"`
	EntityID   string    `db:"entity_id" json:"entityId"`
	Details    string    `db:"details" json:"details"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
