package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type InterventionStatus string

const (
	InterventionPlanned     InterventionStatus = "PLANNED"
	InterventionInProgress  InterventionStatus = "IN_PROGRESS"
	InterventionCompleted   InterventionStatus = "COMPLETED"
	InterventionNeedsReview InterventionStatus = "NEEDS_REVIEW"
	InterventionCancelled   InterventionStatus = "CANCELLED"
	InterventionNoShow      InterventionStatus = "NO_SHOW"
)

// Intervention is a scheduled cleaning job. StartTime and EndTime are local
// wall-clock values ("15:04") on Date, in the site's timezone.
type Intervention struct {
	ID               uuid.UUID          `db:"id" json:"id" yaml:"id"`
	SiteID           uuid.UUID          `db:"site_id" json:"siteId" yaml:"site_id"`
	Date             time.Time          `db:"date" json:"date" yaml:"date"`
	StartTime        string             `db:"start_time" json:"startTime" yaml:"start_time"`
	EndTime          string             `db:"end_time" json:"endTime" yaml:"end_time"`
	AssignedAgentIDs pq.StringArray     `db:"assigned_agent_ids" json:"assignedAgentIds" yaml:"assigned_agent_ids"`
	Status           InterventionStatus `db:"status" json:"status" yaml:"status"`
	Observation      string             `db:"observation" json:"observation" yaml:"observation"`
}

// IsAssigned reports whether agentID is among the assignees.
func (iv *Intervention) IsAssigned(agentID uuid.UUID) bool {
	return slices.Contains(iv.AssignedAgentIDs, agentID.String())
}

// AssignedAgents parses the assignee list, skipping malformed ids.
func (iv *Intervention) AssignedAgents() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(iv.AssignedAgentIDs))
	for _, raw := range iv.AssignedAgentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
