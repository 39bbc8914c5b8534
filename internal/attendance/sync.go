package attendance

import (
	"context"
	"fmt"
	"log"
	"time"

	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
)

// Synchronizer keeps an intervention's status in step with the attendance of
// its assigned agents. An intervention is a group job: it completes only once
// every assignee has closed out.
type Synchronizer struct {
	interventions InterventionStore
	attendances   AttendanceStore
}

func NewSynchronizer(interventions InterventionStore, attendances AttendanceStore) *Synchronizer {
	return &Synchronizer{interventions: interventions, attendances: attendances}
}

// Sync applies an attendance transition of agentID at siteID on day to the
// matching intervention. It returns the intervention it touched, or nil when
// no intervention matched.
func (s *Synchronizer) Sync(ctx context.Context, agentID, siteID uuid.UUID, day time.Time, status models.AttendanceStatus) (*models.Intervention, error) {
	iv, err := s.locate(ctx, agentID, siteID, day)
	if err != nil || iv == nil {
		return nil, err
	}
	return iv, s.apply(ctx, iv, siteID, day, status)
}

// syncRecord is Sync for a known record, preferring the intervention the
// record was matched to.
func (s *Synchronizer) syncRecord(ctx context.Context, rec *models.Attendance, status models.AttendanceStatus) (*models.Intervention, error) {
	if rec.InterventionID != nil {
		iv, err := s.interventions.GetIntervention(ctx, *rec.InterventionID)
		if err != nil {
			return nil, fmt.Errorf("error getting intervention: %w", err)
		}
		if iv != nil && iv.Status != models.InterventionCancelled {
			return iv, s.apply(ctx, iv, rec.SiteID, rec.Day, status)
		}
	}
	return s.Sync(ctx, rec.AgentID, rec.SiteID, rec.Day, status)
}

func (s *Synchronizer) locate(ctx context.Context, agentID, siteID uuid.UUID, day time.Time) (*models.Intervention, error) {
	interventions, err := s.interventions.ListSiteDayInterventions(ctx, siteID, day)
	if err != nil {
		return nil, fmt.Errorf("error listing interventions: %w", err)
	}
	for _, iv := range interventions {
		if iv.Status != models.InterventionCancelled && iv.IsAssigned(agentID) {
			return iv, nil
		}
	}
	return nil, nil
}

func (s *Synchronizer) apply(ctx context.Context, iv *models.Intervention, siteID uuid.UUID, day time.Time, status models.AttendanceStatus) error {
	switch status {
	case models.AttendanceCompleted:
		done, err := s.groupDone(ctx, iv, siteID, day)
		if err != nil {
			return err
		}
		if done {
			return s.setStatus(ctx, iv, models.InterventionCompleted)
		}
		return s.setStatus(ctx, iv, models.InterventionInProgress)

	case models.AttendanceCancelled:
		// Cancelling is terminal: it may finish a group job, never reopen one.
		done, err := s.groupDone(ctx, iv, siteID, day)
		if err != nil || !done {
			return err
		}
		return s.setStatus(ctx, iv, models.InterventionCompleted)
	}
	return s.setStatus(ctx, iv, models.InterventionInProgress)
}

// groupDone reports whether every assignee has a non-cancelled record for the
// day and none of them is still open.
func (s *Synchronizer) groupDone(ctx context.Context, iv *models.Intervention, siteID uuid.UUID, day time.Time) (bool, error) {
	assigned := iv.AssignedAgents()
	if len(assigned) == 0 {
		return true, nil
	}

	records, err := s.attendances.ListSiteDayAttendances(ctx, siteID, day)
	if err != nil {
		return false, fmt.Errorf("error listing attendances: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	open := make(map[uuid.UUID]bool)
	for _, rec := range records {
		if rec.Status == models.AttendanceCancelled {
			continue
		}
		seen[rec.AgentID] = true
		if rec.IsOpen() {
			open[rec.AgentID] = true
		}
	}
	for _, agentID := range assigned {
		if !seen[agentID] || open[agentID] {
			return false, nil
		}
	}
	return true, nil
}

func (s *Synchronizer) setStatus(ctx context.Context, iv *models.Intervention, status models.InterventionStatus) error {
	if iv.Status == status {
		return nil
	}
	if err := s.interventions.UpdateInterventionStatus(ctx, iv.ID, status); err != nil {
		return fmt.Errorf("error updating intervention status: %w", err)
	}
	log.Printf("Intervention %s: %s -> %s", iv.ID, iv.Status, status)
	iv.Status = status
	return nil
}
