package attendance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"fieldtrack/internal/db/models"
	"fieldtrack/internal/schedule"

	"github.com/google/uuid"
)

// Actor identifies the supervisor or admin behind a manual operation.
type Actor struct {
	ID   string
	Role models.CreatedBy
}

// ManualInput describes a record created by a supervisor. Status defaults to
// COMPLETED when a check-out time is given and PENDING otherwise.
type ManualInput struct {
	AgentID      uuid.UUID
	SiteID       uuid.UUID
	Day          *time.Time
	ArrivalTime  *time.Time
	CheckInTime  *time.Time
	CheckOutTime *time.Time
	Status       models.AttendanceStatus
	Note         string
}

// UpdateInput lists the fields a supervisor may change. Nil means unchanged.
type UpdateInput struct {
	CheckInTime  *time.Time
	CheckOutTime *time.Time
	Note         *string
	Status       *models.AttendanceStatus
}

// CreateManual records attendance on behalf of an agent. Geofence and window
// checks do not apply.
func (s *Service) CreateManual(ctx context.Context, actor Actor, in ManualInput) (*models.Attendance, error) {
	site, err := s.loadSite(ctx, in.SiteID)
	if err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = models.AttendancePending
		if in.CheckOutTime != nil {
			status = models.AttendanceCompleted
		}
	}
	if err := validateTimes(status, in.CheckInTime, in.CheckOutTime); err != nil {
		return nil, err
	}

	now := s.clock()
	loc := s.siteLocation(site)
	day := manualDay(in, now, loc)

	rec := s.newRecord(in.AgentID, site, day, now)
	rec.Manual = true
	rec.CreatedBy = actorRole(actor)
	rec.Note = in.Note
	rec.Status = status
	rec.ArrivalTime = in.ArrivalTime
	rec.CheckInTime = in.CheckInTime
	rec.CheckOutTime = in.CheckOutTime
	if status == models.AttendanceCancelled && rec.CheckOutTime == nil {
		rec.CheckOutTime = &now
	}
	s.attachPlanned(ctx, rec, loc)

	if err := s.attendances.CreateAttendance(ctx, rec); err != nil {
		return nil, fmt.Errorf("error creating attendance: %w", err)
	}

	if _, err := s.sync.syncRecord(ctx, rec, rec.Status); err != nil {
		log.Printf("Error syncing intervention for attendance %s: %v", rec.ID, err)
	}
	s.record(ctx, actor, "attendance.create", rec, fmt.Sprintf("status=%s manual=true", rec.Status))
	return rec, nil
}

// Update applies a supervisor correction. A status change re-runs the
// intervention synchronizer.
func (s *Service) Update(ctx context.Context, actor Actor, id uuid.UUID, in UpdateInput) (*models.Attendance, error) {
	current, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	rec := current.Clone()
	var changes []string

	if in.CheckInTime != nil {
		t := *in.CheckInTime
		rec.CheckInTime = &t
		changes = append(changes, "checkInTime="+t.UTC().Format(time.RFC3339))
	}
	if in.CheckOutTime != nil {
		t := *in.CheckOutTime
		rec.CheckOutTime = &t
		changes = append(changes, "checkOutTime="+t.UTC().Format(time.RFC3339))
	}
	if in.Note != nil {
		rec.Note = *in.Note
		changes = append(changes, "note")
	}

	statusChanged := false
	if in.Status != nil && *in.Status != current.Status {
		next := *in.Status
		if !next.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
		}
		statusChanged = true
		changes = append(changes, fmt.Sprintf("status=%s->%s", current.Status, next))
		if next == models.AttendancePending {
			if in.CheckOutTime != nil {
				return nil, fmt.Errorf("%w: an open record cannot have a check-out time", ErrInvalidInput)
			}
			rec.Status = models.AttendancePending
			rec.CheckOutTime = nil
		} else {
			rec.Close(next, now)
		}
	}

	if err := validateTimes(rec.Status, rec.CheckInTime, rec.CheckOutTime); err != nil {
		return nil, err
	}

	rec.UpdatedAt = now
	if err := s.attendances.UpdateAttendance(ctx, rec); err != nil {
		return nil, fmt.Errorf("error updating attendance: %w", err)
	}

	if statusChanged {
		if _, err := s.sync.syncRecord(ctx, rec, rec.Status); err != nil {
			log.Printf("Error syncing intervention for attendance %s: %v", rec.ID, err)
		}
	}
	s.record(ctx, actor, "attendance.update", rec, strings.Join(changes, " "))
	return rec, nil
}

// Cancel voids a record. Cancelling a cancelled record is a no-op.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, note string) (*models.Attendance, error) {
	current, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.AttendanceCancelled {
		return current, nil
	}

	now := s.clock()
	rec := current.Clone()
	rec.Close(models.AttendanceCancelled, now)
	if note != "" {
		rec.Note = appendLine(rec.Note, note)
	}
	if err := s.attendances.UpdateAttendance(ctx, rec); err != nil {
		return nil, fmt.Errorf("error cancelling attendance: %w", err)
	}

	if _, err := s.sync.syncRecord(ctx, rec, models.AttendanceCancelled); err != nil {
		log.Printf("Error syncing intervention for attendance %s: %v", rec.ID, err)
	}
	s.record(ctx, actor, "attendance.cancel", rec, note)
	return rec, nil
}

func (s *Service) getRecord(ctx context.Context, id uuid.UUID) (*models.Attendance, error) {
	rec, err := s.attendances.GetAttendance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting attendance: %w", err)
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// attachPlanned links a manual record to the agent's intervention of the day.
func (s *Service) attachPlanned(ctx context.Context, rec *models.Attendance, loc *time.Location) {
	iv, err := s.sync.locate(ctx, rec.AgentID, rec.SiteID, rec.Day)
	if err != nil {
		log.Printf("Error locating intervention for manual attendance: %v", err)
		return
	}
	if iv == nil {
		return
	}
	start, end, err := schedule.PlannedWindow(iv, loc)
	if err != nil {
		return
	}
	attachMatch(rec, &schedule.Match{Intervention: iv, PlannedStart: start, PlannedEnd: end})
}

func (s *Service) record(ctx context.Context, actor Actor, action string, rec *models.Attendance, details string) {
	entry := &models.AuditLog{
		ID:         uuid.New(),
		ActorID:    actor.ID,
		Action:     action,
		EntityType: "attendance",
		EntityID:   rec.ID.String(),
		Details:    details,
		CreatedAt:  s.clock(),
	}
	if err := s.audit.RecordAudit(ctx, entry); err != nil {
		log.Printf("Error recording audit entry %s for %s: %v", action, rec.ID, err)
	}
}

func validateTimes(status models.AttendanceStatus, checkIn, checkOut *time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if status == models.AttendancePending && checkOut != nil {
		return fmt.Errorf("%w: an open record cannot have a check-out time", ErrInvalidInput)
	}
	if status == models.AttendanceCompleted && checkOut == nil {
		return fmt.Errorf("%w: a completed record needs a check-out time", ErrInvalidInput)
	}
	if checkIn != nil && checkOut != nil && checkOut.Before(*checkIn) {
		return fmt.Errorf("%w: check-out is before check-in", ErrInvalidInput)
	}
	return nil
}

func manualDay(in ManualInput, now time.Time, loc *time.Location) time.Time {
	switch {
	case in.Day != nil:
		return time.Date(in.Day.Year(), in.Day.Month(), in.Day.Day(), 0, 0, 0, 0, time.UTC)
	case in.CheckInTime != nil:
		return schedule.Day(*in.CheckInTime, loc)
	case in.ArrivalTime != nil:
		return schedule.Day(*in.ArrivalTime, loc)
	default:
		return schedule.Day(now, loc)
	}
}

func actorRole(actor Actor) models.CreatedBy {
	switch actor.Role {
	case models.CreatedByAdmin, models.CreatedBySupervisor:
		return actor.Role
	}
	return models.CreatedBySupervisor
}
