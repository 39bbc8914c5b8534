package attendance

import (
	"context"
	"time"

	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
)

// AttendanceStore persists attendance records.
//
// Lookups return nil, nil when nothing matches. CreateAttendance must fail
// with models.ErrOpenAttendanceExists when the record is PENDING and another
// PENDING record exists for the same agent, site and day.
// Both updates bump a.Version. UpdateOpenAttendance only writes when the
// stored record is still PENDING (models.ErrAttendanceClosed otherwise) and
// still carries a.Version (models.ErrAttendanceChanged otherwise).
type AttendanceStore interface {
	GetAttendance(ctx context.Context, id uuid.UUID) (*models.Attendance, error)
	FindOpenAttendance(ctx context.Context, agentID, siteID uuid.UUID, day time.Time) (*models.Attendance, error)
	LatestOpenAttendance(ctx context.Context, agentID uuid.UUID) (*models.Attendance, error)
	ListOpenAttendances(ctx context.Context) ([]*models.Attendance, error)
	ListSiteDayAttendances(ctx context.Context, siteID uuid.UUID, day time.Time) ([]*models.Attendance, error)
	ListAttendances(ctx context.Context, filter models.AttendanceFilter) ([]*models.Attendance, error)
	CreateAttendance(ctx context.Context, a *models.Attendance) error
	UpdateOpenAttendance(ctx context.Context, a *models.Attendance) error
	UpdateAttendance(ctx context.Context, a *models.Attendance) error
}

// InterventionStore reads and mutates scheduled jobs.
type InterventionStore interface {
	ListSiteDayInterventions(ctx context.Context, siteID uuid.UUID, day time.Time) ([]*models.Intervention, error)
	GetIntervention(ctx context.Context, id uuid.UUID) (*models.Intervention, error)
	UpdateInterventionStatus(ctx context.Context, id uuid.UUID, status models.InterventionStatus) error
	UpdateInterventionObservation(ctx context.Context, id uuid.UUID, observation string) error
}

type SiteLookup interface {
	GetSite(ctx context.Context, id uuid.UUID) (*models.Site, error)
}

type SettingsReader interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
}

// Audience of a notification.
type Audience string

const AudienceAgent Audience = "AGENT"

type Notification struct {
	Audience Audience
	TargetID uuid.UUID
	Title    string
	Message  string
}

// Notifier delivers a message to a person. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Broadcaster fans an event out to connected observers. Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) error
}

type AuditRecorder interface {
	RecordAudit(ctx context.Context, entry *models.AuditLog) error
}

// Realtime event names.
const (
	EventCheckIn  = "attendance.checkin"
	EventArrival  = "attendance.arrival"
	EventCheckOut = "attendance.checkout"
)
