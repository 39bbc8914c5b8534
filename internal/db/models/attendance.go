package models

import (
	"time"

	"fieldtrack/internal/geo"

	"github.com/google/uuid"
)

type AttendanceStatus string

const (
	AttendancePending   AttendanceStatus = "PENDING"
	AttendanceCompleted AttendanceStatus = "COMPLETED"
	AttendanceCancelled AttendanceStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePending, AttendanceCompleted, AttendanceCancelled:
		return true
	}
	return false
}

type CreatedBy string

const (
	CreatedByAgent      CreatedBy = "AGENT"
	CreatedBySupervisor CreatedBy = "SUPERVISOR"
	CreatedByAdmin      CreatedBy = "ADMIN"
)

// Attendance is the per-agent, per-site, per-day presence record.
// Day is the site-local calendar date, stored at UTC midnight.
type Attendance struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AgentID        uuid.UUID  `db:"agent_id" json:"agentId"`
	SiteID         uuid.UUID  `db:"site_id" json:"siteId"`
	ClientID       uuid.UUID  `db:"client_id" json:"clientId"`
	InterventionID *uuid.UUID `db:"intervention_id" json:"interventionId,omitempty"`
	Day            time.Time  `db:"day" json:"day"`

	ArrivalTime  *time.Time `db:"arrival_time" json:"arrivalTime,omitempty"`
	CheckInTime  *time.Time `db:"check_in_time" json:"checkInTime,omitempty"`
	CheckOutTime *time.Time `db:"check_out_time" json:"checkOutTime,omitempty"`
	PlannedStart *time.Time `db:"planned_start" json:"plannedStart,omitempty"`
	PlannedEnd   *time.Time `db:"planned_end" json:"plannedEnd,omitempty"`

	ArrivalLocation  *geo.Point `json:"arrivalLocation,omitempty"`
	CheckInLocation  *geo.Point `json:"checkInLocation,omitempty"`
	CheckOutLocation *geo.Point `json:"checkOutLocation,omitempty"`
	LastSeenAt       *time.Time `db:"last_seen_at" json:"lastSeenAt,omitempty"`
	LastSeenLocation *geo.Point `json:"lastSeenLocation,omitempty"`

	OutsideSince *time.Time `db:"outside_since" json:"outsideSince,omitempty"`

	Status    AttendanceStatus `db:"status" json:"status"`
	Manual    bool             `db:"manual" json:"manual"`
	CreatedBy CreatedBy        `db:"created_by" json:"createdBy"`
	Note      string           `db:"note" json:"note"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time        `db:"updated_at" json:"updatedAt"`

	// Version is bumped by the store on every update.
	Version int `db:"version" json:"version"`
}

// IsOpen reports whether the record is still awaiting closure.
func (a *Attendance) IsOpen() bool {
	return a.Status == AttendancePending && a.CheckOutTime == nil
}

// Close moves an open record to a terminal status.
func (a *Attendance) Close(status AttendanceStatus, at time.Time) {
	a.Status = status
	if a.CheckOutTime == nil {
		a.CheckOutTime = &at
	}
	a.OutsideSince = nil
	a.UpdatedAt = at
}

// Clone returns a copy that shares no pointers with a.
func (a *Attendance) Clone() *Attendance {
	if a == nil {
		return nil
	}
	c := *a
	c.InterventionID = cloneUUID(a.InterventionID)
	c.ArrivalTime = cloneTime(a.ArrivalTime)
	c.CheckInTime = cloneTime(a.CheckInTime)
	c.CheckOutTime = cloneTime(a.CheckOutTime)
	c.PlannedStart = cloneTime(a.PlannedStart)
	c.PlannedEnd = cloneTime(a.PlannedEnd)
	c.ArrivalLocation = clonePoint(a.ArrivalLocation)
	c.CheckInLocation = clonePoint(a.CheckInLocation)
	c.CheckOutLocation = clonePoint(a.CheckOutLocation)
	c.LastSeenAt = cloneTime(a.LastSeenAt)
	c.LastSeenLocation = clonePoint(a.LastSeenLocation)
	c.OutsideSince = cloneTime(a.OutsideSince)
	return &c
}

// AttendanceFilter narrows List queries. Zero values are ignored.
type AttendanceFilter struct {
	AgentID  *uuid.UUID
	SiteID   *uuid.UUID
	ClientID *uuid.UUID
	Status   AttendanceStatus
	From     *time.Time
	To       *time.Time
	Limit    int
}

// Matches applies the filter in memory. From and To bound Day inclusively.
func (f AttendanceFilter) Matches(a *Attendance) bool {
	if f.AgentID != nil && a.AgentID != *f.AgentID {
		return false
	}
	if f.SiteID != nil && a.SiteID != *f.SiteID {
		return false
	}
	if f.ClientID != nil && a.ClientID != *f.ClientID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.From != nil && a.Day.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Day.After(*f.To) {
		return false
	}
	return true
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func clonePoint(p *geo.Point) *geo.Point {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
