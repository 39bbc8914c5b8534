package models

import "errors"

// Errors shared by every store implementation.
var (
	// ErrOpenAttendanceExists is returned when creating a PENDING record would
	// give an agent two open records for the same site and day.
	ErrOpenAttendanceExists = errors.New("an open attendance record already exists for this agent, site and day")
	// ErrAttendanceClosed is returned by conditional updates when the record is
	// no longer PENDING.
	ErrAttendanceClosed = errors.New("attendance record is already closed")
	// ErrAttendanceChanged is returned by conditional updates when the record
	// is still PENDING but was written since the caller read it.
	ErrAttendanceChanged = errors.New("attendance record was modified concurrently")
)
