package models

import (
	"time"

	"github.com/google/uuid"
)

// Default values used when the settings row is first created.
const (
	DefaultGPSDistanceMeters = 100
	DefaultToleranceMinutes  = 30
)

// Settings holds the process-wide geofence parameters. There is a single row.
type Settings struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	GPSDistanceMeters      int       `db:"gps_distance_meters" json:"gpsDistanceMeters"`
	ToleranceMinutes       int       `db:"tolerance_minutes" json:"toleranceMinutes"`
	MinimumDurationMinutes int       `db:"minimum_duration_minutes" json:"minimumDurationMinutes"`
	CreatedAt              time.Time `db:"created_at" json:"createdAt"`
}

// DefaultSettings returns a settings row populated with the defaults.
func DefaultSettings() *Settings {
	return &Settings{
		ID:                uuid.New(),
		GPSDistanceMeters: DefaultGPSDistanceMeters,
		ToleranceMinutes:  DefaultToleranceMinutes,
		CreatedAt:         time.Now(),
	}
}
