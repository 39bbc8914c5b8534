package models

import (
	"fieldtrack/internal/geo"

	"github.com/google/uuid"
)

type Site struct {
	ID        uuid.UUID `db:"id" json:"id" yaml:"id"`
	ClientID  uuid.UUID `db:"client_id" json:"clientId" yaml:"client_id"`
	Name      string    `db:"name" json:"name" yaml:"name"`
	Latitude  *float64  `db:"latitude" json:"latitude" yaml:"latitude"`
	Longitude *float64  `db:"longitude" json:"longitude" yaml:"longitude"`
	Active    bool      `db:"active" json:"active" yaml:"active"`
	// Timezone is an IANA zone name. Empty means the configured default.
	Timezone string `db:"timezone" json:"timezone" yaml:"timezone"`
}

// Point returns the registered coordinates, or nil when the site has none.
func (s *Site) Point() *geo.Point {
	return geo.NewPoint(s.Latitude, s.Longitude)
}
