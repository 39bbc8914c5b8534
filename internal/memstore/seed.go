package memstore

import (
	"fmt"
	"os"

	"fieldtrack/internal/db/models"

	"gopkg.in/yaml.v3"
)

// Seed is the fixture format accepted by LoadSeed.
type Seed struct {
	Settings *struct {
		GPSDistanceMeters      int `yaml:"gps_distance_meters"`
		ToleranceMinutes       *int `yaml:"tolerance_minutes"`
		MinimumDurationMinutes int `yaml:"minimum_duration_minutes"`
	} `yaml:"settings"`
	Agents        []models.Agent        `yaml:"agents"`
	Sites         []models.Site         `yaml:"sites"`
	Interventions []models.Intervention `yaml:"interventions"`
}

// LoadSeed reads a YAML fixture and loads it into s.
func (s *Store) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("error parsing seed file: %w", err)
	}
	s.Apply(&seed)
	return nil
}

// Apply loads every entity of seed into s.
func (s *Store) Apply(seed *Seed) {
	if seed.Settings != nil {
		settings := models.DefaultSettings()
		if seed.Settings.GPSDistanceMeters > 0 {
			settings.GPSDistanceMeters = seed.Settings.GPSDistanceMeters
		}
		// An explicit zero disables early check-in.
		if t := seed.Settings.ToleranceMinutes; t != nil && *t >= 0 {
			settings.ToleranceMinutes = *t
		}
		settings.MinimumDurationMinutes = seed.Settings.MinimumDurationMinutes
		s.SetSettings(settings)
	}
	for i := range seed.Agents {
		s.PutAgent(&seed.Agents[i])
	}
	for i := range seed.Sites {
		s.PutSite(&seed.Sites[i])
	}
	for i := range seed.Interventions {
		iv := seed.Interventions[i]
		if iv.Status == "" {
			iv.Status = models.InterventionPlanned
		}
		s.PutIntervention(&iv)
	}
}
