// Package memstore is an in-process implementation of the attendance store
// ports. It enforces the same one-open-record-per-day rule as the Postgres
// schema.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
)

type openKey struct {
	agentID uuid.UUID
	siteID  uuid.UUID
	day     time.Time
}

// Store is safe for concurrent use. Every value crossing the API is copied.
type Store struct {
	mu            sync.RWMutex
	attendances   map[uuid.UUID]*models.Attendance
	open          map[openKey]uuid.UUID
	interventions map[uuid.UUID]*models.Intervention
	sites         map[uuid.UUID]*models.Site
	agents        map[uuid.UUID]*models.Agent
	settings      *models.Settings
	audit         []*models.AuditLog
}

func New() *Store {
	return &Store{
		attendances:   make(map[uuid.UUID]*models.Attendance),
		open:          make(map[openKey]uuid.UUID),
		interventions: make(map[uuid.UUID]*models.Intervention),
		sites:         make(map[uuid.UUID]*models.Site),
		agents:        make(map[uuid.UUID]*models.Agent),
	}
}

func keyOf(a *models.Attendance) openKey {
	return openKey{agentID: a.AgentID, siteID: a.SiteID, day: a.Day.UTC()}
}

// --- Attendances ---

func (s *Store) GetAttendance(_ context.Context, id uuid.UUID) (*models.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attendances[id].Clone(), nil
}

func (s *Store) FindOpenAttendance(_ context.Context, agentID, siteID uuid.UUID, day time.Time) (*models.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.open[openKey{agentID: agentID, siteID: siteID, day: day.UTC()}]
	if !ok {
		return nil, nil
	}
	return s.attendances[id].Clone(), nil
}

func (s *Store) LatestOpenAttendance(_ context.Context, agentID uuid.UUID) (*models.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Attendance
	for _, a := range s.attendances {
		if a.AgentID != agentID || !a.IsOpen() {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	return latest.Clone(), nil
}

func (s *Store) ListOpenAttendances(_ context.Context) ([]*models.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attendance
	for _, id := range s.open {
		out = append(out, s.attendances[id].Clone())
	}
	sortByCreated(out, false)
	return out, nil
}

func (s *Store) ListSiteDayAttendances(_ context.Context, siteID uuid.UUID, day time.Time) ([]*models.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attendance
	for _, a := range s.attendances {
		if a.SiteID == siteID && sameDate(a.Day, day) {
			out = append(out, a.Clone())
		}
	}
	sortByCreated(out, false)
	return out, nil
}

func (s *Store) ListAttendances(_ context.Context, filter models.AttendanceFilter) ([]*models.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attendance
	for _, a := range s.attendances {
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	sortByCreated(out, true)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CreateAttendance(_ context.Context, a *models.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status == models.AttendancePending {
		if _, exists := s.open[keyOf(a)]; exists {
			return models.ErrOpenAttendanceExists
		}
		s.open[keyOf(a)] = a.ID
	}
	s.attendances[a.ID] = a.Clone()
	return nil
}

func (s *Store) UpdateOpenAttendance(_ context.Context, a *models.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attendances[a.ID]
	if !ok || current.Status != models.AttendancePending {
		return models.ErrAttendanceClosed
	}
	if current.Version != a.Version {
		return models.ErrAttendanceChanged
	}
	return s.replace(current, a)
}

func (s *Store) UpdateAttendance(_ context.Context, a *models.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attendances[a.ID]
	if !ok {
		return nil
	}
	return s.replace(current, a)
}

// replace swaps current for next while keeping the open index consistent and
// bumps next.Version. It must be called with s.mu held.
func (s *Store) replace(current, next *models.Attendance) error {
	if next.Status == models.AttendancePending {
		if id, exists := s.open[keyOf(next)]; exists && id != next.ID {
			return models.ErrOpenAttendanceExists
		}
	}
	if current.Status == models.AttendancePending {
		delete(s.open, keyOf(current))
	}
	if next.Status == models.AttendancePending {
		s.open[keyOf(next)] = next.ID
	}
	next.Version = current.Version + 1
	s.attendances[next.ID] = next.Clone()
	return nil
}

// --- Interventions ---

func (s *Store) PutIntervention(iv *models.Intervention) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interventions[iv.ID] = cloneIntervention(iv)
}

func (s *Store) ListSiteDayInterventions(_ context.Context, siteID uuid.UUID, day time.Time) ([]*models.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Intervention
	for _, iv := range s.interventions {
		if iv.SiteID == siteID && sameDate(iv.Date, day) {
			out = append(out, cloneIntervention(iv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (s *Store) GetIntervention(_ context.Context, id uuid.UUID) (*models.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interventions[id]
	if !ok {
		return nil, nil
	}
	return cloneIntervention(iv), nil
}

func (s *Store) UpdateInterventionStatus(_ context.Context, id uuid.UUID, status models.InterventionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if iv, ok := s.interventions[id]; ok {
		iv.Status = status
	}
	return nil
}

func (s *Store) UpdateInterventionObservation(_ context.Context, id uuid.UUID, observation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if iv, ok := s.interventions[id]; ok {
		iv.Observation = observation
	}
	return nil
}

// --- Sites, agents, settings, audit ---

func (s *Store) PutSite(site *models.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *site
	s.sites[site.ID] = &c
}

func (s *Store) GetSite(_ context.Context, id uuid.UUID) (*models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, nil
	}
	c := *site
	return &c, nil
}

func (s *Store) PutAgent(agent *models.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *agent
	s.agents[agent.ID] = &c
}

func (s *Store) GetAgent(_ context.Context, id uuid.UUID) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	c := *agent
	return &c, nil
}

func (s *Store) GetAgentByDiscordID(_ context.Context, discordID string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, agent := range s.agents {
		if agent.DiscordID == discordID {
			c := *agent
			return &c, nil
		}
	}
	return nil, nil
}

// SetSettings replaces the settings row.
func (s *Store) SetSettings(settings *models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *settings
	s.settings = &c
}

// GetSettings returns the settings row, creating it with defaults if needed.
func (s *Store) GetSettings(_ context.Context) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		s.settings = models.DefaultSettings()
	}
	c := *s.settings
	return &c, nil
}

func (s *Store) RecordAudit(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *entry
	s.audit = append(s.audit, &c)
	return nil
}

// AuditLogs returns the recorded audit entries in insertion order.
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditLog, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, *e)
	}
	return out
}

func cloneIntervention(iv *models.Intervention) *models.Intervention {
	c := *iv
	c.AssignedAgentIDs = append([]string(nil), iv.AssignedAgentIDs...)
	return &c
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sortByCreated(list []*models.Attendance, newestFirst bool) {
	sort.Slice(list, func(i, j int) bool {
		if newestFirst {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
