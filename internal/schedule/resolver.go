// Package schedule matches presence events to the intervention that is due at
// a given instant.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
)

// Default tolerances around a planned window.
const (
	DefaultEarlyTolerance = 30 * time.Minute
	DefaultLateGrace      = 60 * time.Minute
)

var (
	ErrNoScheduledWork = errors.New("no intervention is scheduled for this agent at this site today")
	ErrTooEarly        = errors.New("it is too early to start the scheduled intervention")
	ErrWindowExpired   = errors.New("the scheduled intervention window has expired")
	ErrNoActiveWindow  = errors.New("no intervention is active for this time slot")
)

// InterventionLister returns the interventions of a site on a calendar day.
type InterventionLister interface {
	ListSiteDayInterventions(ctx context.Context, siteID uuid.UUID, day time.Time) ([]*models.Intervention, error)
}

// Resolver finds the intervention whose tolerance window contains an instant.
type Resolver struct {
	interventions  InterventionLister
	earlyTolerance time.Duration
	lateGrace      time.Duration
}

// NewResolver builds a resolver. Negative tolerances fall back to the
// defaults; zero disables the tolerance.
func NewResolver(interventions InterventionLister, earlyTolerance, lateGrace time.Duration) *Resolver {
	if earlyTolerance < 0 {
		earlyTolerance = DefaultEarlyTolerance
	}
	if lateGrace < 0 {
		lateGrace = DefaultLateGrace
	}
	return &Resolver{
		interventions:  interventions,
		earlyTolerance: earlyTolerance,
		lateGrace:      lateGrace,
	}
}

// Request describes a presence event to match.
type Request struct {
	AgentID  uuid.UUID
	SiteID   uuid.UUID
	Location *time.Location
	Now      time.Time
	// AllowBeforeStart opens the window early by the early tolerance.
	AllowBeforeStart bool
	// EarlyTolerance overrides the resolver's early tolerance when set.
	EarlyTolerance *time.Duration
}

// Match is a resolved intervention with its absolute planned window.
type Match struct {
	Intervention *models.Intervention
	PlannedStart time.Time
	PlannedEnd   time.Time
}

type candidate struct {
	Match
	windowStart time.Time
	windowEnd   time.Time
}

// Resolve returns the intervention due for req.AgentID at req.SiteID at req.Now.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Match, error) {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	candidates, err := r.candidates(ctx, req, loc)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoScheduledWork
	}

	for _, c := range candidates {
		if !req.Now.Before(c.windowStart) && !req.Now.After(c.windowEnd) {
			match := c.Match
			return &match, nil
		}
	}

	earliest := candidates[0].windowStart
	latest := candidates[0].windowEnd
	for _, c := range candidates[1:] {
		if c.windowEnd.After(latest) {
			latest = c.windowEnd
		}
	}
	switch {
	case req.Now.Before(earliest):
		return nil, ErrTooEarly
	case req.Now.After(latest):
		return nil, ErrWindowExpired
	default:
		return nil, ErrNoActiveWindow
	}
}

func (r *Resolver) candidates(ctx context.Context, req Request, loc *time.Location) ([]candidate, error) {
	day := Day(req.Now, loc)
	interventions, err := r.interventions.ListSiteDayInterventions(ctx, req.SiteID, day)
	if err != nil {
		return nil, fmt.Errorf("error listing interventions: %w", err)
	}

	early := r.earlyTolerance
	if req.EarlyTolerance != nil && *req.EarlyTolerance >= 0 {
		early = *req.EarlyTolerance
	}

	var candidates []candidate
	for _, iv := range interventions {
		if iv.Status == models.InterventionCancelled || !iv.IsAssigned(req.AgentID) {
			continue
		}
		start, end, err := PlannedWindow(iv, loc)
		if err != nil {
			log.Printf("Skipping intervention %s with unreadable schedule: %v", iv.ID, err)
			continue
		}
		windowStart := start
		if req.AllowBeforeStart {
			windowStart = start.Add(-early)
		}
		candidates = append(candidates, candidate{
			Match:       Match{Intervention: iv, PlannedStart: start, PlannedEnd: end},
			windowStart: windowStart,
			windowEnd:   end.Add(r.lateGrace),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PlannedStart.Before(candidates[j].PlannedStart)
	})
	return candidates, nil
}
