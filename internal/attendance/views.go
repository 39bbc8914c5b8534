package attendance

import (
	"context"
	"fmt"
	"time"

	"fieldtrack/internal/db/models"
	"fieldtrack/internal/geo"
	"fieldtrack/internal/schedule"

	"github.com/google/uuid"
)

// View is an attendance record enriched for display.
type View struct {
	*models.Attendance
	ArrivalDistanceMeters  *int `json:"arrivalDistanceMeters,omitempty"`
	CheckInDistanceMeters  *int `json:"checkInDistanceMeters,omitempty"`
	CheckOutDistanceMeters *int `json:"checkOutDistanceMeters,omitempty"`
	LastSeenDistanceMeters *int `json:"lastSeenDistanceMeters,omitempty"`
	DurationMinutes        *int `json:"durationMinutes,omitempty"`
	// BelowMinimumDuration is informational only; short sessions are not
	// rejected.
	BelowMinimumDuration bool                      `json:"belowMinimumDuration"`
	InterventionStatus   models.InterventionStatus `json:"interventionStatus,omitempty"`
}

// InterventionView is an intervention with its absolute window and the status
// readers should see.
type InterventionView struct {
	*models.Intervention
	PlannedStart  time.Time                 `json:"plannedStart"`
	PlannedEnd    time.Time                 `json:"plannedEnd"`
	DisplayStatus models.InterventionStatus `json:"displayStatus"`
}

// viewBuilder caches lookups across the records of one read.
type viewBuilder struct {
	s             *Service
	now           time.Time
	minDuration   int
	sites         map[uuid.UUID]*models.Site
	interventions map[uuid.UUID]*models.Intervention
}

func (s *Service) newViewBuilder(ctx context.Context) (*viewBuilder, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting settings: %w", err)
	}
	b := &viewBuilder{
		s:             s,
		now:           s.clock(),
		sites:         make(map[uuid.UUID]*models.Site),
		interventions: make(map[uuid.UUID]*models.Intervention),
	}
	if settings != nil {
		b.minDuration = settings.MinimumDurationMinutes
	}
	return b, nil
}

// List returns the records matching filter, newest first.
func (s *Service) List(ctx context.Context, filter models.AttendanceFilter) ([]View, error) {
	records, err := s.attendances.ListAttendances(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing attendances: %w", err)
	}
	b, err := s.newViewBuilder(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]View, 0, len(records))
	for _, rec := range records {
		v, err := b.build(ctx, rec)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Service) FindOne(ctx context.Context, id uuid.UUID) (*View, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := s.newViewBuilder(ctx)
	if err != nil {
		return nil, err
	}
	v, err := b.build(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Interventions lists a site's interventions for a calendar day with their
// display status.
func (s *Service) Interventions(ctx context.Context, siteID uuid.UUID, day time.Time) ([]InterventionView, error) {
	site, err := s.loadSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	loc := s.siteLocation(site)
	interventions, err := s.interventions.ListSiteDayInterventions(ctx, siteID, day)
	if err != nil {
		return nil, fmt.Errorf("error listing interventions: %w", err)
	}
	now := s.clock()
	views := make([]InterventionView, 0, len(interventions))
	for _, iv := range interventions {
		start, end, err := schedule.PlannedWindow(iv, loc)
		if err != nil {
			return nil, fmt.Errorf("intervention %s: %w", iv.ID, err)
		}
		views = append(views, InterventionView{
			Intervention:  iv,
			PlannedStart:  start,
			PlannedEnd:    end,
			DisplayStatus: schedule.DisplayStatus(iv.Status, end, now),
		})
	}
	return views, nil
}

func (b *viewBuilder) build(ctx context.Context, rec *models.Attendance) (View, error) {
	v := View{Attendance: rec}

	site, err := b.site(ctx, rec.SiteID)
	if err != nil {
		return v, err
	}
	if site != nil {
		origin := site.Point()
		v.ArrivalDistanceMeters = distanceOrNil(origin, rec.ArrivalLocation)
		v.CheckInDistanceMeters = distanceOrNil(origin, rec.CheckInLocation)
		v.CheckOutDistanceMeters = distanceOrNil(origin, rec.CheckOutLocation)
		v.LastSeenDistanceMeters = distanceOrNil(origin, rec.LastSeenLocation)
	}

	if rec.CheckInTime != nil && rec.CheckOutTime != nil {
		minutes := int(rec.CheckOutTime.Sub(*rec.CheckInTime) / time.Minute)
		v.DurationMinutes = &minutes
		v.BelowMinimumDuration = b.minDuration > 0 && minutes < b.minDuration
	}

	if rec.InterventionID != nil {
		iv, err := b.intervention(ctx, *rec.InterventionID)
		if err != nil {
			return v, err
		}
		if iv != nil {
			v.InterventionStatus = iv.Status
			if rec.PlannedEnd != nil {
				v.InterventionStatus = schedule.DisplayStatus(iv.Status, *rec.PlannedEnd, b.now)
			}
		}
	}
	return v, nil
}

func (b *viewBuilder) site(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	if site, ok := b.sites[id]; ok {
		return site, nil
	}
	site, err := b.s.sites.GetSite(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting site: %w", err)
	}
	b.sites[id] = site
	return site, nil
}

func (b *viewBuilder) intervention(ctx context.Context, id uuid.UUID) (*models.Intervention, error) {
	if iv, ok := b.interventions[id]; ok {
		return iv, nil
	}
	iv, err := b.s.interventions.GetIntervention(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting intervention: %w", err)
	}
	b.interventions[id] = iv
	return iv, nil
}

func distanceOrNil(a, b *geo.Point) *int {
	d, err := geo.DistanceMeters(a, b)
	if err != nil {
		return nil
	}
	return &d
}
