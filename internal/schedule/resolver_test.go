package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
)

type fakeInterventions []*models.Intervention

func (f fakeInterventions) ListSiteDayInterventions(_ context.Context, siteID uuid.UUID, day time.Time) ([]*models.Intervention, error) {
	var out []*models.Intervention
	for _, iv := range f {
		if iv.SiteID == siteID && iv.Date.Equal(day) {
			out = append(out, iv)
		}
	}
	return out, nil
}

var (
	testAgent = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testSite  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func newIntervention(day time.Time, start, end string, status models.InterventionStatus, agents ...uuid.UUID) *models.Intervention {
	iv := &models.Intervention{
		ID:        uuid.New(),
		SiteID:    testSite,
		Date:      day,
		StartTime: start,
		EndTime:   end,
		Status:    status,
	}
	for _, a := range agents {
		iv.AssignedAgentIDs = append(iv.AssignedAgentIDs, a.String())
	}
	return iv
}

func TestResolveWithinEarlyTolerance(t *testing.T) {
	loc := mustLoad(t, "Europe/Zurich")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	iv := newIntervention(day, "06:00", "09:00", models.InterventionPlanned, testAgent)
	r := NewResolver(fakeInterventions{iv}, DefaultEarlyTolerance, DefaultLateGrace)

	now := time.Date(2026, 3, 10, 5, 45, 0, 0, loc)
	match, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: now, AllowBeforeStart: true})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if match.Intervention.ID != iv.ID {
		t.Errorf("Expected intervention %s, got %s", iv.ID, match.Intervention.ID)
	}
	if !match.PlannedStart.Equal(time.Date(2026, 3, 10, 6, 0, 0, 0, loc)) {
		t.Errorf("Unexpected planned start %v", match.PlannedStart)
	}

	if _, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: now}); !errors.Is(err, ErrTooEarly) {
		t.Errorf("Expected ErrTooEarly without early tolerance, got %v", err)
	}
}

func TestResolveEarlyToleranceCanBeDisabled(t *testing.T) {
	loc := mustLoad(t, "Europe/Zurich")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	iv := newIntervention(day, "06:00", "09:00", models.InterventionPlanned, testAgent)
	early := time.Date(2026, 3, 10, 5, 45, 0, 0, loc)

	r := NewResolver(fakeInterventions{iv}, 0, DefaultLateGrace)
	if _, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: early, AllowBeforeStart: true}); !errors.Is(err, ErrTooEarly) {
		t.Errorf("Expected ErrTooEarly with a zero tolerance, got %v", err)
	}

	// A per-request tolerance wins over the resolver's.
	quarter := 15 * time.Minute
	if _, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: early, AllowBeforeStart: true, EarlyTolerance: &quarter}); err != nil {
		t.Errorf("Expected a match with a 15 minute override, got %v", err)
	}
	none := time.Duration(0)
	wide := NewResolver(fakeInterventions{iv}, DefaultEarlyTolerance, DefaultLateGrace)
	if _, err := wide.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: early, AllowBeforeStart: true, EarlyTolerance: &none}); !errors.Is(err, ErrTooEarly) {
		t.Errorf("Expected a zero override to disable early check-in, got %v", err)
	}

	if got := NewResolver(fakeInterventions{iv}, -time.Minute, -time.Minute); got.earlyTolerance != DefaultEarlyTolerance || got.lateGrace != DefaultLateGrace {
		t.Errorf("Expected negative tolerances to fall back to defaults, got %s/%s", got.earlyTolerance, got.lateGrace)
	}
}

func TestResolveBoundaries(t *testing.T) {
	loc := mustLoad(t, "Europe/Paris")
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	iv := newIntervention(day, "06:00", "09:00", models.InterventionPlanned, testAgent)
	r := NewResolver(fakeInterventions{iv}, DefaultEarlyTolerance, DefaultLateGrace)

	cases := []struct {
		name string
		at   time.Time
		want error
	}{
		{"31 minutes early", time.Date(2026, 6, 1, 5, 29, 0, 0, loc), ErrTooEarly},
		{"exactly 30 minutes early", time.Date(2026, 6, 1, 5, 30, 0, 0, loc), nil},
		{"during", time.Date(2026, 6, 1, 7, 0, 0, 0, loc), nil},
		{"end of grace", time.Date(2026, 6, 1, 10, 0, 0, 0, loc), nil},
		{"61 minutes late", time.Date(2026, 6, 1, 10, 1, 0, 0, loc), ErrWindowExpired},
	}
	for _, tc := range cases {
		_, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: tc.at, AllowBeforeStart: true})
		if tc.want == nil && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestResolveGapBetweenWindows(t *testing.T) {
	loc := mustLoad(t, "Europe/Paris")
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	morning := newIntervention(day, "06:00", "08:00", models.InterventionPlanned, testAgent)
	evening := newIntervention(day, "18:00", "20:00", models.InterventionPlanned, testAgent)
	r := NewResolver(fakeInterventions{evening, morning}, DefaultEarlyTolerance, DefaultLateGrace)

	_, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: time.Date(2026, 6, 1, 12, 0, 0, 0, loc), AllowBeforeStart: true})
	if !errors.Is(err, ErrNoActiveWindow) {
		t.Fatalf("Expected ErrNoActiveWindow, got %v", err)
	}

	match, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: time.Date(2026, 6, 1, 17, 40, 0, 0, loc), AllowBeforeStart: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match.Intervention.ID != evening.ID {
		t.Errorf("Expected evening intervention")
	}
}

func TestResolveIgnoresCancelledAndUnassigned(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	other := uuid.New()
	cancelled := newIntervention(day, "06:00", "09:00", models.InterventionCancelled, testAgent)
	notMine := newIntervention(day, "06:00", "09:00", models.InterventionPlanned, other)
	r := NewResolver(fakeInterventions{cancelled, notMine}, DefaultEarlyTolerance, DefaultLateGrace)

	_, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: time.Date(2026, 6, 1, 7, 0, 0, 0, loc)})
	if !errors.Is(err, ErrNoScheduledWork) {
		t.Fatalf("Expected ErrNoScheduledWork, got %v", err)
	}
}

func TestResolveUsesLocalCalendarDay(t *testing.T) {
	// 23:30 UTC on May 31 is already June 1 in Paris.
	loc := mustLoad(t, "Europe/Paris")
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	iv := newIntervention(day, "01:00", "03:00", models.InterventionPlanned, testAgent)
	r := NewResolver(fakeInterventions{iv}, DefaultEarlyTolerance, DefaultLateGrace)

	now := time.Date(2026, 5, 31, 23, 30, 0, 0, time.UTC)
	if _, err := r.Resolve(context.Background(), Request{AgentID: testAgent, SiteID: testSite, Location: loc, Now: now, AllowBeforeStart: true}); err != nil {
		t.Fatalf("Expected match on the local day, got %v", err)
	}
}

func TestPlannedWindowAcrossDST(t *testing.T) {
	loc := mustLoad(t, "Europe/Paris")
	// Clocks go forward on 2026-03-29 at 02:00.
	day := time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC)
	iv := newIntervention(day, "01:00", "05:00", models.InterventionPlanned, testAgent)
	start, end, err := PlannedWindow(iv, loc)
	if err != nil {
		t.Fatal(err)
	}
	if got := end.Sub(start); got != 3*time.Hour {
		t.Errorf("Expected a 3h window across the DST change, got %v", got)
	}
	if _, offset := start.Zone(); offset != 3600 {
		t.Errorf("Expected +01:00 before the change, got %d", offset)
	}
	if _, offset := end.Zone(); offset != 7200 {
		t.Errorf("Expected +02:00 after the change, got %d", offset)
	}
}

func TestPlannedWindowOvernight(t *testing.T) {
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	iv := newIntervention(day, "22:00", "02:00", models.InterventionPlanned, testAgent)
	start, end, err := PlannedWindow(iv, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if end.Sub(start) != 4*time.Hour {
		t.Errorf("Expected 4h overnight window, got %v", end.Sub(start))
	}
}

func TestDisplayStatus(t *testing.T) {
	end := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	before := end.Add(-time.Minute)
	after := end.Add(time.Minute)

	cases := []struct {
		status models.InterventionStatus
		now    time.Time
		want   models.InterventionStatus
	}{
		{models.InterventionPlanned, before, models.InterventionPlanned},
		{models.InterventionPlanned, after, models.InterventionNoShow},
		{models.InterventionInProgress, after, models.InterventionNoShow},
		{models.InterventionCompleted, after, models.InterventionCompleted},
		{models.InterventionCancelled, after, models.InterventionCancelled},
		{models.InterventionNeedsReview, after, models.InterventionNeedsReview},
	}
	for _, tc := range cases {
		if got := DisplayStatus(tc.status, end, tc.now); got != tc.want {
			t.Errorf("DisplayStatus(%s) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestLoadLocationFallback(t *testing.T) {
	if got := LoadLocation("", time.UTC); got != time.UTC {
		t.Errorf("Expected fallback for empty name")
	}
	if got := LoadLocation("Not/AZone", time.UTC); got != time.UTC {
		t.Errorf("Expected fallback for unknown zone")
	}
	if got := LoadLocation("Europe/Paris", time.UTC); got.String() != "Europe/Paris" {
		t.Errorf("Expected Europe/Paris, got %s", got)
	}
}
