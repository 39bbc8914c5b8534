package drift

import (
	"context"
	"sync"
	"testing"
	"time"

	"fieldtrack/internal/attendance"
	"fieldtrack/internal/db/models"
	"fieldtrack/internal/geo"
	"fieldtrack/internal/memstore"

	"github.com/google/uuid"
)

var (
	genevaAgent = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	genevaSite  = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	genevaHQ    = geo.Point{Lat: 46.2044, Lon: 6.1432}
	// Roughly 150m north of the site.
	outsideHQ = geo.Point{Lat: 46.20575, Lon: 6.1432}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type genevaFixture struct {
	store    *memstore.Store
	svc      *attendance.Service
	clock    *testClock
	notifier *countingNotifier
	zurich   *time.Location
	iv       *models.Intervention
}

func newGenevaFixture(t *testing.T) *genevaFixture {
	t.Helper()
	zurich, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	store := memstore.New()
	lat, lon := genevaHQ.Lat, genevaHQ.Lon
	store.PutSite(&models.Site{
		ID:        genevaSite,
		ClientID:  uuid.New(),
		Name:      "Geneva HQ",
		Latitude:  &lat,
		Longitude: &lon,
		Active:    true,
		Timezone:  "Europe/Zurich",
	})
	iv := &models.Intervention{
		ID:               uuid.New(),
		SiteID:           genevaSite,
		Date:             time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:        "06:00",
		EndTime:          "09:00",
		AssignedAgentIDs: []string{genevaAgent.String()},
		Status:           models.InterventionPlanned,
	}
	store.PutIntervention(iv)
	store.SetSettings(&models.Settings{ID: uuid.New(), GPSDistanceMeters: 100, ToleranceMinutes: 30})

	clock := &testClock{now: time.Date(2026, 6, 1, 5, 45, 0, 0, zurich)}
	svc, err := attendance.New(attendance.Deps{
		Attendances:   store,
		Interventions: store,
		Sites:         store,
		Settings:      store,
	}, attendance.WithClock(clock.Now), attendance.WithLocation(zurich))
	if err != nil {
		t.Fatalf("attendance.New returned error: %v", err)
	}
	return &genevaFixture{store: store, svc: svc, clock: clock, notifier: &countingNotifier{}, zurich: zurich, iv: iv}
}

func (f *genevaFixture) at(hour, minute int) {
	f.clock.Set(time.Date(2026, 6, 1, hour, minute, 0, 0, f.zurich))
}

func (f *genevaFixture) monitor(sessions Sessions) *Monitor {
	return New(sessions, f.notifier, Config{Grace: 5 * time.Minute}, WithClock(f.clock.Now))
}

func TestSweepClosesDriftedGenevaSession(t *testing.T) {
	f := newGenevaFixture(t)
	ctx := context.Background()

	rec, err := f.svc.CheckIn(ctx, genevaAgent, genevaSite, genevaHQ)
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	f.at(7, 0)
	if _, err := f.svc.Heartbeat(ctx, genevaAgent, genevaSite, outsideHQ); err != nil {
		t.Fatalf("Heartbeat returned error: %v", err)
	}

	m := f.monitor(f.svc)

	f.at(7, 4)
	if got := m.Sweep(ctx); got != 0 {
		t.Fatalf("Expected nothing closed within the grace period, got %d", got)
	}

	f.at(7, 5)
	if got := m.Sweep(ctx); got != 1 {
		t.Fatalf("Expected the drifted session to be closed, got %d", got)
	}

	stored, _ := f.store.GetAttendance(ctx, rec.ID)
	if stored.Status != models.AttendanceCompleted || stored.CheckOutTime == nil || stored.OutsideSince != nil {
		t.Errorf("Unexpected closed record %+v", stored)
	}
	if !stored.CheckOutTime.Equal(f.clock.Now()) {
		t.Errorf("Expected check-out at 07:05, got %v", stored.CheckOutTime)
	}

	iv, _ := f.store.GetIntervention(ctx, f.iv.ID)
	if iv.Status != models.InterventionCompleted {
		t.Errorf("Expected intervention COMPLETED, got %s", iv.Status)
	}
	if iv.Observation == "" {
		t.Errorf("Expected the intervention observation to record the automatic closure")
	}

	if len(f.notifier.got) != 1 || f.notifier.got[0].TargetID != genevaAgent || f.notifier.got[0].Title != "Session closed automatically" {
		t.Errorf("Expected one auto-close notification, got %+v", f.notifier.got)
	}

	// Nothing is left to close.
	f.at(7, 30)
	if got := m.Sweep(ctx); got != 0 {
		t.Errorf("Expected an idle sweep, got %d", got)
	}
}

// returningSessions lets the agent walk back on site right after the sweep
// has listed the open sessions.
type returningSessions struct {
	*attendance.Service
	afterList func()
}

func (r *returningSessions) OpenSessions(ctx context.Context) ([]*models.Attendance, error) {
	open, err := r.Service.OpenSessions(ctx)
	r.afterList()
	return open, err
}

func TestSweepLeavesSessionOfReturningAgent(t *testing.T) {
	f := newGenevaFixture(t)
	ctx := context.Background()

	rec, err := f.svc.CheckIn(ctx, genevaAgent, genevaSite, genevaHQ)
	if err != nil {
		t.Fatal(err)
	}
	f.at(6, 30)
	if _, err := f.svc.Heartbeat(ctx, genevaAgent, genevaSite, outsideHQ); err != nil {
		t.Fatal(err)
	}

	f.at(6, 40)
	sessions := &returningSessions{Service: f.svc, afterList: func() {
		if _, err := f.svc.Heartbeat(ctx, genevaAgent, genevaSite, genevaHQ); err != nil {
			t.Errorf("Heartbeat returned error: %v", err)
		}
	}}
	if got := f.monitor(sessions).Sweep(ctx); got != 0 {
		t.Fatalf("Expected no session closed, got %d", got)
	}

	stored, _ := f.store.GetAttendance(ctx, rec.ID)
	if stored.Status != models.AttendancePending || stored.OutsideSince != nil {
		t.Errorf("Expected the session to stay open, got %+v", stored)
	}
	if stored.LastSeenAt == nil || !stored.LastSeenAt.Equal(f.clock.Now()) {
		t.Errorf("Expected the 06:40 heartbeat to be kept, got %v", stored.LastSeenAt)
	}
	iv, _ := f.store.GetIntervention(ctx, f.iv.ID)
	if iv.Status == models.InterventionCompleted {
		t.Errorf("Expected the intervention to stay open, got %s", iv.Status)
	}
	if len(f.notifier.got) != 0 {
		t.Errorf("Expected no auto-close notification, got %+v", f.notifier.got)
	}
}
