package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
)

func TestFindOneEnrichesRecord(t *testing.T) {
	f := newFixture(t, agentA)
	ctx := context.Background()
	f.store.SetSettings(&models.Settings{ID: uuid.New(), GPSDistanceMeters: 200, ToleranceMinutes: 30, MinimumDurationMinutes: 60})

	opened, err := f.svc.CheckIn(ctx, agentA, siteID, nearby)
	if err != nil {
		t.Fatal(err)
	}
	f.at(6, 15)
	if _, err := f.svc.CheckOut(ctx, agentA, &geneva); err != nil {
		t.Fatal(err)
	}

	v, err := f.svc.FindOne(ctx, opened.ID)
	if err != nil {
		t.Fatalf("FindOne returned error: %v", err)
	}
	if v.CheckInDistanceMeters == nil || *v.CheckInDistanceMeters < 140 || *v.CheckInDistanceMeters > 160 {
		t.Errorf("Unexpected check-in distance %v", v.CheckInDistanceMeters)
	}
	if v.CheckOutDistanceMeters == nil || *v.CheckOutDistanceMeters != 0 {
		t.Errorf("Expected zero check-out distance, got %v", v.CheckOutDistanceMeters)
	}
	if v.ArrivalDistanceMeters != nil {
		t.Errorf("Expected no arrival distance")
	}
	if v.DurationMinutes == nil || *v.DurationMinutes != 30 {
		t.Errorf("Expected 30 minute duration, got %v", v.DurationMinutes)
	}
	if !v.BelowMinimumDuration {
		t.Errorf("Expected session to be flagged below minimum duration")
	}
	if v.InterventionStatus != models.InterventionCompleted {
		t.Errorf("Expected intervention status COMPLETED, got %s", v.InterventionStatus)
	}

	if _, err := f.svc.FindOne(ctx, uuid.New()); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestListFiltersByAgent(t *testing.T) {
	f := newFixture(t, agentA, agentB)
	ctx := context.Background()

	for _, a := range []uuid.UUID{agentA, agentB} {
		if _, err := f.svc.CheckIn(ctx, a, siteID, geneva); err != nil {
			t.Fatal(err)
		}
	}

	all, err := f.svc.List(ctx, models.AttendanceFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 views, got %d", len(all))
	}

	id := agentB
	only, err := f.svc.List(ctx, models.AttendanceFilter{AgentID: &id})
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].AgentID != agentB {
		t.Errorf("Expected only agent B's record, got %+v", only)
	}
}

func TestInterventionsShowNoShow(t *testing.T) {
	f := newFixture(t, agentA)
	ctx := context.Background()

	views, err := f.svc.Interventions(ctx, siteID, testDay)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].DisplayStatus != models.InterventionPlanned {
		t.Fatalf("Expected PLANNED before the end, got %+v", views)
	}
	wantEnd := time.Date(2026, 6, 1, 9, 0, 0, 0, f.zurich)
	if !views[0].PlannedEnd.Equal(wantEnd) {
		t.Errorf("Expected planned end %v, got %v", wantEnd, views[0].PlannedEnd)
	}

	f.at(9, 1)
	views, err = f.svc.Interventions(ctx, siteID, testDay)
	if err != nil {
		t.Fatal(err)
	}
	if views[0].DisplayStatus != models.InterventionNoShow {
		t.Errorf("Expected NO_SHOW after the planned end, got %s", views[0].DisplayStatus)
	}
	if views[0].Status != models.InterventionPlanned {
		t.Errorf("Stored status must not change, got %s", views[0].Status)
	}
}
