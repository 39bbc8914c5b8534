package drift

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldtrack/internal/attendance"
	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
)

type fakeSessions struct {
	mu      sync.Mutex
	open    []*models.Attendance
	failFor map[uuid.UUID]error
	panicOn uuid.UUID
	closed  []uuid.UUID
}

func (f *fakeSessions) OpenSessions(context.Context) ([]*models.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Attendance, 0, len(f.open))
	for _, rec := range f.open {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (f *fakeSessions) AutoClose(_ context.Context, open *models.Attendance, _ time.Time) (*models.Attendance, error) {
	if open.ID == f.panicOn {
		panic("boom")
	}
	if err := f.failFor[open.ID]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, open.ID)
	rec := open.Clone()
	rec.Close(models.AttendanceCompleted, time.Now())
	return rec, nil
}

type countingNotifier struct {
	mu  sync.Mutex
	got []attendance.Notification
}

func (c *countingNotifier) Send(_ context.Context, n attendance.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return nil
}

func openSince(since *time.Time) *models.Attendance {
	return &models.Attendance{
		ID:           uuid.New(),
		AgentID:      uuid.New(),
		SiteID:       uuid.New(),
		Status:       models.AttendancePending,
		OutsideSince: since,
	}
}

func TestSweepClosesOnlyExpiredDrift(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	longAgo := now.Add(-6 * time.Minute)
	recent := now.Add(-2 * time.Minute)

	expired := openSince(&longAgo)
	fresh := openSince(&recent)
	inside := openSince(nil)
	sessions := &fakeSessions{open: []*models.Attendance{expired, fresh, inside}}
	notifier := &countingNotifier{}

	m := New(sessions, notifier, Config{}, WithClock(func() time.Time { return now }))
	if got := m.Sweep(context.Background()); got != 1 {
		t.Fatalf("Expected 1 session closed, got %d", got)
	}
	if len(sessions.closed) != 1 || sessions.closed[0] != expired.ID {
		t.Errorf("Expected only the expired session to be closed, got %v", sessions.closed)
	}
	if len(notifier.got) != 1 || notifier.got[0].TargetID != expired.AgentID {
		t.Errorf("Expected one notification to the agent, got %+v", notifier.got)
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	since := now.Add(-time.Hour)

	failing := openSince(&since)
	raced := openSince(&since)
	panicking := openSince(&since)
	good := openSince(&since)
	sessions := &fakeSessions{
		open: []*models.Attendance{failing, raced, panicking, good},
		failFor: map[uuid.UUID]error{
			failing.ID: errors.New("database unavailable"),
			raced.ID:   models.ErrAttendanceClosed,
		},
		panicOn: panicking.ID,
	}

	m := New(sessions, nil, Config{Grace: 5 * time.Minute}, WithClock(func() time.Time { return now }))
	if got := m.Sweep(context.Background()); got != 1 {
		t.Fatalf("Expected 1 session closed, got %d", got)
	}
	if len(sessions.closed) != 1 || sessions.closed[0] != good.ID {
		t.Errorf("Expected the healthy session to be closed, got %v", sessions.closed)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	m := New(&fakeSessions{}, nil, Config{})
	if m.grace != DefaultGrace || m.interval != DefaultInterval {
		t.Errorf("Expected defaults, got grace=%s interval=%s", m.grace, m.interval)
	}
	if _, ok := m.notifier.(attendance.LogNotifier); !ok {
		t.Errorf("Expected log notifier fallback, got %T", m.notifier)
	}
}

func TestStartStop(t *testing.T) {
	m := New(&fakeSessions{}, nil, Config{Interval: time.Millisecond})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Errorf("Expected error when starting twice")
	}
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	// A second Stop is harmless.
	m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Errorf("Expected restart after Stop to succeed, got %v", err)
	}
	m.Stop()
}
