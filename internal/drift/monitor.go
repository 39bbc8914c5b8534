// Package drift closes sessions whose agent has left the site and not come
// back within a grace period.
package drift

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"fieldtrack/internal/attendance"
	"fieldtrack/internal/db/models"
)

const (
	DefaultGrace    = 5 * time.Minute
	DefaultInterval = 20 * time.Minute
)

// Sessions is the slice of the attendance service the monitor relies on.
type Sessions interface {
	OpenSessions(ctx context.Context) ([]*models.Attendance, error)
	AutoClose(ctx context.Context, open *models.Attendance, outsideBefore time.Time) (*models.Attendance, error)
}

type Config struct {
	Grace    time.Duration
	Interval time.Duration
}

type Monitor struct {
	sessions Sessions
	notifier attendance.Notifier
	grace    time.Duration
	interval time.Duration
	clock    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Monitor)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func New(sessions Sessions, notifier attendance.Notifier, cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		sessions: sessions,
		notifier: notifier,
		grace:    cfg.Grace,
		interval: cfg.Interval,
		clock:    time.Now,
	}
	if m.notifier == nil {
		m.notifier = attendance.LogNotifier{}
	}
	if m.grace <= 0 {
		m.grace = DefaultGrace
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs a sweep every interval until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return errors.New("drift monitor already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	log.Printf("Drift monitor started (grace %s, every %s)", m.grace, m.interval)
	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
	return nil
}

// Stop halts the loop and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Println("Drift monitor stopped")
}

// Sweep closes every open session that has been outside the geofence for
// longer than the grace period. It returns the number of sessions closed.
func (m *Monitor) Sweep(ctx context.Context) int {
	open, err := m.sessions.OpenSessions(ctx)
	if err != nil {
		log.Printf("Error listing open sessions: %v", err)
		return 0
	}

	cutoff := m.clock().Add(-m.grace)
	closed := 0
	for _, rec := range open {
		if ctx.Err() != nil {
			break
		}
		if rec.OutsideSince == nil || rec.OutsideSince.After(cutoff) {
			continue
		}
		if m.closeOne(ctx, rec, cutoff) {
			closed++
		}
	}
	if closed > 0 {
		log.Printf("Drift sweep closed %d session(s)", closed)
	}
	return closed
}

// closeOne isolates a single record so a failure never stops the sweep.
func (m *Monitor) closeOne(ctx context.Context, rec *models.Attendance, cutoff time.Time) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Printf("Panic while closing attendance %s: %v\n%s", rec.ID, r, buf[:n])
			ok = false
		}
	}()

	closed, err := m.sessions.AutoClose(ctx, rec, cutoff)
	if errors.Is(err, models.ErrAttendanceClosed) {
		return false
	}
	if errors.Is(err, attendance.ErrNotDrifted) {
		log.Printf("Attendance %s is back inside the geofence, not closing", rec.ID)
		return false
	}
	if err != nil {
		log.Printf("Error auto-closing attendance %s: %v", rec.ID, err)
		return false
	}

	log.Printf("Auto-closed attendance %s of agent %s (outside since %s)",
		closed.ID, closed.AgentID, rec.OutsideSince.UTC().Format(time.RFC3339))

	n := attendance.Notification{
		Audience: attendance.AudienceAgent,
		TargetID: closed.AgentID,
		Title:    "Session closed automatically",
		Message: fmt.Sprintf("Your session was closed because you stayed outside the site for more than %d minutes.",
			int(m.grace/time.Minute)),
	}
	if err := m.notifier.Send(ctx, n); err != nil {
		log.Printf("Error notifying agent %s: %v", closed.AgentID, err)
	}
	return true
}
