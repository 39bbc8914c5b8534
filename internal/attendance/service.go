// Package attendance owns the lifecycle of attendance records: arrival,
// check-in, heartbeat, check-out and the supervisor overrides.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fieldtrack/internal/db/models"
	"fieldtrack/internal/geo"
	"fieldtrack/internal/schedule"

	"github.com/google/uuid"
)

// DefaultMaxDistanceMeters applies when the settings row has no geofence radius.
const DefaultMaxDistanceMeters = models.DefaultGPSDistanceMeters

const maxOpenAttempts = 3

// Deps are the collaborators the service cannot run without.
type Deps struct {
	Attendances   AttendanceStore
	Interventions InterventionStore
	Sites         SiteLookup
	Settings      SettingsReader
}

type Service struct {
	attendances   AttendanceStore
	interventions InterventionStore
	sites         SiteLookup
	settings      SettingsReader
	notifier      Notifier
	broadcaster   Broadcaster
	audit         AuditRecorder

	resolver *schedule.Resolver
	sync     *Synchronizer

	location        *time.Location
	earlyTolerance  time.Duration
	lateGrace       time.Duration
	defaultDistance int
	clock           func() time.Time
}

// Option customizes service construction.
type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) {
		if b != nil {
			s.broadcaster = b
		}
	}
}

func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocation sets the zone used for sites without a timezone.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithWindow sets the early check-in tolerance and the grace after a planned
// end. Zero disables either; negative values are ignored. The settings row's
// toleranceMinutes, when present, overrides the early tolerance.
func WithWindow(earlyTolerance, lateGrace time.Duration) Option {
	return func(s *Service) {
		if earlyTolerance >= 0 {
			s.earlyTolerance = earlyTolerance
		}
		if lateGrace >= 0 {
			s.lateGrace = lateGrace
		}
	}
}

// WithDefaultMaxDistance sets the geofence radius used when settings have none.
func WithDefaultMaxDistance(meters int) Option {
	return func(s *Service) {
		if meters > 0 {
			s.defaultDistance = meters
		}
	}
}

func New(deps Deps, opts ...Option) (*Service, error) {
	if deps.Attendances == nil || deps.Interventions == nil || deps.Sites == nil || deps.Settings == nil {
		return nil, errors.New("attendance: missing store dependency")
	}
	s := &Service{
		attendances:     deps.Attendances,
		interventions:   deps.Interventions,
		sites:           deps.Sites,
		settings:        deps.Settings,
		notifier:        LogNotifier{},
		broadcaster:     logBroadcaster{},
		audit:           logAuditRecorder{},
		location:        time.UTC,
		earlyTolerance:  schedule.DefaultEarlyTolerance,
		lateGrace:       schedule.DefaultLateGrace,
		defaultDistance: DefaultMaxDistanceMeters,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = schedule.NewResolver(deps.Interventions, s.earlyTolerance, s.lateGrace)
	s.sync = NewSynchronizer(deps.Interventions, deps.Attendances)
	return s, nil
}

// Synchronizer returns the intervention synchronizer used by the service.
func (s *Service) Synchronizer() *Synchronizer {
	return s.sync
}

// presence is a validated agent position at a site.
type presence struct {
	site     *models.Site
	loc      *time.Location
	match    *schedule.Match
	distance int
}

// validatePresence checks the geofence first, then the schedule window, so a
// far-away position is always reported as such.
func (s *Service) validatePresence(ctx context.Context, agentID, siteID uuid.UUID, pos geo.Point, now time.Time) (*presence, error) {
	site, err := s.loadSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if !site.Active {
		return nil, ErrSiteInactive
	}

	lim, err := s.limits(ctx)
	if err != nil {
		return nil, err
	}
	maxDistance := lim.maxDistance
	distance, err := geo.DistanceMeters(site.Point(), &pos)
	if err != nil {
		return nil, ErrSiteCoordinatesMissing
	}
	if distance > maxDistance {
		return nil, fmt.Errorf("%w (%dm away, %dm allowed)", ErrTooFarFromSite, distance, maxDistance)
	}

	loc := s.siteLocation(site)
	match, err := s.resolver.Resolve(ctx, schedule.Request{
		AgentID:          agentID,
		SiteID:           siteID,
		Location:         loc,
		Now:              now,
		AllowBeforeStart: true,
		EarlyTolerance:   lim.earlyTolerance,
	})
	if err != nil {
		if isWindowError(err) {
			return nil, fmt.Errorf("%w: %w", ErrOutOfWindow, err)
		}
		return nil, err
	}
	return &presence{site: site, loc: loc, match: match, distance: distance}, nil
}

// CheckIn opens (or completes the opening of) today's session at siteID.
func (s *Service) CheckIn(ctx context.Context, agentID, siteID uuid.UUID, pos geo.Point) (*models.Attendance, error) {
	now := s.clock()
	p, err := s.validatePresence(ctx, agentID, siteID, pos, now)
	if err != nil {
		return nil, err
	}

	day := schedule.Day(now, p.loc)
	rec, err := s.upsertOpen(ctx, agentID, p.site, day, now, matchOf(p.match), func(rec *models.Attendance) error {
		if rec.CheckInTime != nil {
			return ErrAlreadyCheckedIn
		}
		at := pos
		rec.CheckInTime = &now
		rec.CheckInLocation = &at
		attachMatch(rec, p.match)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if iv := p.match.Intervention; iv.Status == models.InterventionPlanned {
		if err := s.sync.setStatus(ctx, iv, models.InterventionInProgress); err != nil {
			log.Printf("Error promoting intervention %s: %v", iv.ID, err)
		}
	}

	log.Println(formatLogMessage("CHECKIN", agentID, siteID, fmt.Sprintf("accepted at %dm", p.distance)))
	s.broadcast(ctx, EventCheckIn, rec)
	return rec, nil
}

// MarkArrival records that the agent reached the site without checking in.
func (s *Service) MarkArrival(ctx context.Context, agentID, siteID uuid.UUID, pos geo.Point) (*models.Attendance, error) {
	now := s.clock()
	p, err := s.validatePresence(ctx, agentID, siteID, pos, now)
	if err != nil {
		return nil, err
	}

	day := schedule.Day(now, p.loc)
	rec, err := s.upsertOpen(ctx, agentID, p.site, day, now, matchOf(p.match), func(rec *models.Attendance) error {
		at := pos
		rec.ArrivalTime = &now
		rec.ArrivalLocation = &at
		attachMatch(rec, p.match)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.sync.syncRecord(ctx, rec, models.AttendancePending); err != nil {
		log.Printf("Error syncing intervention for attendance %s: %v", rec.ID, err)
	}

	log.Println(formatLogMessage("ARRIVAL", agentID, siteID, fmt.Sprintf("accepted at %dm", p.distance)))
	s.broadcast(ctx, EventArrival, rec)
	return rec, nil
}

// CheckOut closes the agent's open session. pos is optional.
func (s *Service) CheckOut(ctx context.Context, agentID uuid.UUID, pos *geo.Point) (*models.Attendance, error) {
	var (
		rec *models.Attendance
		err error
	)
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		rec, err = s.closeLatest(ctx, agentID, pos)
		if !errors.Is(err, models.ErrAttendanceChanged) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.sync.syncRecord(ctx, rec, models.AttendanceCompleted); err != nil {
		log.Printf("Error syncing intervention for attendance %s: %v", rec.ID, err)
	}

	log.Println(formatLogMessage("CHECKOUT", agentID, rec.SiteID, ""))
	s.broadcast(ctx, EventCheckOut, rec)
	return rec, nil
}

// closeLatest reads the agent's newest open record and closes it. A heartbeat
// landing in between surfaces as models.ErrAttendanceChanged.
func (s *Service) closeLatest(ctx context.Context, agentID uuid.UUID, pos *geo.Point) (*models.Attendance, error) {
	open, err := s.attendances.LatestOpenAttendance(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("error finding open attendance: %w", err)
	}
	if open == nil {
		return nil, ErrNoOpenSession
	}

	rec := open.Clone()
	rec.Close(models.AttendanceCompleted, s.clock())
	if pos != nil {
		at := *pos
		rec.CheckOutLocation = &at
	}
	err = s.attendances.UpdateOpenAttendance(ctx, rec)
	switch {
	case errors.Is(err, models.ErrAttendanceClosed):
		return nil, ErrNoOpenSession
	case errors.Is(err, models.ErrAttendanceChanged):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("error closing attendance: %w", err)
	}
	return rec, nil
}

// Heartbeat refreshes the agent's last known position and tracks drift. It
// opens a session when none exists but never closes one.
func (s *Service) Heartbeat(ctx context.Context, agentID, siteID uuid.UUID, pos geo.Point) (*models.Attendance, error) {
	now := s.clock()
	site, err := s.loadSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	lim, err := s.limits(ctx)
	if err != nil {
		return nil, err
	}
	maxDistance := lim.maxDistance

	distance, distErr := geo.DistanceMeters(site.Point(), &pos)
	if distErr != nil {
		log.Println(formatLogMessage("HEARTBEAT", agentID, siteID, "distance unknown: "+distErr.Error()))
	}

	loc := s.siteLocation(site)
	day := schedule.Day(now, loc)
	resolve := func() *schedule.Match {
		match, err := s.resolver.Resolve(ctx, schedule.Request{
			AgentID:          agentID,
			SiteID:           siteID,
			Location:         loc,
			Now:              now,
			AllowBeforeStart: true,
			EarlyTolerance:   lim.earlyTolerance,
		})
		if err != nil {
			return nil
		}
		return match
	}

	var leftSite bool
	rec, err := s.upsertOpen(ctx, agentID, site, day, now, resolve, func(rec *models.Attendance) error {
		leftSite = false
		at := pos
		rec.LastSeenAt = &now
		rec.LastSeenLocation = &at
		if distErr != nil {
			return nil
		}
		if distance > maxDistance {
			if rec.OutsideSince == nil {
				rec.OutsideSince = &now
				leftSite = true
			}
		} else {
			rec.OutsideSince = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if leftSite {
		log.Println(formatLogMessage("HEARTBEAT", agentID, siteID, fmt.Sprintf("outside geofence at %dm", distance)))
		s.notify(ctx, Notification{
			Audience: AudienceAgent,
			TargetID: agentID,
			Title:    "You have left the site",
			Message: fmt.Sprintf("You are %dm away from %s. Your session will be closed automatically if you do not return.",
				distance, siteName(site)),
		})
	}
	return rec, nil
}

// OpenSessions lists every PENDING record.
func (s *Service) OpenSessions(ctx context.Context) ([]*models.Attendance, error) {
	records, err := s.attendances.ListOpenAttendances(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing open attendances: %w", err)
	}
	return records, nil
}

// AutoClose completes a drifted session. The stored record is re-read and
// must still be PENDING with OutsideSince at or before outsideBefore; an agent
// who came back in the meantime gets ErrNotDrifted. It returns
// models.ErrAttendanceClosed when the record was closed by someone else.
func (s *Service) AutoClose(ctx context.Context, open *models.Attendance, outsideBefore time.Time) (*models.Attendance, error) {
	var (
		rec *models.Attendance
		err error
	)
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		rec, err = s.closeDrifted(ctx, open.ID, outsideBefore)
		if !errors.Is(err, models.ErrAttendanceChanged) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	now := *rec.CheckOutTime

	iv, err := s.sync.syncRecord(ctx, rec, models.AttendanceCompleted)
	if err != nil {
		log.Printf("Error syncing intervention for attendance %s: %v", rec.ID, err)
	}
	if iv != nil {
		line := fmt.Sprintf("%s: session of agent %s closed automatically after leaving the site",
			now.UTC().Format(time.RFC3339), rec.AgentID)
		if err := s.interventions.UpdateInterventionObservation(ctx, iv.ID, appendLine(iv.Observation, line)); err != nil {
			log.Printf("Error annotating intervention %s: %v", iv.ID, err)
		}
	}

	s.broadcast(ctx, EventCheckOut, rec)
	return rec, nil
}

func (s *Service) closeDrifted(ctx context.Context, id uuid.UUID, outsideBefore time.Time) (*models.Attendance, error) {
	current, err := s.attendances.GetAttendance(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting attendance: %w", err)
	}
	if current == nil || !current.IsOpen() {
		return nil, models.ErrAttendanceClosed
	}
	if current.OutsideSince == nil || current.OutsideSince.After(outsideBefore) {
		return nil, ErrNotDrifted
	}

	rec := current.Clone()
	rec.Close(models.AttendanceCompleted, s.clock())
	if err := s.attendances.UpdateOpenAttendance(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// upsertOpen applies mutate to today's open record, creating it when absent.
// Creation races are settled by the store's uniqueness guarantee: the loser
// re-reads and mutates the winner's record.
func (s *Service) upsertOpen(ctx context.Context, agentID uuid.UUID, site *models.Site, day, now time.Time, resolve func() *schedule.Match, mutate func(*models.Attendance) error) (*models.Attendance, error) {
	var lastErr error
	for attempt := 0; attempt < maxOpenAttempts; attempt++ {
		existing, err := s.attendances.FindOpenAttendance(ctx, agentID, site.ID, day)
		if err != nil {
			return nil, fmt.Errorf("error finding open attendance: %w", err)
		}

		if existing == nil {
			rec := s.newRecord(agentID, site, day, now)
			attachMatch(rec, resolve())
			if err := mutate(rec); err != nil {
				return nil, err
			}
			err := s.attendances.CreateAttendance(ctx, rec)
			if errors.Is(err, models.ErrOpenAttendanceExists) {
				lastErr = err
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("error creating attendance: %w", err)
			}
			return rec, nil
		}

		rec := existing.Clone()
		if err := mutate(rec); err != nil {
			return nil, err
		}
		rec.UpdatedAt = now
		err = s.attendances.UpdateOpenAttendance(ctx, rec)
		if errors.Is(err, models.ErrAttendanceClosed) || errors.Is(err, models.ErrAttendanceChanged) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error updating attendance: %w", err)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("error opening attendance after %d attempts: %w", maxOpenAttempts, lastErr)
}

func (s *Service) newRecord(agentID uuid.UUID, site *models.Site, day, now time.Time) *models.Attendance {
	return &models.Attendance{
		ID:        uuid.New(),
		AgentID:   agentID,
		SiteID:    site.ID,
		ClientID:  site.ClientID,
		Day:       day,
		Status:    models.AttendancePending,
		CreatedBy: models.CreatedByAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Service) loadSite(ctx context.Context, siteID uuid.UUID) (*models.Site, error) {
	site, err := s.sites.GetSite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("error getting site: %w", err)
	}
	if site == nil {
		return nil, ErrSiteNotFound
	}
	return site, nil
}

// limits are the geofence and tolerance values in force for one operation.
type limits struct {
	maxDistance int
	// earlyTolerance is nil when the resolver's configured value applies.
	earlyTolerance *time.Duration
}

// limits reads the settings row. A missing radius falls back to the
// configured default; a missing row keeps the configured early tolerance.
func (s *Service) limits(ctx context.Context) (limits, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return limits{}, fmt.Errorf("error getting settings: %w", err)
	}
	lim := limits{maxDistance: s.defaultDistance}
	if settings == nil {
		return lim, nil
	}
	if settings.GPSDistanceMeters > 0 {
		lim.maxDistance = settings.GPSDistanceMeters
	}
	if settings.ToleranceMinutes >= 0 {
		early := time.Duration(settings.ToleranceMinutes) * time.Minute
		lim.earlyTolerance = &early
	}
	return lim, nil
}

func (s *Service) siteLocation(site *models.Site) *time.Location {
	return schedule.LoadLocation(site.Timezone, s.location)
}

func (s *Service) notify(ctx context.Context, n Notification) {
	if err := s.notifier.Send(ctx, n); err != nil {
		log.Printf("Error sending notification to agent %s: %v", n.TargetID, err)
	}
}

func (s *Service) broadcast(ctx context.Context, event string, rec *models.Attendance) {
	payload := map[string]any{
		"attendanceId": rec.ID,
		"agentId":      rec.AgentID,
		"siteId":       rec.SiteID,
		"status":       rec.Status,
		"at":           rec.UpdatedAt,
	}
	if err := s.broadcaster.Broadcast(ctx, event, payload); err != nil {
		log.Printf("Error broadcasting %s: %v", event, err)
	}
}

func matchOf(m *schedule.Match) func() *schedule.Match {
	return func() *schedule.Match { return m }
}

// attachMatch copies the planned window onto a record that has none.
func attachMatch(rec *models.Attendance, m *schedule.Match) {
	if m == nil || rec.PlannedStart != nil {
		return
	}
	id := m.Intervention.ID
	start, end := m.PlannedStart, m.PlannedEnd
	rec.InterventionID = &id
	rec.PlannedStart = &start
	rec.PlannedEnd = &end
}

func isWindowError(err error) bool {
	return errors.Is(err, schedule.ErrNoScheduledWork) ||
		errors.Is(err, schedule.ErrTooEarly) ||
		errors.Is(err, schedule.ErrWindowExpired) ||
		errors.Is(err, schedule.ErrNoActiveWindow)
}

func siteName(site *models.Site) string {
	if site.Name != "" {
		return site.Name
	}
	return "the site"
}

func appendLine(text, line string) string {
	if text == "" {
		return line
	}
	return text + "\n" + line
}

// formatLogMessage builds a consistent log line for agent events.
func formatLogMessage(event string, agentID, siteID uuid.UUID, detail string) string {
	msg := fmt.Sprintf("[%s] agent=%s site=%s", event, agentID, siteID)
	if detail != "" {
		msg += " " + detail
	}
	return msg
}
