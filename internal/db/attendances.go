package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fieldtrack/internal/db/models"
	"fieldtrack/internal/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const openAttendanceConstraint = "attendances_one_open_per_day"

const attendanceColumns = `
	id, agent_id, site_id, client_id, intervention_id, day,
	arrival_time, check_in_time, check_out_time, planned_start, planned_end,
	arrival_lat, arrival_lon, check_in_lat, check_in_lon, check_out_lat, check_out_lon,
	last_seen_at, last_seen_lat, last_seen_lon, outside_since,
	status, manual, created_by, note, created_at, updated_at, version`

// scanAttendance reads one row selected with attendanceColumns.
func scanAttendance(row pgx.Row) (*models.Attendance, error) {
	a := &models.Attendance{}
	var (
		arrivalLat, arrivalLon   *float64
		checkInLat, checkInLon   *float64
		checkOutLat, checkOutLon *float64
		lastSeenLat, lastSeenLon *float64
	)
	err := row.Scan(
		&a.ID,
		&a.AgentID,
		&a.SiteID,
		&a.ClientID,
		&a.InterventionID,
		&a.Day,
		&a.ArrivalTime,
		&a.CheckInTime,
		&a.CheckOutTime,
		&a.PlannedStart,
		&a.PlannedEnd,
		&arrivalLat, &arrivalLon,
		&checkInLat, &checkInLon,
		&checkOutLat, &checkOutLon,
		&a.LastSeenAt,
		&lastSeenLat, &lastSeenLon,
		&a.OutsideSince,
		&a.Status,
		&a.Manual,
		&a.CreatedBy,
		&a.Note,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Version,
	)
	if err != nil {
		return nil, err
	}
	a.ArrivalLocation = geo.NewPoint(arrivalLat, arrivalLon)
	a.CheckInLocation = geo.NewPoint(checkInLat, checkInLon)
	a.CheckOutLocation = geo.NewPoint(checkOutLat, checkOutLon)
	a.LastSeenLocation = geo.NewPoint(lastSeenLat, lastSeenLon)
	return a, nil
}

func scanAttendances(rows pgx.Rows) ([]*models.Attendance, error) {
	defer rows.Close()
	var out []*models.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) queryOneAttendance(ctx context.Context, query string, args ...any) (*models.Attendance, error) {
	a, err := scanAttendance(db.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAttendance retrieves an attendance record by its ID
func (db *DB) GetAttendance(ctx context.Context, id uuid.UUID) (*models.Attendance, error) {
	return db.queryOneAttendance(ctx,
		`SELECT`+attendanceColumns+` FROM attendances WHERE id = $1`,
		id.String())
}

// FindOpenAttendance gets the PENDING record of an agent at a site on a day
func (db *DB) FindOpenAttendance(ctx context.Context, agentID, siteID uuid.UUID, day time.Time) (*models.Attendance, error) {
	return db.queryOneAttendance(ctx,
		`SELECT`+attendanceColumns+`
		FROM attendances
		WHERE agent_id = $1 AND site_id = $2 AND day = $3 AND status = 'PENDING'
		LIMIT 1`,
		agentID.String(), siteID.String(), dateArg(day))
}

// LatestOpenAttendance gets the most recently created PENDING record of an agent
func (db *DB) LatestOpenAttendance(ctx context.Context, agentID uuid.UUID) (*models.Attendance, error) {
	return db.queryOneAttendance(ctx,
		`SELECT`+attendanceColumns+`
		FROM attendances
		WHERE agent_id = $1 AND status = 'PENDING' AND check_out_time IS NULL
		ORDER BY created_at DESC
		LIMIT 1`,
		agentID.String())
}

func (db *DB) ListOpenAttendances(ctx context.Context) ([]*models.Attendance, error) {
	rows, err := db.Query(ctx,
		`SELECT`+attendanceColumns+`
		FROM attendances
		WHERE status = 'PENDING'
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return scanAttendances(rows)
}

func (db *DB) ListSiteDayAttendances(ctx context.Context, siteID uuid.UUID, day time.Time) ([]*models.Attendance, error) {
	rows, err := db.Query(ctx,
		`SELECT`+attendanceColumns+`
		FROM attendances
		WHERE site_id = $1 AND day = $2
		ORDER BY created_at`,
		siteID.String(), dateArg(day))
	if err != nil {
		return nil, err
	}
	return scanAttendances(rows)
}

// ListAttendances returns the records matching filter, newest first
func (db *DB) ListAttendances(ctx context.Context, filter models.AttendanceFilter) ([]*models.Attendance, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.AgentID != nil {
		add("agent_id = $%d", filter.AgentID.String())
	}
	if filter.SiteID != nil {
		add("site_id = $%d", filter.SiteID.String())
	}
	if filter.ClientID != nil {
		add("client_id = $%d", filter.ClientID.String())
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add("day >= $%d", dateArg(*filter.From))
	}
	if filter.To != nil {
		add("day <= $%d", dateArg(*filter.To))
	}

	query := `SELECT` + attendanceColumns + ` FROM attendances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAttendances(rows)
}

// CreateAttendance inserts a record. A second PENDING record for the same
// agent, site and day is rejected by the attendances_one_open_per_day index.
func (db *DB) CreateAttendance(ctx context.Context, a *models.Attendance) error {
	query := `
		INSERT INTO attendances (` + attendanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`

	_, err := db.Exec(ctx, query, attendanceArgs(a)...)
	if isUniqueViolation(err, openAttendanceConstraint) {
		return models.ErrOpenAttendanceExists
	}
	return err
}

// UpdateOpenAttendance writes a only while the stored row is still PENDING
// and still at a.Version.
func (db *DB) UpdateOpenAttendance(ctx context.Context, a *models.Attendance) error {
	err := db.updateAttendance(ctx, a, true)
	if err != pgx.ErrNoRows {
		return err
	}

	var status models.AttendanceStatus
	err = db.QueryRow(ctx, `SELECT status FROM attendances WHERE id = $1`, a.ID.String()).Scan(&status)
	if err == pgx.ErrNoRows || (err == nil && status != models.AttendancePending) {
		return models.ErrAttendanceClosed
	}
	if err != nil {
		return err
	}
	return models.ErrAttendanceChanged
}

func (db *DB) UpdateAttendance(ctx context.Context, a *models.Attendance) error {
	err := db.updateAttendance(ctx, a, false)
	if err == pgx.ErrNoRows {
		return nil
	}
	return err
}

// updateAttendance writes every column and stores the bumped version back
// into a. It returns pgx.ErrNoRows when no row matched.
func (db *DB) updateAttendance(ctx context.Context, a *models.Attendance, onlyOpen bool) error {
	args := attendanceArgs(a)[:27]
	query := `
		UPDATE attendances SET
			agent_id = $2, site_id = $3, client_id = $4, intervention_id = $5, day = $6,
			arrival_time = $7, check_in_time = $8, check_out_time = $9, planned_start = $10, planned_end = $11,
			arrival_lat = $12, arrival_lon = $13, check_in_lat = $14, check_in_lon = $15,
			check_out_lat = $16, check_out_lon = $17,
			last_seen_at = $18, last_seen_lat = $19, last_seen_lon = $20, outside_since = $21,
			status = $22, manual = $23, created_by = $24, note = $25, created_at = $26, updated_at = $27,
			version = version + 1
		WHERE id = $1`
	if onlyOpen {
		args = append(args, a.Version)
		query += ` AND status = 'PENDING' AND version = $28`
	}
	query += ` RETURNING version`

	var version int
	err := db.QueryRow(ctx, query, args...).Scan(&version)
	if isUniqueViolation(err, openAttendanceConstraint) {
		return models.ErrOpenAttendanceExists
	}
	if err != nil {
		return err
	}
	a.Version = version
	return nil
}

func attendanceArgs(a *models.Attendance) []any {
	var interventionID any
	if a.InterventionID != nil {
		interventionID = a.InterventionID.String()
	}
	arrivalLat, arrivalLon := pointArgs(a.ArrivalLocation)
	checkInLat, checkInLon := pointArgs(a.CheckInLocation)
	checkOutLat, checkOutLon := pointArgs(a.CheckOutLocation)
	lastSeenLat, lastSeenLon := pointArgs(a.LastSeenLocation)
	return []any{
		a.ID.String(),
		a.AgentID.String(),
		a.SiteID.String(),
		a.ClientID.String(),
		interventionID,
		dateArg(a.Day),
		a.ArrivalTime,
		a.CheckInTime,
		a.CheckOutTime,
		a.PlannedStart,
		a.PlannedEnd,
		arrivalLat, arrivalLon,
		checkInLat, checkInLon,
		checkOutLat, checkOutLon,
		a.LastSeenAt,
		lastSeenLat, lastSeenLon,
		a.OutsideSince,
		string(a.Status),
		a.Manual,
		string(a.CreatedBy),
		a.Note,
		a.CreatedAt,
		a.UpdatedAt,
		a.Version,
	}
}

func pointArgs(p *geo.Point) (lat, lon any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat, p.Lon
}
