package db

import (
	"context"
	"time"

	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const interventionColumns = `
	id, site_id, date, start_time, end_time, assigned_agent_ids, status, observation`

func scanIntervention(row pgx.Row) (*models.Intervention, error) {
	iv := &models.Intervention{}
	err := row.Scan(
		&iv.ID,
		&iv.SiteID,
		&iv.Date,
		&iv.StartTime,
		&iv.EndTime,
		&iv.AssignedAgentIDs,
		&iv.Status,
		&iv.Observation,
	)
	return iv, err
}

// ListSiteDayInterventions returns a site's interventions on a calendar day,
// ordered by start time
func (db *DB) ListSiteDayInterventions(ctx context.Context, siteID uuid.UUID, day time.Time) ([]*models.Intervention, error) {
	rows, err := db.Query(ctx,
		`SELECT`+interventionColumns+`
		FROM interventions
		WHERE site_id = $1 AND date = $2
		ORDER BY start_time`,
		siteID.String(), dateArg(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interventions []*models.Intervention
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		interventions = append(interventions, iv)
	}
	return interventions, rows.Err()
}

// GetIntervention retrieves an intervention by its ID
func (db *DB) GetIntervention(ctx context.Context, id uuid.UUID) (*models.Intervention, error) {
	iv, err := scanIntervention(db.QueryRow(ctx,
		`SELECT`+interventionColumns+` FROM interventions WHERE id = $1`,
		id.String()))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// CreateIntervention inserts a scheduled job
func (db *DB) CreateIntervention(ctx context.Context, iv *models.Intervention) error {
	query := `
		INSERT INTO interventions (` + interventionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.Exec(ctx, query,
		iv.ID.String(),
		iv.SiteID.String(),
		dateArg(iv.Date),
		iv.StartTime,
		iv.EndTime,
		iv.AssignedAgentIDs,
		string(iv.Status),
		iv.Observation,
	)
	return err
}

func (db *DB) UpdateInterventionStatus(ctx context.Context, id uuid.UUID, status models.InterventionStatus) error {
	query := `
		UPDATE interventions
		SET status = $1
		WHERE id = $2`

	_, err := db.Exec(ctx, query, string(status), id.String())
	return err
}

func (db *DB) UpdateInterventionObservation(ctx context.Context, id uuid.UUID, observation string) error {
	query := `
		UPDATE interventions
		SET observation = $1
		WHERE id = $2`

	_, err := db.Exec(ctx, query, observation, id.String())
	return err
}
