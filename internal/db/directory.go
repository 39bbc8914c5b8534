package db

import (
	"context"
	"fmt"
	"time"

	"fieldtrack/internal/db/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetSite retrieves a site by its ID
func (db *DB) GetSite(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	query := `
		SELECT id, client_id, name, latitude, longitude, active, timezone
		FROM sites
		WHERE id = $1`

	site := &models.Site{}
	err := db.QueryRow(ctx, query, id.String()).Scan(
		&site.ID,
		&site.ClientID,
		&site.Name,
		&site.Latitude,
		&site.Longitude,
		&site.Active,
		&site.Timezone,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return site, nil
}

// GetAgent retrieves an agent by its ID
func (db *DB) GetAgent(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return db.queryAgent(ctx, "id", id.String())
}

// GetAgentByDiscordID retrieves the agent linked to a Discord account
func (db *DB) GetAgentByDiscordID(ctx context.Context, discordID string) (*models.Agent, error) {
	return db.queryAgent(ctx, "discord_id", discordID)
}

func (db *DB) queryAgent(ctx context.Context, column, value string) (*models.Agent, error) {
	query := `
		SELECT id, discord_id, username, timezone, created_at
		FROM agents
		WHERE ` + column + ` = $1`

	agent := &models.Agent{}
	err := db.QueryRow(ctx, query, value).Scan(
		&agent.ID,
		&agent.DiscordID,
		&agent.Username,
		&agent.Timezone,
		&agent.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting agent: %w", err)
	}
	return agent, nil
}

// GetSettings retrieves the settings row or creates it with defaults
func (db *DB) GetSettings(ctx context.Context) (*models.Settings, error) {
	query := `
		SELECT id, gps_distance_meters, tolerance_minutes, minimum_duration_minutes, created_at
		FROM settings
		ORDER BY created_at
		LIMIT 1`

	settings := &models.Settings{}
	err := db.QueryRow(ctx, query).Scan(
		&settings.ID,
		&settings.GPSDistanceMeters,
		&settings.ToleranceMinutes,
		&settings.MinimumDurationMinutes,
		&settings.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		settings = models.DefaultSettings()

		insertQuery := `
			INSERT INTO settings (id, gps_distance_meters, tolerance_minutes, minimum_duration_minutes, created_at)
			VALUES ($1, $2, $3, $4, $5)`

		_, err = db.Exec(ctx, insertQuery,
			settings.ID.String(),
			settings.GPSDistanceMeters,
			settings.ToleranceMinutes,
			settings.MinimumDurationMinutes,
			settings.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error creating settings: %w", err)
		}
		return settings, nil
	}

	if err != nil {
		return nil, fmt.Errorf("error getting settings: %w", err)
	}

	return settings, nil
}

// RecordAudit stores an override entry
func (db *DB) RecordAudit(ctx context.Context, entry *models.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := db.Exec(ctx, query,
		entry.ID.String(),
		entry.ActorID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Details,
		entry.CreatedAt,
	)
	return err
}
