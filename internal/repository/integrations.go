package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/boardsync/boardsync/pkg/database"
	"github.com/boardsync/boardsync/pkg/logger"
	"github.com/boardsync/boardsync/pkg/models"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found")
)

// Integrations handles integration persistence
type Integrations struct {
	db     *database.PostgreSQL
	logger *logger.Logger
}

// NewIntegrations creates a new integrations repository
func NewIntegrations(db *database.PostgreSQL, logger *logger.Logger) *Integrations {
	return &Integrations{db: db, logger: logger}
}

const integrationColumns = `integration_id, integration_name, api_key, workspace_id, workspace_name,
	       enabled, connection_status, last_error, auto_sync_interval_seconds,
	       page_size, batch_size, rate_limit_per_minute, last_tested_at, created, updated`

func scanIntegration(row pgx.Row) (*models.Integration, error) {
	var in models.Integration
	err := row.Scan(
		&in.IntegrationID,
		&in.IntegrationName,
		&in.APIKey,
		&in.WorkspaceID,
		&in.WorkspaceName,
		&in.Enabled,
		&in.ConnectionStatus,
		&in.LastError,
		&in.AutoSyncInterval,
		&in.PageSize,
		&in.BatchSize,
		&in.RateLimitPerMin,
		&in.LastTestedAt,
		&in.Created,
		&in.Updated,
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// Create creates a new integration
func (s *Integrations) Create(ctx context.Context, in *models.Integration) (*models.Integration, error) {
	s.logger.Infof("Creating integration: %s", in.IntegrationName)

	query := `
		INSERT INTO integrations (integration_name, api_key, workspace_id, workspace_name,
		                          enabled, connection_status, auto_sync_interval_seconds,
		                          page_size, batch_size, rate_limit_per_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + integrationColumns

	created, err := scanIntegration(s.db.Pool().QueryRow(ctx, query,
		in.IntegrationName, in.APIKey, in.WorkspaceID, in.WorkspaceName,
		in.Enabled, in.ConnectionStatus, in.AutoSyncInterval,
		in.PageSize, in.BatchSize, in.RateLimitPerMin))
	if err != nil {
		s.logger.Errorf("Failed to create integration: %v", err)
		return nil, err
	}
	return created, nil
}

// Get retrieves an integration by ID
func (s *Integrations) Get(ctx context.Context, integrationID string) (*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE integration_id = $1`

	in, err := scanIntegration(s.db.Pool().QueryRow(ctx, query, integrationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntegrationNotFound
		}
		s.logger.Errorf("Failed to get integration: %v", err)
		return nil, err
	}
	return in, nil
}

// List retrieves all integrations
func (s *Integrations) List(ctx context.Context) ([]*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations ORDER BY integration_name`

	rows, err := s.db.Pool().Query(ctx, query)
	if err != nil {
		s.logger.Errorf("Failed to list integrations: %v", err)
		return nil, err
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, in)
	}
	return integrations, rows.Err()
}

// ListEnabled retrieves all enabled integrations, used by the scheduler
func (s *Integrations) ListEnabled(ctx context.Context) ([]*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE enabled ORDER BY integration_name`

	rows, err := s.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, in)
	}
	return integrations, rows.Err()
}

// Update modifies an integration's mutable fields
func (s *Integrations) Update(ctx context.Context, in *models.Integration) (*models.Integration, error) {
	query := `
		UPDATE integrations
		SET integration_name = $2, api_key = $3, workspace_id = $4, workspace_name = $5,
		    enabled = $6, auto_sync_interval_seconds = $7, page_size = $8,
		    batch_size = $9, rate_limit_per_minute = $10, updated = now()
		WHERE integration_id = $1
		RETURNING ` + integrationColumns

	updated, err := scanIntegration(s.db.Pool().QueryRow(ctx, query,
		in.IntegrationID, in.IntegrationName, in.APIKey, in.WorkspaceID, in.WorkspaceName,
		in.Enabled, in.AutoSyncInterval, in.PageSize, in.BatchSize, in.RateLimitPerMin))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIntegrationNotFound
		}
		s.logger.Errorf("Failed to update integration: %v", err)
		return nil, err
	}
	return updated, nil
}

// RecordConnectionTest stores the outcome of one connection test
func (s *Integrations) RecordConnectionTest(ctx context.Context, integrationID, status string, testErr error) error {
	var lastError *string
	if testErr != nil {
		msg := testErr.Error()
		lastError = &msg
	}

	query := `
		UPDATE integrations
		SET connection_status = $2, last_error = $3, last_tested_at = $4, updated = now()
		WHERE integration_id = $1
	`
	tag, err := s.db.Pool().Exec(ctx, query, integrationID, status, lastError, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record connection test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

// Disable soft-disables an integration instead of deleting it
func (s *Integrations) Disable(ctx context.Context, integrationID string) error {
	tag, err := s.db.Pool().Exec(ctx,
		`UPDATE integrations SET enabled = false, updated = now() WHERE integration_id = $1`, integrationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}
