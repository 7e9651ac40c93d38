package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/metricsnap/internal/events"
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// SQLiteStore retains secrets across runs. It is only used when retention is
// explicitly set to persistent.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore opens (or creates) the secret database.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_secret_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS tenant_secrets (
        tenant_id TEXT PRIMARY KEY,
        secret TEXT NOT NULL,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Get retrieves the retained secret.
func (s *SQLiteStore) Get(ctx context.Context, tenantID string) (string, bool, error) {
	var secret string
	err := s.db.QueryRowContext(ctx, `
        SELECT secret
        FROM tenant_secrets
        WHERE tenant_id = ?
    `, tenantID).Scan(&secret)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query secret: %w", err)
	}

	return secret, true, nil
}

// Put upserts the tenant's secret.
func (s *SQLiteStore) Put(ctx context.Context, tenantID, secret string) error {
	s.logger.WithField("tenant_id", tenantID).Debug("Saving secret to SQLite")

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO tenant_secrets (tenant_id, secret, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(tenant_id) DO UPDATE SET
            secret = excluded.secret,
            updated_at = CURRENT_TIMESTAMP
    `, tenantID, secret)
	if err != nil {
		return fmt.Errorf("upsert secret: %w", err)
	}

	return nil
}

// Delete removes the tenant's secret.
func (s *SQLiteStore) Delete(ctx context.Context, tenantID string) error {
	s.logger.WithField("tenant_id", tenantID).Info("Removing secret from SQLite")

	if _, err := s.db.ExecContext(ctx, "DELETE FROM tenant_secrets WHERE tenant_id = ?", tenantID); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}

	return nil
}

// List returns the tenants with a retained secret.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tenant_id FROM tenant_secrets ORDER BY tenant_id")
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant ID: %w", err)
		}
		tenants = append(tenants, id)
	}

	return tenants, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
