package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SettingsRepository handles settings reads and upserts.
type SettingsRepository struct {
	db  DB
	now func() time.Time
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db DB) *SettingsRepository {
	return &SettingsRepository{db: db, now: time.Now}
}

// Get retrieves one setting.
func (r *SettingsRepository) Get(ctx context.Context, key SettingKey) (*Setting, error) {
	query := `
		SELECT key, value, updated_at, updated_by
		FROM settings WHERE key = $1
	`
	s := &Setting{}
	err := r.db.QueryRowContext(ctx, query, string(key)).Scan(&s.Key, &s.Value, &s.UpdatedAt, &s.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	return s, nil
}

// Value returns a setting's value, or fallback when it is not stored.
func (r *SettingsRepository) Value(ctx context.Context, key SettingKey, fallback string) (string, error) {
	s, err := r.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

// List returns every stored setting ordered by key.
func (r *SettingsRepository) List(ctx context.Context) ([]*Setting, error) {
	query := `
		SELECT key, value, updated_at, updated_by
		FROM settings
		ORDER BY key
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []*Setting
	for rows.Next() {
		s := &Setting{}
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt, &s.UpdatedBy); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// Set inserts or replaces a setting.
func (r *SettingsRepository) Set(ctx context.Context, key SettingKey, value, updatedBy string) error {
	query := `
		INSERT INTO settings (key, value, updated_at, updated_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at, updated_by = excluded.updated_by
	`
	if _, err := r.db.ExecContext(ctx, query, string(key), value, r.now().UTC(), updatedBy); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// InteractionRepository appends to and reads the interaction log.
type InteractionRepository struct {
	db DB
}

// NewInteractionRepository creates a new interaction repository.
func NewInteractionRepository(db DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// Create stores an interaction, assigning an ID and time when unset.
func (r *InteractionRepository) Create(ctx context.Context, it *Interaction) error {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	it.CreatedAt = it.CreatedAt.UTC()

	query := `
		INSERT INTO interactions (id, created_at, query, preview, context_found, intent, fingerprint, source_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		it.ID.String(), it.CreatedAt, it.Query, it.Preview,
		it.ContextFound, it.Intent, it.Fingerprint, it.SourceID,
	)
	if err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}
	return nil
}

// ListRecent returns up to limit interactions, newest first.
func (r *InteractionRepository) ListRecent(ctx context.Context, limit int) ([]*Interaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT id, created_at, query, preview, context_found, intent, fingerprint, source_id
		FROM interactions
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		var (
			it Interaction
			id string
		)
		if err := rows.Scan(&id, &it.CreatedAt, &it.Query, &it.Preview,
			&it.ContextFound, &it.Intent, &it.Fingerprint, &it.SourceID); err != nil {
			return nil, err
		}
		if it.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse interaction id %q: %w", id, err)
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

// Count returns the number of logged interactions.
func (r *InteractionRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count interactions: %w", err)
	}
	return n, nil
}
