package controller

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/embercore/ember-core/internal/infrastructure/database"
)

// SQLiteStateStore persists controller state in the single-row
// controller_state table.
type SQLiteStateStore struct {
	db *database.DB
}

// NewSQLiteStateStore creates a store over an opened, migrated
// database.
func NewSQLiteStateStore(db *database.DB) *SQLiteStateStore {
	return &SQLiteStateStore{db: db}
}

// SaveState implements StateStore.
func (s *SQLiteStateStore) SaveState(ctx context.Context, state PersistedState) error {
	var (
		expiresAt sql.NullString
		pinned    sql.NullFloat64
		issued    sql.NullFloat64
	)
	if state.Override.Active {
		expiresAt = sql.NullString{
			String: state.Override.ExpiresAt.UTC().Format(time.RFC3339Nano),
			Valid:  true,
		}
		pinned = sql.NullFloat64{Float64: state.Override.PinnedTarget, Valid: true}
	}
	if state.LastIssued != nil {
		issued = sql.NullFloat64{Float64: *state.LastIssued, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO controller_state
			(id, mode, override_active, override_expires_at, pinned_target, last_issued, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			override_active = excluded.override_active,
			override_expires_at = excluded.override_expires_at,
			pinned_target = excluded.pinned_target,
			last_issued = excluded.last_issued,
			updated_at = excluded.updated_at`,
		string(state.Mode),
		boolToInt(state.Override.Active),
		expiresAt,
		pinned,
		issued,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving controller state: %w", err)
	}
	return nil
}

// LoadState implements StateStore. The second return is false when no
// state has ever been saved.
func (s *SQLiteStateStore) LoadState(ctx context.Context) (PersistedState, bool, error) {
	var (
		mode      string
		active    int
		expiresAt sql.NullString
		pinned    sql.NullFloat64
		issued    sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT mode, override_active, override_expires_at, pinned_target, last_issued
		FROM controller_state
		WHERE id = 1`).Scan(&mode, &active, &expiresAt, &pinned, &issued)
	if errors.Is(err, sql.ErrNoRows) {
		return PersistedState{}, false, nil
	}
	if err != nil {
		return PersistedState{}, false, fmt.Errorf("loading controller state: %w", err)
	}

	parsedMode, err := ParseMode(mode)
	if err != nil {
		return PersistedState{}, false, err
	}

	state := PersistedState{Mode: parsedMode}
	if active != 0 && expiresAt.Valid {
		at, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err != nil {
			return PersistedState{}, false, fmt.Errorf("parsing override expiry: %w", err)
		}
		state.Override = OverrideState{
			Active:       true,
			ExpiresAt:    at,
			PinnedTarget: pinned.Float64,
		}
	}
	if issued.Valid {
		v := issued.Float64
		state.LastIssued = &v
	}
	return state, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
