package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/embercore/ember-core/internal/infrastructure/database"
	"github.com/embercore/ember-core/internal/model/regress"
)

// persistedPayload is the JSON stored in the models.payload column.
type persistedPayload struct {
	Regressor string             `json:"regressor"`
	Params    json.RawMessage    `json:"params"`
	Means     map[string]float64 `json:"means"`
	Instances int                `json:"instances"`
}

// SQLiteRepository persists models in the models table.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository over an opened, migrated
// database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save implements Repository.
func (r *SQLiteRepository) Save(ctx context.Context, m *Model) error {
	params, err := m.regressor.MarshalParams()
	if err != nil {
		return fmt.Errorf("encoding regressor: %w", err)
	}
	payload, err := json.Marshal(persistedPayload{
		Regressor: m.regressor.Kind(),
		Params:    params,
		Means:     m.Means,
		Instances: m.Instances,
	})
	if err != nil {
		return fmt.Errorf("encoding model payload: %w", err)
	}
	schema, err := json.Marshal(m.Schema)
	if err != nil {
		return fmt.Errorf("encoding feature schema: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO models (version, trained_at, feature_schema, payload)
		VALUES (?, ?, ?, ?)`,
		m.Version,
		m.TrainedAt.UTC().Format(time.RFC3339Nano),
		string(schema),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("storing model version %d: %w", m.Version, err)
	}
	return nil
}

// LoadLatest implements Repository.
func (r *SQLiteRepository) LoadLatest(ctx context.Context) (*Model, error) {
	var (
		version                          int64
		trainedAt, schemaRaw, payloadRaw string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT version, trained_at, feature_schema, payload
		FROM models
		ORDER BY version DESC
		LIMIT 1`).Scan(&version, &trainedAt, &schemaRaw, &payloadRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrModelUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest model: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, trainedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: trained_at: %v", ErrCorruptModel, err)
	}

	var schema []string
	if err := json.Unmarshal([]byte(schemaRaw), &schema); err != nil {
		return nil, fmt.Errorf("%w: feature schema: %v", ErrCorruptModel, err)
	}

	var payload persistedPayload
	if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorruptModel, err)
	}

	reg, err := regress.Unmarshal(payload.Regressor, payload.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: regressor: %v", ErrCorruptModel, err)
	}

	return &Model{
		Version:   version,
		TrainedAt: at,
		Schema:    schema,
		Means:     payload.Means,
		Instances: payload.Instances,
		regressor: reg,
	}, nil
}

// NextVersion implements Repository.
func (r *SQLiteRepository) NextVersion(ctx context.Context) (int64, error) {
	var next int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) + 1 FROM models").Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("computing next model version: %w", err)
	}
	return next, nil
}
