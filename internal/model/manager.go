package model

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/embercore/ember-core/internal/model/regress"
	"github.com/embercore/ember-core/internal/snapshot"
	"github.com/embercore/ember-core/internal/trainstore"
)

// Repository persists trained models.
type Repository interface {
	// Save stores a model under its version.
	Save(ctx context.Context, m *Model) error

	// LoadLatest returns the highest-versioned model.
	// Returns ErrModelUnavailable when none exists and ErrCorruptModel
	// when the stored payload cannot be decoded.
	LoadLatest(ctx context.Context) (*Model, error)

	// NextVersion returns the version the next trained model should use.
	NextVersion(ctx context.Context) (int64, error)
}

// Logger is the logging interface the manager requires.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Manager trains, persists, installs and serves models.
//
// Thread Safety: Predict, Current and Install are safe for concurrent
// use; Train may run concurrently with all of them. Installation is a
// single atomic pointer swap.
type Manager struct {
	repo         Repository
	minInstances int
	kind         string
	log          Logger

	current atomic.Pointer[Model]
}

// NewManager creates a manager training regressors of the given kind.
func NewManager(repo Repository, minInstances int, kind string, log Logger) *Manager {
	return &Manager{
		repo:         repo,
		minInstances: minInstances,
		kind:         kind,
		log:          log,
	}
}

// Train fits a new model on the given instances and persists it under
// the next version. The model is returned but NOT installed; the
// caller decides whether it should become current (a newer training
// run may have been requested meanwhile).
//
// Returns ErrInsufficientData when there are fewer instances than the
// configured minimum.
func (m *Manager) Train(ctx context.Context, instances []trainstore.Instance) (*Model, error) {
	if len(instances) < m.minInstances {
		return nil, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientData, len(instances), m.minInstances)
	}

	schema := buildSchema(instances)
	means := computeMeans(schema, instances)

	x, y, err := buildMatrix(schema, means, instances)
	if err != nil {
		return nil, err
	}

	reg, err := regress.New(m.kind)
	if err != nil {
		return nil, err
	}
	if err := reg.Fit(x, y); err != nil {
		return nil, fmt.Errorf("fitting %s regressor: %w", m.kind, err)
	}

	version, err := m.repo.NextVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocating model version: %w", err)
	}

	trained := &Model{
		Version:   version,
		TrainedAt: time.Now().UTC(),
		Schema:    schema,
		Means:     means,
		Instances: len(instances),
		regressor: reg,
	}
	if err := m.repo.Save(ctx, trained); err != nil {
		return nil, fmt.Errorf("persisting model: %w", err)
	}

	m.log.Info("model trained",
		"version", version,
		"instances", len(instances),
		"features", len(schema),
		"regressor", m.kind)
	return trained, nil
}

// Install makes the model current. Subsequent Predict calls use it;
// in-flight calls finish against the previous model.
func (m *Manager) Install(trained *Model) {
	m.current.Store(trained)
	m.log.Info("model installed", "version", trained.Version)
}

// Current returns the installed model, or nil.
func (m *Manager) Current() *Model {
	return m.current.Load()
}

// Predict runs the installed model against a snapshot.
func (m *Manager) Predict(snap snapshot.Snapshot) (float64, error) {
	current := m.current.Load()
	if current == nil {
		return 0, ErrModelUnavailable
	}
	return current.Predict(snap)
}

// LoadPersisted installs the latest persisted model, if any. A missing
// or corrupt persisted model is not an error: the manager starts
// without a model and waits for the next training run.
func (m *Manager) LoadPersisted(ctx context.Context) error {
	persisted, err := m.repo.LoadLatest(ctx)
	switch {
	case errors.Is(err, ErrModelUnavailable):
		m.log.Info("no persisted model, starting without one")
		return nil
	case errors.Is(err, ErrCorruptModel):
		m.log.Warn("persisted model is corrupt, starting without one", "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("loading persisted model: %w", err)
	}

	m.current.Store(persisted)
	m.log.Info("persisted model loaded",
		"version", persisted.Version,
		"trained_at", persisted.TrainedAt)
	return nil
}
