package trainstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/embercore/ember-core/internal/infrastructure/database"
)

// Logger is the logging interface the store requires.
type Logger interface {
	Warn(msg string, args ...any)
}

// SQLiteStore is the append-only training log over SQLite.
//
// Thread Safety: safe for concurrent use; all state lives in the
// database.
type SQLiteStore struct {
	db  *database.DB
	log Logger
}

// NewSQLiteStore creates a store over an opened, migrated database.
func NewSQLiteStore(db *database.DB, log Logger) *SQLiteStore {
	return &SQLiteStore{db: db, log: log}
}

// Append durably stores one instance. Assigns a fresh ID when the
// instance has none. The write is O(1) in the size of the log.
func (s *SQLiteStore) Append(ctx context.Context, inst Instance) error {
	if len(inst.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidInstance)
	}
	if math.IsNaN(inst.Target) || math.IsInf(inst.Target, 0) {
		return fmt.Errorf("%w: non-finite target", ErrInvalidInstance)
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.ObservedAt.IsZero() {
		inst.ObservedAt = time.Now().UTC()
	}

	features, err := json.Marshal(inst.Features)
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO training_instances (id, observed_at, features, target)
		VALUES (?, ?, ?, ?)`,
		inst.ID,
		inst.ObservedAt.UTC().Format(time.RFC3339Nano),
		string(features),
		inst.Target,
	)
	if err != nil {
		return fmt.Errorf("appending training instance: %w", err)
	}
	return nil
}

// Scan returns all instances in insertion order. Rows that fail to
// decode are skipped with a warning; they never fail the scan.
func (s *SQLiteStore) Scan(ctx context.Context) ([]Instance, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, observed_at, features, target
		FROM training_instances
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("scanning training instances: %w", err)
	}
	defer rows.Close()

	var instances []Instance
	for rows.Next() {
		var (
			id, observedAt, features string
			target                   float64
		)
		if err := rows.Scan(&id, &observedAt, &features, &target); err != nil {
			return nil, fmt.Errorf("reading training instance row: %w", err)
		}

		inst, err := decodeRow(id, observedAt, features, target)
		if err != nil {
			s.log.Warn("skipping corrupt training instance",
				"id", id,
				"error", err)
			continue
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning training instances: %w", err)
	}
	return instances, nil
}

// Count returns the number of stored instances, including any rows
// that Scan would skip as corrupt.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM training_instances").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting training instances: %w", err)
	}
	return n, nil
}

// ExportCSV writes the full log as CSV: a timestamp column, one column
// per feature name (sorted union across all rows, blank where a row
// lacks the feature) and a trailing target column.
func (s *SQLiteStore) ExportCSV(ctx context.Context, w io.Writer) error {
	instances, err := s.Scan(ctx)
	if err != nil {
		return err
	}

	nameSet := make(map[string]struct{})
	for _, inst := range instances {
		for name := range inst.Features {
			nameSet[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	cw := csv.NewWriter(w)
	header := append(append([]string{"observed_at"}, names...), "target")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, inst := range instances {
		record := make([]string, 0, len(header))
		record = append(record, inst.ObservedAt.UTC().Format(time.RFC3339))
		for _, name := range names {
			if v, ok := inst.Features[name]; ok {
				record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		record = append(record, strconv.FormatFloat(inst.Target, 'g', -1, 64))
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

// decodeRow turns raw column values into an Instance.
func decodeRow(id, observedAt, features string, target float64) (Instance, error) {
	at, err := time.Parse(time.RFC3339Nano, observedAt)
	if err != nil {
		return Instance{}, fmt.Errorf("parsing observed_at: %w", err)
	}

	var f map[string]float64
	if err := json.Unmarshal([]byte(features), &f); err != nil {
		return Instance{}, fmt.Errorf("parsing features: %w", err)
	}

	return Instance{ID: id, ObservedAt: at, Features: f, Target: target}, nil
}
