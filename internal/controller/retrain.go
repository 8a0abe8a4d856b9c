package controller

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/embercore/ember-core/internal/model"
)

// trainTimeout bounds one retraining run, scan included.
const trainTimeout = 2 * time.Minute

// Training run outcomes recorded to telemetry.
const (
	outcomeTrained      = "trained"
	outcomeInsufficient = "insufficient_data"
	outcomeSuperseded   = "superseded"
	outcomeError        = "error"
)

// RequestRetrain starts an asynchronous retraining run and returns its
// job ID. Runs are supersede-latest: if another request arrives before
// this one finishes, the earlier result is discarded and never
// installed, so the newest data always wins.
func (c *Controller) RequestRetrain() string {
	id := uuid.NewString()

	c.mu.Lock()
	c.latestJob = id
	c.setStatusLocked(StatusTraining, "")
	c.mu.Unlock()

	c.deps.Logger.Info("retrain requested", "job_id", id)
	go c.runRetrain(id)
	return id
}

// runRetrain executes one training job.
func (c *Controller) runRetrain(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), trainTimeout)
	defer cancel()
	start := time.Now()

	instances, err := c.deps.Log.Scan(ctx)
	if err != nil {
		c.deps.Logger.Error("retrain: scanning training log", "job_id", id, "error", err)
		c.finishRetrain(id, StatusError, "training data unavailable")
		c.emitTrainingTelemetry(outcomeError, 0, 0, time.Since(start))
		return
	}

	trained, err := c.deps.Models.Train(ctx, instances)
	switch {
	case errors.Is(err, model.ErrInsufficientData):
		c.deps.Logger.Info("retrain: not enough data yet",
			"job_id", id,
			"instances", len(instances))
		c.finishRetrain(id, StatusIdle, "awaiting data")
		c.emitTrainingTelemetry(outcomeInsufficient, 0, len(instances), time.Since(start))
		return
	case err != nil:
		c.deps.Logger.Error("retrain: training failed", "job_id", id, "error", err)
		c.finishRetrain(id, StatusError, "training failed")
		c.emitTrainingTelemetry(outcomeError, 0, len(instances), time.Since(start))
		return
	}

	c.mu.Lock()
	superseded := c.latestJob != id
	c.mu.Unlock()
	if superseded {
		c.deps.Logger.Info("retrain: result superseded by newer request",
			"job_id", id,
			"version", trained.Version)
		c.emitTrainingTelemetry(outcomeSuperseded, trained.Version, len(instances), time.Since(start))
		return
	}

	c.deps.Models.Install(trained)

	c.mu.Lock()
	c.newInstances = 0
	c.mu.Unlock()
	c.finishRetrain(id, StatusIdle, "")

	c.deps.Logger.Info("retrain complete",
		"job_id", id,
		"version", trained.Version,
		"instances", len(instances),
		"duration", time.Since(start))
	c.emitTrainingTelemetry(outcomeTrained, trained.Version, len(instances), time.Since(start))
}

// finishRetrain clears the training status, but only if this job is
// still the latest; a newer run owns the status otherwise.
func (c *Controller) finishRetrain(id string, status Status, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latestJob != id {
		return
	}
	c.latestJob = ""
	if c.override.Active && c.mode.Controlling() {
		c.setStatusLocked(StatusOverrideActive, "")
		return
	}
	c.setStatusLocked(status, detail)
}

func (c *Controller) emitTrainingTelemetry(outcome string, version int64, instances int, d time.Duration) {
	if c.deps.Telemetry != nil {
		c.deps.Telemetry.WriteTrainingRun(outcome, version, instances, d)
	}
}

// nextRetrainAt returns the next occurrence of the "HH:MM" wall-clock
// time strictly after now, in now's location.
func nextRetrainAt(now time.Time, hhmm string) time.Time {
	at, err := time.Parse("15:04", hhmm)
	if err != nil {
		// Config validation rejects bad values; fall back to a day.
		return now.Add(24 * time.Hour)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(),
		at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
