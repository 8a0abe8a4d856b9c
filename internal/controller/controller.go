package controller

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/embercore/ember-core/internal/model"
	"github.com/embercore/ember-core/internal/origin"
	"github.com/embercore/ember-core/internal/snapshot"
	"github.com/embercore/ember-core/internal/trainstore"
)

// persistTimeout bounds state writes triggered from timer callbacks.
const persistTimeout = 5 * time.Second

// ModelManager is the slice of the model lifecycle the controller drives.
type ModelManager interface {
	Predict(snap snapshot.Snapshot) (float64, error)
	Train(ctx context.Context, instances []trainstore.Instance) (*model.Model, error)
	Install(trained *model.Model)
	Current() *model.Model
}

// TrainingLog supplies instances for retraining.
type TrainingLog interface {
	Scan(ctx context.Context) ([]trainstore.Instance, error)
}

// SnapshotSource supplies the current merged feature state.
type SnapshotSource interface {
	LatestSnapshot() snapshot.Snapshot
}

// Actuator issues device commands. Satisfied by *statebus.Bus.
type Actuator interface {
	CallService(domain, deviceID, service string, params map[string]any) error
}

// StateStore persists controller state across restarts.
type StateStore interface {
	SaveState(ctx context.Context, state PersistedState) error
	LoadState(ctx context.Context) (PersistedState, bool, error)
}

// Telemetry receives controller metrics. May be nil.
type Telemetry interface {
	WritePrediction(deviceID string, modelVersion int64, predicted float64, issued bool)
	WriteTrainingRun(outcome string, modelVersion int64, instances int, duration time.Duration)
	WriteOverride(deviceID string, active bool, pinnedTarget float64)
}

// Logger is the logging interface the controller requires.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Config holds the controller's tunables.
type Config struct {
	// DeviceID is the controlled device, e.g. "living_room".
	DeviceID string

	// Domain and Service form the actuation command. Typically
	// "climate" / "set_temperature".
	Domain  string
	Service string

	// PredictInterval is the period of the predict-and-actuate loop.
	PredictInterval time.Duration

	// OverrideDuration is how long a manual override suspends control.
	OverrideDuration time.Duration

	// MinSetpointDelta is the deadband: predictions closer than this
	// to the last issued setpoint are not re-issued.
	MinSetpointDelta float64

	// RetrainTime is the daily scheduled retrain as "HH:MM" local
	// time. Empty disables the schedule.
	RetrainTime string

	// RetrainEveryN triggers a retrain after this many new instances.
	// Zero disables the trigger.
	RetrainEveryN int
}

// Deps are the controller's collaborators.
type Deps struct {
	Models    ModelManager
	Log       TrainingLog
	Snapshots SnapshotSource
	Actuator  Actuator
	Ledger    *origin.Ledger
	States    StateStore
	Telemetry Telemetry // optional
	Logger    Logger
}

// Controller is the control-loop state machine.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Controller struct {
	cfg  Config
	deps Deps

	mu            sync.Mutex
	mode          Mode
	status        Status
	detail        string
	override      OverrideState
	overrideTimer *time.Timer
	lastIssued    *float64
	newInstances  int
	latestJob     string
	onStatus      func(StatusInfo)
}

// New creates a controller starting in learning mode with no override.
func New(cfg Config, deps Deps) *Controller {
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		mode:   ModeLearning,
		status: StatusIdle,
	}
}

// Restore loads persisted state. An override that expired while the
// process was down is discarded; one still in the future is re-armed
// with its remaining time.
func (c *Controller) Restore(ctx context.Context) error {
	state, ok, err := c.deps.States.LoadState(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	c.mu.Lock()
	c.mode = state.Mode
	c.lastIssued = state.LastIssued
	if state.Override.Active {
		remaining := time.Until(state.Override.ExpiresAt)
		if remaining > 0 {
			c.override = state.Override
			c.overrideTimer = time.AfterFunc(remaining, c.expireOverride)
		} else {
			c.deps.Logger.Info("discarding override that expired while down",
				"expired_at", state.Override.ExpiresAt)
		}
	}
	c.recomputeStatusLocked("")
	c.mu.Unlock()

	c.deps.Logger.Info("controller state restored",
		"mode", state.Mode,
		"override_active", c.OverrideActive())
	return nil
}

// Run drives the predict loop and the scheduled retrain until ctx is
// cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PredictInterval)
	defer ticker.Stop()

	var retrainC <-chan time.Time
	var retrainTimer *time.Timer
	if c.cfg.RetrainTime != "" {
		next := nextRetrainAt(time.Now(), c.cfg.RetrainTime)
		retrainTimer = time.NewTimer(time.Until(next))
		defer retrainTimer.Stop()
		retrainC = retrainTimer.C
		c.deps.Logger.Info("scheduled retrain armed", "next", next)
	}

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.overrideTimer != nil {
				c.overrideTimer.Stop()
			}
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.tick()
		case <-retrainC:
			c.deps.Logger.Info("scheduled retrain firing")
			c.RequestRetrain()
			next := nextRetrainAt(time.Now(), c.cfg.RetrainTime)
			retrainTimer.Reset(time.Until(next))
		}
	}
}

// SetSnapshotSource supplies the feature source. The assembler and the
// controller reference each other, so one side is wired after
// construction. Must be called before Run.
func (c *Controller) SetSnapshotSource(src SnapshotSource) {
	c.mu.Lock()
	c.deps.Snapshots = src
	c.mu.Unlock()
}

// SetOnStatusChange registers a listener called after every status
// transition. Must be called before Run.
func (c *Controller) SetOnStatusChange(fn func(StatusInfo)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches mode and persists the change. An active override
// survives a mode switch; it simply has no effect while control is
// disabled.
func (c *Controller) SetMode(ctx context.Context, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	c.mode = mode
	c.recomputeStatusLocked("")
	state := c.persistedStateLocked()
	c.mu.Unlock()

	c.deps.Logger.Info("mode changed", "mode", mode)
	return c.deps.States.SaveState(ctx, state)
}

// LearningEnabled implements the assembler's controller interface.
func (c *Controller) LearningEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode.Learning()
}

// ControlEnabled reports whether the predict loop may actuate.
func (c *Controller) ControlEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode.Controlling()
}

// OverrideActive reports whether a manual override is in effect.
func (c *Controller) OverrideActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.override.Active
}

// StatusInfo returns the current observable state.
func (c *Controller) StatusInfo() StatusInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusInfoLocked()
}

// RequestOverride handles a human setpoint change forwarded by the
// assembler.
//
// While controlling, the change starts (or restarts) an override
// pinned at the chosen value; a second change before expiry replaces
// the pin and resets the countdown. In learning-only mode the change
// just clears any leftover override.
func (c *Controller) RequestOverride(value float64, at time.Time) {
	c.mu.Lock()

	if !c.mode.Controlling() {
		if c.override.Active {
			c.clearOverrideLocked()
			state := c.persistedStateLocked()
			c.mu.Unlock()
			c.persist(state)
			c.emitOverrideTelemetry(false, 0)
			return
		}
		c.mu.Unlock()
		return
	}

	if c.overrideTimer != nil {
		c.overrideTimer.Stop()
	}
	expires := time.Now().Add(c.cfg.OverrideDuration)
	c.override = OverrideState{Active: true, ExpiresAt: expires, PinnedTarget: value}
	c.overrideTimer = time.AfterFunc(c.cfg.OverrideDuration, c.expireOverride)

	// The device already holds the human's value; remember it so the
	// deadband works against reality once the override lapses.
	v := value
	c.lastIssued = &v

	c.setStatusLocked(StatusOverrideActive, "")
	state := c.persistedStateLocked()
	c.mu.Unlock()

	c.deps.Logger.Info("override started",
		"pinned_target", value,
		"expires_at", expires)
	c.persist(state)
	c.emitOverrideTelemetry(true, value)
}

// NoteTrainingInstance implements the assembler's controller
// interface: counts new instances toward the retrain-every-N trigger.
func (c *Controller) NoteTrainingInstance() {
	c.mu.Lock()
	c.newInstances++
	n := c.newInstances
	c.mu.Unlock()

	if c.cfg.RetrainEveryN > 0 && n >= c.cfg.RetrainEveryN {
		c.deps.Logger.Info("retrain threshold reached", "new_instances", n)
		c.RequestRetrain()
	}
}

// tick runs one predict-and-actuate cycle.
func (c *Controller) tick() {
	c.mu.Lock()
	if !c.mode.Controlling() {
		c.setStatusLocked(StatusIdle, "control disabled")
		c.mu.Unlock()
		return
	}
	if c.override.Active {
		c.setStatusLocked(StatusOverrideActive, "")
		c.mu.Unlock()
		return
	}
	c.setStatusLocked(StatusPredicting, "")
	c.mu.Unlock()

	snap := c.deps.Snapshots.LatestSnapshot()
	predicted, err := c.deps.Models.Predict(snap)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrModelUnavailable):
			// Controlling without a model is an error condition until
			// training succeeds, not a quiet idle.
			c.setStatus(StatusError, "awaiting model")
		default:
			c.deps.Logger.Error("prediction failed", "error", err)
			c.setStatus(StatusError, "prediction failed")
		}
		return
	}

	predicted = roundSetpoint(predicted)
	version := c.modelVersion()

	c.mu.Lock()
	if c.override.Active {
		// An override arrived while we were predicting.
		c.setStatusLocked(StatusOverrideActive, "")
		c.mu.Unlock()
		return
	}
	if c.lastIssued != nil && math.Abs(predicted-*c.lastIssued) < c.cfg.MinSetpointDelta {
		c.setStatusLocked(StatusIdle, "prediction within deadband")
		c.mu.Unlock()
		c.emitPredictionTelemetry(version, predicted, false)
		return
	}
	c.mu.Unlock()

	// Record the expectation before publishing so the echoed state
	// event cannot be mistaken for a human change.
	c.deps.Ledger.Expect(predicted)
	err = c.deps.Actuator.CallService(c.cfg.Domain, c.cfg.DeviceID, c.cfg.Service,
		map[string]any{"temperature": predicted})
	if err != nil {
		c.deps.Logger.Error("actuation failed", "error", err, "setpoint", predicted)
		c.setStatus(StatusError, "actuation failed")
		return
	}

	c.mu.Lock()
	v := predicted
	c.lastIssued = &v
	c.setStatusLocked(StatusIdle, "")
	state := c.persistedStateLocked()
	c.mu.Unlock()

	c.deps.Logger.Info("setpoint issued",
		"setpoint", predicted,
		"model_version", version)
	c.persist(state)
	c.emitPredictionTelemetry(version, predicted, true)
}

// expireOverride is the override timer callback.
func (c *Controller) expireOverride() {
	c.mu.Lock()
	if !c.override.Active {
		c.mu.Unlock()
		return
	}
	c.clearOverrideLocked()
	state := c.persistedStateLocked()
	c.mu.Unlock()

	c.deps.Logger.Info("override expired, control resumes")
	c.persist(state)
	c.emitOverrideTelemetry(false, 0)
}

// clearOverrideLocked resets override state. Caller must hold mu.
func (c *Controller) clearOverrideLocked() {
	if c.overrideTimer != nil {
		c.overrideTimer.Stop()
		c.overrideTimer = nil
	}
	c.override = OverrideState{}
	c.recomputeStatusLocked("")
}

// recomputeStatusLocked derives status from mode and override after a
// structural change. Caller must hold mu.
func (c *Controller) recomputeStatusLocked(detail string) {
	switch {
	case c.override.Active && c.mode.Controlling():
		c.setStatusLocked(StatusOverrideActive, detail)
	default:
		c.setStatusLocked(StatusIdle, detail)
	}
}

// setStatus is setStatusLocked with its own locking.
func (c *Controller) setStatus(status Status, detail string) {
	c.mu.Lock()
	c.setStatusLocked(status, detail)
	c.mu.Unlock()
}

// setStatusLocked updates status and notifies the listener. Caller
// must hold mu.
func (c *Controller) setStatusLocked(status Status, detail string) {
	changed := c.status != status || c.detail != detail
	c.status = status
	c.detail = detail
	if changed && c.onStatus != nil {
		info := c.statusInfoLocked()
		go c.onStatus(info)
	}
}

// statusInfoLocked builds a StatusInfo. Caller must hold mu.
func (c *Controller) statusInfoLocked() StatusInfo {
	info := StatusInfo{
		Mode:      c.mode,
		Status:    c.status,
		Detail:    c.detail,
		Override:  c.override,
		UpdatedAt: time.Now().UTC(),
	}
	if current := c.deps.Models.Current(); current != nil {
		info.ModelVersion = current.Version
	}
	if c.lastIssued != nil {
		v := *c.lastIssued
		info.LastIssued = &v
	}
	return info
}

// persistedStateLocked copies what must survive a restart. Caller
// must hold mu.
func (c *Controller) persistedStateLocked() PersistedState {
	state := PersistedState{Mode: c.mode, Override: c.override}
	if c.lastIssued != nil {
		v := *c.lastIssued
		state.LastIssued = &v
	}
	return state
}

// persist writes state with a bounded context; failures are logged,
// never fatal.
func (c *Controller) persist(state PersistedState) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.deps.States.SaveState(ctx, state); err != nil {
		c.deps.Logger.Error("failed to persist controller state", "error", err)
	}
}

// modelVersion returns the installed model's version, or zero.
func (c *Controller) modelVersion() int64 {
	if current := c.deps.Models.Current(); current != nil {
		return current.Version
	}
	return 0
}

func (c *Controller) emitPredictionTelemetry(version int64, predicted float64, issued bool) {
	if c.deps.Telemetry != nil {
		c.deps.Telemetry.WritePrediction(c.cfg.DeviceID, version, predicted, issued)
	}
}

func (c *Controller) emitOverrideTelemetry(active bool, pinned float64) {
	if c.deps.Telemetry != nil {
		c.deps.Telemetry.WriteOverride(c.cfg.DeviceID, active, pinned)
	}
}

// roundSetpoint quantises to the 0.1 degree steps thermostats accept.
func roundSetpoint(v float64) float64 {
	return math.Round(v*10) / 10
}
