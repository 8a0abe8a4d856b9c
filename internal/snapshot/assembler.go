package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/embercore/ember-core/internal/origin"
	"github.com/embercore/ember-core/internal/statebus"
	"github.com/embercore/ember-core/internal/trainstore"
)

// appendTimeout bounds the store write triggered by a setpoint event.
// The event handler runs on an MQTT delivery goroutine and must not
// hang on a wedged database.
const appendTimeout = 5 * time.Second

// Controller is the slice of the control loop the assembler drives.
type Controller interface {
	// LearningEnabled reports whether human adjustments should be
	// captured as training instances.
	LearningEnabled() bool

	// RequestOverride forwards a human setpoint change. The controller
	// decides whether an override actually starts.
	RequestOverride(value float64, at time.Time)

	// NoteTrainingInstance is called after an instance is durably
	// stored, so retrain-every-N counting stays in step with the log.
	NoteTrainingInstance()
}

// TrainingSink receives captured training instances. Satisfied by
// *trainstore.SQLiteStore.
type TrainingSink interface {
	Append(ctx context.Context, inst trainstore.Instance) error
}

// SetpointRecorder receives setpoint observations for telemetry. May
// be nil when telemetry is disabled.
type SetpointRecorder interface {
	WriteSetpoint(deviceID string, value float64, origin string)
}

// Logger is the logging interface the assembler requires.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Config holds the assembler's wiring.
type Config struct {
	// TargetEntityID is the entity whose state is the setpoint, e.g.
	// "climate.living_room".
	TargetEntityID string

	// SensorEntityIDs are the entities merged into snapshots.
	SensorEntityIDs []string

	// Window is the debounce window for sensor bursts.
	Window time.Duration
}

// Deps are the assembler's collaborators.
type Deps struct {
	Ledger     *origin.Ledger
	Controller Controller
	Store      TrainingSink
	Telemetry  SetpointRecorder // optional
	Logger     Logger
}

// Assembler merges sensor events into feature snapshots and reacts to
// setpoint events on the target device.
//
// Thread Safety: HandleEvent and LatestSnapshot are safe for
// concurrent use.
type Assembler struct {
	cfg  Config
	deps Deps

	sensorFeatures map[string]string // entity ID -> feature name

	mu         sync.Mutex
	latest     map[string]float64
	latestAt   map[string]time.Time
	windowOpen bool
	timer      *time.Timer
}

// New creates an assembler. Subscribe its HandleEvent to the state bus
// for the target entity plus every sensor entity.
func New(cfg Config, deps Deps) *Assembler {
	features := make(map[string]string, len(cfg.SensorEntityIDs))
	for _, id := range cfg.SensorEntityIDs {
		features[id] = FeatureName(id)
	}
	return &Assembler{
		cfg:            cfg,
		deps:           deps,
		sensorFeatures: features,
		latest:         make(map[string]float64),
		latestAt:       make(map[string]time.Time),
	}
}

// EntityIDs returns every entity the assembler wants events for.
func (a *Assembler) EntityIDs() []string {
	ids := make([]string, 0, len(a.cfg.SensorEntityIDs)+1)
	ids = append(ids, a.cfg.SensorEntityIDs...)
	ids = append(ids, a.cfg.TargetEntityID)
	return ids
}

// HandleEvent routes one state event. Designed as the state bus
// subscription callback.
func (a *Assembler) HandleEvent(ev statebus.Event) {
	if ev.EntityID == a.cfg.TargetEntityID {
		a.handleSetpoint(ev)
		return
	}
	a.handleSensor(ev)
}

// LatestSnapshot returns a clone of the current merged feature state,
// stamped with the current time. Used by the predict loop.
func (a *Assembler) LatestSnapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(time.Now().UTC())
}

// handleSensor merges a sensor event into the feature cache.
//
// Last-timestamp-wins per feature: an event older than what the cache
// already holds is ignored, which makes the merged result independent
// of delivery order.
func (a *Assembler) handleSensor(ev statebus.Event) {
	name, ok := a.sensorFeatures[ev.EntityID]
	if !ok {
		a.deps.Logger.Debug("ignoring event for unwatched entity", "entity_id", ev.EntityID)
		return
	}

	value, ok := ParseValue(ev.Value)
	if !ok {
		a.deps.Logger.Warn("ignoring non-numeric sensor state",
			"entity_id", ev.EntityID,
			"value", ev.Value)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, seen := a.latestAt[name]; seen && ev.At.Before(prev) {
		return
	}
	a.latest[name] = value
	a.latestAt[name] = ev.At

	if !a.windowOpen {
		a.windowOpen = true
		a.timer = time.AfterFunc(a.cfg.Window, a.closeWindow)
	}
}

// handleSetpoint classifies a setpoint event and, for human changes,
// captures a training instance and raises an override request.
func (a *Assembler) handleSetpoint(ev statebus.Event) {
	value, ok := ParseValue(ev.Value)
	if !ok {
		a.deps.Logger.Warn("ignoring non-numeric setpoint state", "value", ev.Value)
		return
	}

	who := a.deps.Ledger.Resolve(value)
	if a.deps.Telemetry != nil {
		a.deps.Telemetry.WriteSetpoint(a.cfg.TargetEntityID, value, string(who))
	}

	if who == origin.System {
		a.deps.Logger.Debug("setpoint echo from own command", "value", value)
		return
	}

	a.deps.Logger.Debug("human setpoint change", "value", value, "at", ev.At)

	// Settle any in-flight sensor burst so the captured snapshot is
	// the one the human was reacting to.
	a.flushWindow()

	if a.deps.Controller.LearningEnabled() {
		a.captureInstance(value, ev.At)
	}
	a.deps.Controller.RequestOverride(value, ev.At)
}

// captureInstance stores the current snapshot paired with the chosen
// setpoint.
func (a *Assembler) captureInstance(target float64, at time.Time) {
	a.mu.Lock()
	snap := a.snapshotLocked(at)
	a.mu.Unlock()

	if len(snap.Features) == 0 {
		a.deps.Logger.Warn("no sensor data yet, skipping training instance",
			"target", target)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	inst := trainstore.Instance{
		ObservedAt: at,
		Features:   snap.Features,
		Target:     target,
	}
	if err := a.deps.Store.Append(ctx, inst); err != nil {
		a.deps.Logger.Error("failed to store training instance", "error", err)
		return
	}

	a.deps.Logger.Debug("training instance captured",
		"target", target,
		"features", len(snap.Features))
	a.deps.Controller.NoteTrainingInstance()
}

// flushWindow closes any open debounce window immediately.
func (a *Assembler) flushWindow() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.windowOpen {
		a.timer.Stop()
		a.windowOpen = false
	}
}

// closeWindow is the debounce timer callback.
func (a *Assembler) closeWindow() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.windowOpen = false
	a.deps.Logger.Debug("snapshot window settled", "features", len(a.latest))
}

// snapshotLocked builds a clone of the feature cache. Caller must hold mu.
func (a *Assembler) snapshotLocked(at time.Time) Snapshot {
	features := make(map[string]float64, len(a.latest))
	for k, v := range a.latest {
		features[k] = v
	}
	return Snapshot{At: at, Features: features}
}
