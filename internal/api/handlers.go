package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/embercore/ember-core/internal/controller"
	"github.com/embercore/ember-core/internal/snapshot"
)

// statusResponse is the GET /status payload.
type statusResponse struct {
	Controller        controller.StatusInfo `json:"controller"`
	TrainingInstances int                   `json:"training_instances"`
	CurrentSetpoint   *setpointInfo         `json:"current_setpoint,omitempty"`
	StreamClients     int                   `json:"stream_clients"`
}

type setpointInfo struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// handleStatus reports the controller state machine, the size of the
// training log and the device's last known setpoint.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("counting training instances", "error", err)
		writeInternalError(w, "training store unavailable")
		return
	}

	resp := statusResponse{
		Controller:        s.controller.StatusInfo(),
		TrainingInstances: count,
	}
	if s.hub != nil {
		resp.StreamClients = s.hub.ClientCount()
	}
	if s.states != nil && s.targetEntity != "" {
		if ev, ok := s.states.ReadState(s.targetEntity); ok {
			if value, ok := snapshot.ParseValue(ev.Value); ok {
				resp.CurrentSetpoint = &setpointInfo{Value: value, At: ev.At}
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// setModeRequest is the PUT /mode payload.
type setModeRequest struct {
	Mode string `json:"mode"`
}

// handleSetMode switches the controller mode.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	mode, err := controller.ParseMode(req.Mode)
	if err != nil {
		writeBadRequest(w, "mode must be learning, controlling or learning_and_controlling")
		return
	}

	if err := s.controller.SetMode(r.Context(), mode); err != nil {
		if errors.Is(err, controller.ErrInvalidMode) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("setting mode", "error", err)
		writeInternalError(w, "failed to persist mode")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"mode": mode})
}

// handleRetrain starts an asynchronous retraining run.
func (s *Server) handleRetrain(w http.ResponseWriter, _ *http.Request) {
	jobID := s.controller.RequestRetrain()
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID})
}

// modelResponse is the GET /model payload.
type modelResponse struct {
	Version   int64     `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
	Regressor string    `json:"regressor"`
	Instances int       `json:"instances"`
	Schema    []string  `json:"schema"`
}

// handleGetModel describes the installed model.
func (s *Server) handleGetModel(w http.ResponseWriter, _ *http.Request) {
	current := s.models.Current()
	if current == nil {
		writeNotFound(w, "no model installed")
		return
	}

	writeJSON(w, http.StatusOK, modelResponse{
		Version:   current.Version,
		TrainedAt: current.TrainedAt,
		Regressor: current.RegressorKind(),
		Instances: current.Instances,
		Schema:    current.Schema,
	})
}

// handleExportTrainingData streams the training log as CSV.
func (s *Server) handleExportTrainingData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="training-data.csv"`)

	if err := s.store.ExportCSV(r.Context(), w); err != nil {
		// Headers may already be sent; log and abandon the response.
		s.logger.Error("exporting training data", "error", err)
	}
}
