package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// ExecutorResponse describes a cached executor.
type ExecutorResponse struct {
	PlaceID    string   `json:"place_id"`
	AccountID  string   `json:"account_id"`
	Population string   `json:"population,omitempty"`
	QueueDepth int      `json:"queue_depth"`
	Stopped    bool     `json:"stopped"`
	Subsystems []string `json:"subsystems"`
}

// SubsystemsResponse lists the subsystem snapshots of a place.
type SubsystemsResponse struct {
	PlaceID    string           `json:"place_id"`
	Subsystems []map[string]any `json:"subsystems"`
}

// handleGetExecutor reports the cached executor without loading one.
func (s *Server) handleGetExecutor(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "placeID")
	exec, ok := s.executors.Peek(placeID)
	if !ok {
		writePlaceError(w, http.StatusNotFound, ErrCodeExecutorNotCached, placeID, "no executor cached for place")
		return
	}

	p := exec.Place()
	addrs := exec.Addresses()
	resp := ExecutorResponse{
		PlaceID:    p.ID,
		AccountID:  p.AccountID,
		Population: p.Population,
		QueueDepth: exec.QueueDepth(),
		Stopped:    exec.Stopped(),
		Subsystems: make([]string, len(addrs)),
	}
	for i, addr := range addrs {
		resp.Subsystems[i] = addr.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvictExecutor evicts and stops the cached executor of a place. The
// next message for the place rebuilds it from storage.
func (s *Server) handleEvictExecutor(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "placeID")
	if _, ok := s.executors.Peek(placeID); !ok {
		writePlaceError(w, http.StatusNotFound, ErrCodeExecutorNotCached, placeID, "no executor cached for place")
		return
	}
	s.executors.RemoveByPlace(placeID)
	s.logger.Info("executor evicted via API", "place_id", placeID)
	w.WriteHeader(http.StatusNoContent)
}

// handleListSubsystems returns the snapshots of every live subsystem of a
// place, loading its executor on a miss.
func (s *Server) handleListSubsystems(w http.ResponseWriter, r *http.Request) {
	placeID := chi.URLParam(r, "placeID")
	exec, ok := s.executors.LoadByPlace(r.Context(), placeID)
	if !ok {
		writePlaceError(w, http.StatusNotFound, ErrCodePlaceNotFound, placeID, "place not found")
		return
	}

	snaps, err := exec.Snapshots()
	if errors.Is(err, subsystem.ErrExecutorStopped) {
		writePlaceError(w, http.StatusServiceUnavailable, ErrCodeExecutorStopping, placeID, "executor is stopping, retry")
		return
	}
	if err != nil {
		s.logger.Error("listing subsystems failed", "place_id", placeID, "error", err)
		writeInternalError(w, "listing subsystems failed")
		return
	}
	writeJSON(w, http.StatusOK, SubsystemsResponse{PlaceID: placeID, Subsystems: snaps})
}
