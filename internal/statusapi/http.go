package statusapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/muurk/telemetryd/internal/logging"
	"github.com/muurk/telemetryd/internal/wifi"
)

// Health is the /healthz body.
type Health struct {
	Status wifi.Status `json:"status"`
	OK     bool        `json:"ok"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	h := Health{Status: snap.Status, OK: snap.Status == wifi.Connected}
	code := http.StatusOK
	if !h.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}
