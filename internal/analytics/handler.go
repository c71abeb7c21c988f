package analytics

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"shopfloor-cloud/internal/alarms/store"
)

// StatsHandler serves GET /api/v1/stats/utilization.
type StatsHandler struct {
	st store.Store
}

// NewStatsHandler constructs a stats handler.
func NewStatsHandler(st store.Store) (*StatsHandler, error) {
	if st == nil {
		return nil, errors.New("stats handler: nil store")
	}
	return &StatsHandler{st: st}, nil
}

// ServeHTTP answers the utilization query for one stream.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	device := query.Get("device")
	dataID := query.Get("data_id")
	if device == "" || dataID == "" {
		http.Error(w, "device and data_id are required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, query.Get("from"))
	if err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, query.Get("to"))
	if err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	rows, err := h.st.ReadLog(r.Context(), device, dataID, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	spans := Utilization(rows, from, to)
	if spans == nil {
		spans = []ValueSpan{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(spans)
}
