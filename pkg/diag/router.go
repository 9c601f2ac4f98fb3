// Package diag serves the unit's diagnostics over HTTP.
package diag

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/itohio/gotelem/pkg/calibration"
	"github.com/itohio/gotelem/pkg/protocol"
	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// State is what the diagnostics endpoints read. Every field is optional.
type State struct {
	Gatherer prometheus.Gatherer
	Latest   *sensor.Latest
	Version  sensor.FirmwareVersion
	Store    *calibration.Store
}

// NewRouter wires /healthz, /metrics, /snapshot and /calibration.
func NewRouter(st State) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthHandler).Methods("GET")
	if st.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(st.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	r.HandleFunc("/snapshot", st.snapshotHandler).Methods("GET")
	r.HandleFunc("/calibration", st.calibrationHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

// snapshotHandler returns the sampling lane's latest snapshot in wire format.
func (st State) snapshotHandler(w http.ResponseWriter, _ *http.Request) {
	if st.Latest == nil {
		http.Error(w, "no sampler", http.StatusNotFound)
		return
	}
	snap, ok := st.Latest.Load()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(append(protocol.AppendObject(nil, st.Version, snap), '\n'))
}

type calibrationView struct {
	Value      int32  `json:"value"`
	Generation uint32 `json:"generation"`
	WrittenAt  string `json:"written_at,omitempty"`
	Valid      bool   `json:"valid"`
}

func (st State) calibrationHandler(w http.ResponseWriter, _ *http.Request) {
	if st.Store == nil {
		http.Error(w, "no calibration store", http.StatusNotFound)
		return
	}
	rec := st.Store.Current()
	view := calibrationView{Value: rec.Value, Generation: rec.Generation, Valid: rec.Valid}
	if rec.Valid {
		view.WrittenAt = rec.WrittenAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}
