// Package httpapi wires the gorilla/mux router: the WebSocket
// upgrade endpoint, a trivially-true readiness probe, and the admin
// room listing backed by the bbolt room directory index.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"drawroom/internal/roomindex"
	"drawroom/internal/rooms"
	"drawroom/internal/session"
)

// NewRouter assembles the service's HTTP surface. index may be nil,
// in which case /rooms always reports an empty list.
func NewRouter(manager *rooms.Manager, index *roomindex.Index, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.HandleFunc("/rooms", listRooms(index)).Methods(http.MethodGet)
	r.HandleFunc("/ws", session.ServeWS(manager, logger)).Methods(http.MethodGet)

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func listRooms(index *roomindex.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if index == nil {
			json.NewEncoder(w).Encode([]roomindex.Record{})
			return
		}
		records, err := index.List()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"err": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(records)
	}
}
