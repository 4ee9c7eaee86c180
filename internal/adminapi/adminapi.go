// Package adminapi is the DFS server's operational HTTP surface: a
// health probe and a JSON stats endpoint, served on a secondary port
// alongside the TCP piece protocol. It never participates in the
// DFC/DFS wire protocol.
package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/svmk2808/dfshard/internal/dfs"
	"github.com/svmk2808/dfshard/internal/dfsstore"
)

// statsResponse is the JSON body served at /stats.
type statsResponse struct {
	ActiveConnections int64 `json:"active_connections"`
	FilesPut          int64 `json:"files_put"`
	BytesRead         int64 `json:"bytes_read"`
	BytesWritten      int64 `json:"bytes_written"`
	IndexLSMBytes     int64 `json:"index_lsm_bytes"`
	IndexVlogBytes    int64 `json:"index_vlog_bytes"`
}

// NewRouter builds the admin HTTP handler for one running server and
// its store.
func NewRouter(server *dfs.Server, store *dfsstore.Store) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", statsHandler(server, store)).Methods(http.MethodGet)
	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func statsHandler(server *dfs.Server, store *dfsstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := store.Stats()
		resp := statsResponse{
			ActiveConnections: server.ActiveConnections(),
			FilesPut:          s.FilesPut,
			BytesRead:         s.BytesRead,
			BytesWritten:      s.BytesWrite,
			IndexLSMBytes:     s.IndexLSM,
			IndexVlogBytes:    s.IndexVlog,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
