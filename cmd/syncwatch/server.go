package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/syncwatch/internal/connection"
	"github.com/rickgao/syncwatch/internal/status"
	"github.com/rickgao/syncwatch/internal/version"
	"github.com/rickgao/syncwatch/internal/writer"
)

// newHealthHandler creates the HTTP handler for health checks.
func newHealthHandler(mgr connection.Manager, sw *writer.StatusWriter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		summary := mgr.CurrentSummary()

		w.Header().Set("Content-Type", "application/json")
		if summary.Tier == status.TierUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(summary)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"version":    version.String(),
			"connection": mgr.Stats(),
		}
		if sw != nil {
			resp["writer"] = sw.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	return mux
}
