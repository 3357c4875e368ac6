package web

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

// handleHealth answers 200 when ready, 503 otherwise.
func handleHealth(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Connected: true}
		status := http.StatusOK
		if ready != nil && !ready() {
			resp = healthResponse{Status: "unavailable"}
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
