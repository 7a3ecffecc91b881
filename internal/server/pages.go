package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// recoverPages turns a panic in the page handler into a bare 500 so a
// faulty page never reaches the relay sessions.
func recoverPages(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("error occurred handling request", "url", r.URL.String(), "err", rec)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Connections: s.hub.ClientCount()}); err != nil {
		s.logger.Error("failed to write health response", "err", err)
	}
}
