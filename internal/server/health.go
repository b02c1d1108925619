package server

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string `json:"status"`
	MomentsCount  int    `json:"moments_count"`
	TestsCount    int    `json:"tests_count"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var dbSize int64
	if s.store != nil {
		row := s.store.DB().QueryRowContext(r.Context(), "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
		if err := row.Scan(&dbSize); err != nil {
			s.log.Sugar().Warnw("failed to read database size", "error", err)
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		MomentsCount:  len(s.engine.Moments()),
		TestsCount:    len(s.engine.Tests()),
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}
