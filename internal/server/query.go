package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/events"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseTimeParam accepts RFC 3339 or a plain date. Empty means unbounded.
func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", v)
	}
	return t, nil
}

// parseEndParam parses an inclusive upper bound. A plain date covers the
// whole day.
func parseEndParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return endOfDay(t), nil
	}
	return parseTimeParam(v)
}

func endOfDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

type momentSummary struct {
	MomentID     string `json:"moment_id"`
	Interactions int    `json:"interactions"`
	Outcomes     int    `json:"outcomes"`
}

func (s *Server) handleMoments(w http.ResponseWriter, r *http.Request) {
	moments := s.engine.Moments()

	response := make([]momentSummary, 0, len(moments))
	for _, id := range moments {
		response = append(response, momentSummary{
			MomentID:     id,
			Interactions: len(s.engine.Interactions(id)),
			Outcomes:     len(s.engine.Outcomes(id)),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleEffectiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Effectiveness(chi.URLParam(r, "id")))
}

type funnelRequest struct {
	Steps []string `json:"steps"`
	Start string   `json:"start,omitempty"`
	End   string   `json:"end,omitempty"`
}

type funnelResponse struct {
	FunnelID string              `json:"funnel_id"`
	Steps    []engine.FunnelStep `json:"steps"`
}

func (s *Server) handleListFunnels(w http.ResponseWriter, r *http.Request) {
	defs := s.engine.Funnels()
	if defs == nil {
		defs = []engine.FunnelDefinition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleDefineFunnel(w http.ResponseWriter, r *http.Request) {
	var req funnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Steps) == 0 {
		http.Error(w, "steps are required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.DefineFunnel(chi.URLParam(r, "id"), req.Steps))
}

func (s *Server) handleGetFunnel(w http.ResponseWriter, r *http.Request) {
	def, ok := s.engine.FunnelDefinition(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "Funnel not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// handleAnalyzeFunnel uses the steps in the body, falling back to the stored
// definition when none are given.
func (s *Server) handleAnalyzeFunnel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req funnelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}

	start, err := parseTimeParam(req.Start)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseEndParam(req.End)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	steps := req.Steps
	if len(steps) == 0 {
		def, ok := s.engine.FunnelDefinition(id)
		if !ok {
			http.Error(w, "Funnel not found", http.StatusNotFound)
			return
		}
		steps = def.Steps
	}

	writeJSON(w, http.StatusOK, funnelResponse{
		FunnelID: id,
		Steps:    s.engine.AnalyzeFunnel(id, steps, start, end),
	})
}

type setupTestRequest struct {
	ID           string   `json:"id"`
	MomentA      string   `json:"moment_a"`
	MomentB      string   `json:"moment_b"`
	TrafficSplit *float64 `json:"traffic_split"`
}

func (s *Server) handleSetupTest(w http.ResponseWriter, r *http.Request) {
	var req setupTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.MomentA == "" || req.MomentB == "" {
		http.Error(w, "moment_a and moment_b are required", http.StatusBadRequest)
		return
	}

	split := 0.5
	if req.TrafficSplit != nil {
		split = *req.TrafficSplit
	}
	if split < 0 || split > 1 {
		http.Error(w, "traffic_split must be between 0 and 1", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	writeJSON(w, http.StatusCreated, s.engine.SetupTest(req.ID, req.MomentA, req.MomentB, split))
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests := s.engine.Tests()
	if tests == nil {
		tests = []engine.ABTest{}
	}
	writeJSON(w, http.StatusOK, tests)
}

func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	t, ok := s.engine.Test(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "Test not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAnalyzeTest(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.AnalyzeTest(chi.URLParam(r, "id"))
	if errors.Is(err, engine.ErrTestNotFound) {
		http.Error(w, "Test not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to analyze test", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleJourney(w http.ResponseWriter, r *http.Request) {
	journey := s.engine.UserJourney(chi.URLParam(r, "id"), r.URL.Query().Get("session"))
	if journey == nil {
		journey = []events.Interaction{}
	}
	writeJSON(w, http.StatusOK, journey)
}

func (s *Server) handlePersonalization(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.PersonalizationEffectiveness(chi.URLParam(r, "id")))
}

func (s *Server) handleCohorts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	groupBy := q.Get("group_by")
	if groupBy == "" {
		groupBy = string(engine.GroupByWeek)
	}
	g, err := engine.ParseGroupBy(groupBy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseEndParam(q.Get("end"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cohorts, err := s.engine.CohortAnalysis(start, end, g)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cohorts == nil {
		cohorts = []engine.Cohort{}
	}
	writeJSON(w, http.StatusOK, cohorts)
}
