package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gkobilansky/moment-meter/internal/events"
)

const maxIngestBody = 1 << 20

// decodeOneOrMany accepts a single JSON object or an array of them.
func decodeOneOrMany[T any](r io.Reader) ([]T, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxIngestBody))
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []T
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}

	var one T
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	batch, err := decodeOneOrMany[events.Interaction](r.Body)
	if err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	for _, i := range batch {
		s.engine.RecordInteraction(i)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	batch, err := decodeOneOrMany[events.Outcome](r.Body)
	if err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	for _, o := range batch {
		s.engine.RecordOutcome(o)
	}

	w.WriteHeader(http.StatusNoContent)
}
