package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gkobilansky/moment-meter/internal/events"
)

type Kind string

const (
	KindInteraction Kind = "interaction"
	KindOutcome     Kind = "outcome"
)

var ErrUnknownKind = errors.New("unknown envelope kind")

// Envelope is the wire form shared by the stream consumer and file imports.
// Exactly one of Interaction or Outcome is set, selected by Kind.
type Envelope struct {
	Kind        Kind                `json:"kind"`
	Interaction *events.Interaction `json:"interaction,omitempty"`
	Outcome     *events.Outcome     `json:"outcome,omitempty"`
}

// Recorder is the ingestion side of the engine.
type Recorder interface {
	RecordInteraction(events.Interaction)
	RecordOutcome(events.Outcome)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := env.validate(); err != nil {
		return env, err
	}
	return env, nil
}

func (e Envelope) validate() error {
	switch e.Kind {
	case KindInteraction:
		if e.Interaction == nil {
			return fmt.Errorf("interaction envelope without interaction body")
		}
	case KindOutcome:
		if e.Outcome == nil {
			return fmt.Errorf("outcome envelope without outcome body")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}

// Apply hands the envelope's record to r.
func (e Envelope) Apply(r Recorder) {
	switch e.Kind {
	case KindInteraction:
		r.RecordInteraction(*e.Interaction)
	case KindOutcome:
		r.RecordOutcome(*e.Outcome)
	}
}

// DecodeBatch parses a JSON array of envelopes, failing on the first bad one.
func DecodeBatch(data []byte) ([]Envelope, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode batch: %w", err)
	}

	envs := make([]Envelope, 0, len(raw))
	for i, msg := range raw {
		env, err := Decode(msg)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		envs = append(envs, env)
	}
	return envs, nil
}
