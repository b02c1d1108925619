package events

import "time"

type InteractionType string

const (
	InteractionView       InteractionType = "view"
	InteractionClick      InteractionType = "click"
	InteractionConversion InteractionType = "conversion"
	InteractionDismiss    InteractionType = "dismiss"
	InteractionEngagement InteractionType = "engagement"
)

// Known reports whether t is one of the interaction types above. Records with
// other types are still accepted.
func (t InteractionType) Known() bool {
	switch t {
	case InteractionView, InteractionClick, InteractionConversion, InteractionDismiss, InteractionEngagement:
		return true
	}
	return false
}

type OutcomeType string

const (
	OutcomeConversion OutcomeType = "conversion"
	OutcomeEngagement OutcomeType = "engagement"
	OutcomeBounce     OutcomeType = "bounce"
	OutcomeError      OutcomeType = "error"
)

func (t OutcomeType) Known() bool {
	switch t {
	case OutcomeConversion, OutcomeEngagement, OutcomeBounce, OutcomeError:
		return true
	}
	return false
}

// Interaction is a low-level user action against a moment.
type Interaction struct {
	MomentID  string          `json:"moment_id"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      InteractionType `json:"type"`
	Value     *float64        `json:"value,omitempty"` // Optional, nil when the producer sent none
	Metadata  Metadata        `json:"metadata"`
}

// ValueOrZero returns the numeric value, treating a missing one as zero.
func (i Interaction) ValueOrZero() float64 {
	if i.Value == nil {
		return 0
	}
	return *i.Value
}

// Outcome is a downstream business result attributed to a moment. It is
// linked to interactions only by (MomentID, UserID) equality.
type Outcome struct {
	MomentID         string         `json:"moment_id"`
	UserID           string         `json:"user_id"`
	DecisionID       string         `json:"decision_id"`
	Type             OutcomeType    `json:"type"`
	Value            float64        `json:"value"`
	Timestamp        time.Time      `json:"timestamp"`
	ConversionPath   []string       `json:"conversion_path,omitempty"`
	TimeToConversion *time.Duration `json:"time_to_conversion,omitempty"`
}

// Float returns a pointer to v, for building interactions with a value.
func Float(v float64) *float64 {
	return &v
}
