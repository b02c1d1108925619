package engine

import "time"

// VisitLedger records when each user was active. It only feeds retention.
type VisitLedger struct {
	visits *keyedLogs[time.Time]
}

func NewVisitLedger() *VisitLedger {
	return &VisitLedger{visits: newKeyedLogs[time.Time]()}
}

func (v *VisitLedger) Record(userID string, at time.Time) {
	v.visits.getOrCreate(userID).append(at)
}

// Visits returns the user's visit timestamps in the order they were recorded.
func (v *VisitLedger) Visits(userID string) []time.Time {
	return v.visits.snapshot(userID)
}
