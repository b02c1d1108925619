package store

// MomentCount is a per-moment row count straight from the log, without
// replaying it into an engine.
type MomentCount struct {
	MomentID     string
	Interactions int
	Outcomes     int
}
