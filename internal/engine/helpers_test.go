package engine_test

import (
	"time"

	"github.com/gkobilansky/moment-meter/internal/events"
)

// Monday, so weekly cohorts line up with the ISO week.
var base = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

func at(days int) time.Time {
	return base.Add(time.Duration(days) * 24 * time.Hour)
}

func interaction(moment, user string, typ events.InteractionType, ts time.Time) events.Interaction {
	return events.Interaction{
		MomentID:  moment,
		UserID:    user,
		SessionID: "s-" + user,
		Timestamp: ts,
		Type:      typ,
	}
}

func stepInteraction(user, step string, ts time.Time) events.Interaction {
	i := interaction("checkout-moment", user, events.InteractionView, ts)
	i.Metadata.Step = step
	return i
}

func conversion(moment, user string, value float64) events.Outcome {
	return events.Outcome{
		MomentID:   moment,
		UserID:     user,
		DecisionID: "d-" + user,
		Type:       events.OutcomeConversion,
		Value:      value,
		Timestamp:  base,
	}
}
