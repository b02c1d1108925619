package engine

import (
	"sort"

	"github.com/gkobilansky/moment-meter/internal/events"
)

// userJourney collects the user's interactions across all moments, oldest
// first. An empty sessionID matches every session.
func userJourney(store *EventStore, userID, sessionID string) []events.Interaction {
	var journey []events.Interaction
	store.EachInteraction(func(_ string, items []events.Interaction) {
		for _, i := range items {
			if i.UserID != userID {
				continue
			}
			if sessionID != "" && i.SessionID != sessionID {
				continue
			}
			journey = append(journey, i)
		}
	})

	sort.SliceStable(journey, func(a, b int) bool {
		return journey[a].Timestamp.Before(journey[b].Timestamp)
	})
	return journey
}

type PersonalizationReport struct {
	UserID                 string  `json:"user_id"`
	PersonalizedCount      int     `json:"personalized_count"`
	GenericCount           int     `json:"generic_count"`
	PersonalizedConversion int     `json:"personalized_conversions"`
	GenericConversion      int     `json:"generic_conversions"`
	PersonalizedRate       float64 `json:"personalized_rate"`
	GenericRate            float64 `json:"generic_rate"`
	Lift                   float64 `json:"lift"`
}

// personalizationEffectiveness compares conversion rates of personalized and
// generic interactions for one user. A conversion outcome counts for a
// partition when any interaction in it shares the outcome's moment, so one
// outcome may count for both.
func personalizationEffectiveness(store *EventStore, userID string) PersonalizationReport {
	report := PersonalizationReport{UserID: userID}

	personalized := make(map[string]struct{})
	generic := make(map[string]struct{})
	for _, i := range userJourney(store, userID, "") {
		if i.Metadata.Personalized {
			report.PersonalizedCount++
			personalized[i.MomentID] = struct{}{}
		} else {
			report.GenericCount++
			generic[i.MomentID] = struct{}{}
		}
	}

	store.EachOutcome(func(momentID string, items []events.Outcome) {
		_, inPersonalized := personalized[momentID]
		_, inGeneric := generic[momentID]
		if !inPersonalized && !inGeneric {
			return
		}
		for _, o := range items {
			if o.UserID != userID || o.Type != events.OutcomeConversion {
				continue
			}
			if inPersonalized {
				report.PersonalizedConversion++
			}
			if inGeneric {
				report.GenericConversion++
			}
		}
	})

	report.PersonalizedRate = percent(report.PersonalizedConversion, report.PersonalizedCount)
	report.GenericRate = percent(report.GenericConversion, report.GenericCount)
	if report.GenericRate != 0 {
		report.Lift = (report.PersonalizedRate - report.GenericRate) / report.GenericRate * 100
	}
	return report
}
