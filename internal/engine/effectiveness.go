package engine

import (
	"time"

	"github.com/gkobilansky/moment-meter/internal/events"
)

// EffectivenessStats is a point-in-time snapshot for one moment. Rates are
// percentages. ConversionRate is conversions over clicks and is not clamped,
// so it exceeds 100 when conversions outnumber clicks.
type EffectivenessStats struct {
	MomentID              string         `json:"moment_id"`
	TotalViews            int            `json:"total_views"`
	TotalClicks           int            `json:"total_clicks"`
	TotalDismissals       int            `json:"total_dismissals"`
	TotalConversions      int            `json:"total_conversions"`
	TotalBounces          int            `json:"total_bounces"`
	TotalInteractions     int            `json:"total_interactions"`
	UniqueUsers           int            `json:"unique_users"`
	ClickThroughRate      float64        `json:"click_through_rate"`
	ConversionRate        float64        `json:"conversion_rate"`
	BounceRate            float64        `json:"bounce_rate"`
	AverageEngagementTime float64        `json:"average_engagement_time"`
	RevenueAttribution    float64        `json:"revenue_attribution"`
	UserRetention         RetentionStats `json:"user_retention"`
	ComputedAt            time.Time      `json:"computed_at"`
}

// percent returns part/whole*100, or 0 for an empty whole.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func computeEffectiveness(momentID string, interactions []events.Interaction, outcomes []events.Outcome, visits *VisitLedger, now time.Time) EffectivenessStats {
	stats := EffectivenessStats{
		MomentID:          momentID,
		TotalInteractions: len(interactions),
		ComputedAt:        now,
	}

	users := make(map[string]struct{})
	var engagementTotal float64
	var engagements int

	for _, i := range interactions {
		users[i.UserID] = struct{}{}

		switch i.Type {
		case events.InteractionView:
			stats.TotalViews++
		case events.InteractionClick:
			stats.TotalClicks++
		case events.InteractionDismiss:
			stats.TotalDismissals++
		case events.InteractionEngagement:
			engagements++
			engagementTotal += i.ValueOrZero()
		}
	}

	for _, o := range outcomes {
		switch o.Type {
		case events.OutcomeConversion:
			stats.TotalConversions++
			stats.RevenueAttribution += o.Value
		case events.OutcomeBounce:
			stats.TotalBounces++
		}
	}

	stats.ClickThroughRate = percent(stats.TotalClicks, stats.TotalViews)
	stats.ConversionRate = percent(stats.TotalConversions, stats.TotalClicks)
	stats.BounceRate = percent(stats.TotalBounces, stats.TotalViews)
	if engagements > 0 {
		stats.AverageEngagementTime = engagementTotal / float64(engagements)
	}

	stats.UniqueUsers = len(users)
	stats.UserRetention = computeRetention(setKeys(users), visits)

	return stats
}
