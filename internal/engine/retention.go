package engine

import (
	"sort"
	"time"
)

const day = 24 * time.Hour

// RetentionStats reports the share of users who came back within 1, 7 and
// 30 days of their first visit.
type RetentionStats struct {
	Users int     `json:"users"`
	Day1  float64 `json:"day1"`
	Day7  float64 `json:"day7"`
	Day30 float64 `json:"day30"`
}

// UserRetention says whether one user returned inside each window.
type UserRetention struct {
	Day1  bool
	Day7  bool
	Day30 bool
}

// retainedWithin reports whether any visit falls in (first, first+window].
func retainedWithin(visits []time.Time, first time.Time, window time.Duration) bool {
	limit := first.Add(window)
	for _, v := range visits {
		if v.After(first) && !v.After(limit) {
			return true
		}
	}
	return false
}

// retentionFor anchors on the earliest visit, regardless of record order.
func retentionFor(visits []time.Time) UserRetention {
	if len(visits) == 0 {
		return UserRetention{}
	}

	first := visits[0]
	for _, v := range visits[1:] {
		if v.Before(first) {
			first = v
		}
	}

	return UserRetention{
		Day1:  retainedWithin(visits, first, day),
		Day7:  retainedWithin(visits, first, 7*day),
		Day30: retainedWithin(visits, first, 30*day),
	}
}

// computeRetention is first-visit anchored. Users with no recorded visit
// still count toward the denominator.
func computeRetention(userIDs []string, visits *VisitLedger) RetentionStats {
	stats := RetentionStats{Users: len(userIDs)}
	if len(userIDs) == 0 {
		return stats
	}

	var d1, d7, d30 int
	for _, id := range userIDs {
		r := retentionFor(visits.Visits(id))
		if r.Day1 {
			d1++
		}
		if r.Day7 {
			d7++
		}
		if r.Day30 {
			d30++
		}
	}

	stats.Day1 = percent(d1, len(userIDs))
	stats.Day7 = percent(d7, len(userIDs))
	stats.Day30 = percent(d30, len(userIDs))
	return stats
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
