package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gkobilansky/moment-meter/internal/events"
)

var ErrInvalidGroupBy = errors.New("group by must be 'week' or 'month'")

type GroupBy string

const (
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

// RetentionPeriods is how many periods after the cohort's own are tracked.
const RetentionPeriods = 12

func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(s) {
	case GroupByWeek, GroupByMonth:
		return GroupBy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGroupBy, s)
}

type PeriodRetention struct {
	Period      int       `json:"period"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ActiveUsers int       `json:"active_users"`
	Retention   float64   `json:"retention"`
}

// Cohort groups the users active in one week or month. A user active in
// several periods belongs to several cohorts.
type Cohort struct {
	Key         string            `json:"key"`
	PeriodStart time.Time         `json:"period_start"`
	Size        int               `json:"size"`
	Users       []string          `json:"users"`
	Retention   []PeriodRetention `json:"retention"`
}

// cohortPeriod returns the bucket key and the UTC start of the bucket
// containing ts.
func cohortPeriod(ts time.Time, groupBy GroupBy) (string, time.Time) {
	t := ts.UTC()
	if groupBy == GroupByMonth {
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start.Format("2006-01"), start
	}

	year, week := t.ISOWeek()
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	start := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("%04d-W%02d", year, week), start
}

func addPeriods(start time.Time, groupBy GroupBy, n int) time.Time {
	if groupBy == GroupByMonth {
		return start.AddDate(0, n, 0)
	}
	return start.AddDate(0, 0, 7*n)
}

func anyVisitIn(visits []time.Time, start, end time.Time) bool {
	for _, v := range visits {
		if !v.Before(start) && v.Before(end) {
			return true
		}
	}
	return false
}

func analyzeCohorts(store *EventStore, visits *VisitLedger, start, end time.Time, groupBy GroupBy) ([]Cohort, error) {
	if groupBy != GroupByWeek && groupBy != GroupByMonth {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGroupBy, groupBy)
	}

	type bucket struct {
		start time.Time
		users map[string]struct{}
	}
	buckets := make(map[string]*bucket)

	store.EachInteraction(func(_ string, items []events.Interaction) {
		for _, i := range items {
			if !inRange(i.Timestamp, start, end) {
				continue
			}
			key, periodStart := cohortPeriod(i.Timestamp, groupBy)
			b, ok := buckets[key]
			if !ok {
				b = &bucket{start: periodStart, users: make(map[string]struct{})}
				buckets[key] = b
			}
			b.users[i.UserID] = struct{}{}
		}
	})

	cohorts := make([]Cohort, 0, len(buckets))
	for key, b := range buckets {
		users := setKeys(b.users)
		history := make([][]time.Time, len(users))
		for i, u := range users {
			history[i] = visits.Visits(u)
		}

		retention := make([]PeriodRetention, 0, RetentionPeriods)
		for p := 1; p <= RetentionPeriods; p++ {
			ps := addPeriods(b.start, groupBy, p)
			pe := addPeriods(b.start, groupBy, p+1)

			active := 0
			for _, h := range history {
				if anyVisitIn(h, ps, pe) {
					active++
				}
			}

			retention = append(retention, PeriodRetention{
				Period:      p,
				Start:       ps,
				End:         pe,
				ActiveUsers: active,
				Retention:   percent(active, len(users)),
			})
		}

		cohorts = append(cohorts, Cohort{
			Key:         key,
			PeriodStart: b.start,
			Size:        len(users),
			Users:       users,
			Retention:   retention,
		})
	}

	sort.Slice(cohorts, func(i, j int) bool {
		return cohorts[i].PeriodStart.Before(cohorts[j].PeriodStart)
	})
	return cohorts, nil
}
