package rca

import (
	"fmt"
	"sort"
	"time"

	"github.com/gosom/pingwatch/internal/entities"
)

// Report summarizes the events of the report period and flags the time
// buckets in which many distinct workers went down together.
func (c *Classifier) Report() entities.RCAReport {
	events := c.events.Query(entities.EventQuery{
		Limit: c.events.Capacity(),
		Since: c.th.ReportPeriod,
	})
	ans := entities.RCAReport{
		Period:             fmt.Sprintf("last_%d_minutes", int(c.th.ReportPeriod/time.Minute)),
		TotalEvents:        len(events),
		MassFailureWindows: MassFailureWindows(events, c.th.BucketWidth, c.th.BucketMinWorkers),
		CurrentAnalysis:    c.Classify(),
	}
	for i := range events {
		switch events[i].Type {
		case entities.EventUp:
			ans.UpEvents++
		case entities.EventDown:
			ans.DownEvents++
		}
	}
	return ans
}

// MassFailureWindows buckets DOWN events into fixed width UTC buckets and
// returns, oldest first, the buckets with at least minWorkers distinct
// workers.
func MassFailureWindows(events []entities.Event, width time.Duration, minWorkers int) []entities.MassFailureWindow {
	buckets := make(map[time.Time][]entities.Event)
	for i := range events {
		if events[i].Type != entities.EventDown {
			continue
		}
		key := events[i].Timestamp.UTC().Truncate(width)
		buckets[key] = append(buckets[key], events[i])
	}
	ans := make([]entities.MassFailureWindow, 0)
	for start, downs := range buckets {
		workers := distinct(downs, func(e entities.Event) string { return e.Worker })
		if len(workers) < minWorkers {
			continue
		}
		ans = append(ans, entities.MassFailureWindow{
			Time:    start,
			Workers: workers,
			Count:   len(workers),
		})
	}
	sort.Slice(ans, func(i, j int) bool {
		return ans[i].Time.Before(ans[j].Time)
	})
	return ans
}
