// Package rca turns recent DOWN events into a root cause diagnosis.
package rca

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gosom/pingwatch/internal/entities"
)

const unknownSource = "unknown"

type EventSource interface {
	Query(q entities.EventQuery) []entities.Event
	Capacity() int
}

type Config struct {
	Events     EventSource
	Thresholds Thresholds
	Now        func() time.Time
}

type Classifier struct {
	events EventSource
	th     Thresholds
	now    func() time.Time
}

func New(cfg Config) (*Classifier, error) {
	if cfg.Events == nil {
		return nil, fmt.Errorf("events source is missing")
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ans := Classifier{
		events: cfg.Events,
		th:     cfg.Thresholds,
		now:    cfg.Now,
	}
	return &ans, nil
}

func (c *Classifier) Thresholds() Thresholds {
	return c.th
}

// Classify diagnoses the DOWN events of the trailing window.
func (c *Classifier) Classify() entities.Classification {
	downs := c.events.Query(entities.EventQuery{
		Limit: c.events.Capacity(),
		Type:  entities.EventDown,
		Since: c.th.Window,
	})
	return ClassifyEvents(downs, c.th)
}

// ClassifyEvents applies the classification rules in order, first match
// wins. The caller is responsible for restricting downs to the window.
func ClassifyEvents(downs []entities.Event, th Thresholds) entities.Classification {
	if len(downs) == 0 {
		return entities.Classification{
			Status:          entities.Healthy,
			Message:         "No recent failures",
			AffectedWorkers: []string{},
		}
	}
	workers := distinct(downs, func(e entities.Event) string { return e.Worker })
	sources := distinct(downs, func(e entities.Event) string {
		if len(e.SourceAddress) == 0 {
			return unknownSource
		}
		return e.SourceAddress
	})

	ans := entities.Classification{
		AffectedWorkers: workers,
		SourceAddresses: sources,
	}
	switch nw, ns := len(workers), len(sources); {
	case nw >= th.MassFailureWorkers && ns == 1:
		ans.Status = entities.NetworkIssue
		ans.Severity = entities.SeverityHigh
		ans.Scope = entities.ScopeSingleOrigin
		ans.Message = fmt.Sprintf("NETWORK ISSUE: %d workers from same IP went down", nw)
		ans.LikelyCause = cause("ISP/upstream connectivity issue or local network problem")
	case nw >= th.MassFailureWorkers && ns <= th.RegionalMaxSources:
		ans.Status = entities.NetworkIssue
		ans.Severity = entities.SeverityHigh
		ans.Scope = entities.ScopeRegional
		ans.Message = fmt.Sprintf("REGIONAL ISSUE: %d workers from %d locations down", nw, ns)
		ans.LikelyCause = cause("Regional network or upstream provider issue")
	case nw >= th.MassFailureWorkers:
		ans.Status = entities.PossibleDDoS
		ans.Severity = entities.SeverityCritical
		ans.Message = fmt.Sprintf("POSSIBLE DDOS: %d workers from %d IPs down", nw, ns)
		ans.LikelyCause = cause("DDoS attack on bot server or widespread outage")
	case nw >= th.PartialMinWorkers:
		ans.Status = entities.PartialOutage
		ans.Severity = entities.SeverityMedium
		ans.Message = fmt.Sprintf("PARTIAL: %d workers down recently", nw)
		ans.LikelyCause = cause("Localized network issue or coincidental failures")
	default:
		ans.Status = entities.IndividualFailure
		ans.Severity = entities.SeverityLow
		ans.Message = fmt.Sprintf("Individual failure: %s", workers[0])
		if len(workers) > 1 {
			ans.Message = fmt.Sprintf("Individual failures: %s", strings.Join(workers, ", "))
		}
		ans.LikelyCause = cause("Individual server issue (reboot, GPU crash, etc.)")
	}
	return ans
}

func cause(s string) *string {
	return &s
}

func distinct(events []entities.Event, key func(entities.Event) string) []string {
	seen := make(map[string]struct{}, len(events))
	ans := make([]string, 0, len(events))
	for i := range events {
		k := key(events[i])
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ans = append(ans, k)
	}
	sort.Strings(ans)
	return ans
}
