package entities

import "time"

type HealthStatus string

const (
	Healthy           HealthStatus = "healthy"
	IndividualFailure HealthStatus = "individual_failure"
	PartialOutage     HealthStatus = "partial_outage"
	NetworkIssue      HealthStatus = "network_issue"
	PossibleDDoS      HealthStatus = "possible_ddos"
)

type Severity string

const (
	SeverityNone     Severity = ""
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Scope tells the two network_issue patterns apart.
type Scope string

const (
	ScopeNone         Scope = ""
	ScopeSingleOrigin Scope = "single_origin"
	ScopeRegional     Scope = "regional"
)

type Classification struct {
	Status          HealthStatus `json:"status"`
	Severity        Severity     `json:"severity,omitempty"`
	Scope           Scope        `json:"scope,omitempty"`
	Message         string       `json:"message"`
	AffectedWorkers []string     `json:"affected_workers"`
	SourceAddresses []string     `json:"source_addresses,omitempty"`
	LikelyCause     *string      `json:"likely_cause"`
}

// SharedCause reports whether the failures point at shared infrastructure
// rather than individual machines.
func (c Classification) SharedCause() bool {
	return c.Status == NetworkIssue || c.Status == PossibleDDoS
}

// MassFailureWindow is a time bucket in which many distinct workers went down.
type MassFailureWindow struct {
	Time    time.Time
	Workers []string
	Count   int
}

func (w MassFailureWindow) MarshalJSON() ([]byte, error) {
	return marshalJSON(struct {
		Time    string   `json:"time"`
		Workers []string `json:"workers"`
		Count   int      `json:"count"`
	}{FormatTime(w.Time), w.Workers, w.Count})
}

type RCAReport struct {
	Period             string              `json:"period"`
	TotalEvents        int                 `json:"total_events"`
	UpEvents           int                 `json:"up_events"`
	DownEvents         int                 `json:"down_events"`
	MassFailureWindows []MassFailureWindow `json:"mass_failure_windows"`
	CurrentAnalysis    Classification      `json:"current_analysis"`
}

type Notification struct {
	ID        string
	Text      string
	CreatedAt time.Time
}
