package client

import (
	"fmt"
)

// HttpError is returned for any non 200 answer. Message holds either the
// error message or, for rejected heartbeats, the msg field.
type HttpError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Msg        string `json:"msg"`
}

func (e HttpError) Error() string {
	msg := e.Message
	if len(msg) == 0 {
		msg = e.Msg
	}
	return fmt.Sprintf("StatusCode: %d Message: %s", e.StatusCode, msg)
}

type PingPayload struct {
	Diagnostics map[string]any `json:"diagnostics"`
}

type Ack struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

type Event struct {
	ID               string  `json:"id"`
	Timestamp        string  `json:"ts"`
	Type             string  `json:"type"`
	Worker           string  `json:"worker"`
	ClientIP         *string `json:"client_ip"`
	LastSeen         string  `json:"last_seen,omitempty"`
	SecondsSincePing float64 `json:"seconds_since_ping,omitempty"`
}

type EventsQuery struct {
	Limit        int
	Type         string
	Worker       string
	SinceMinutes int
}

type EventList struct {
	Count  int     `json:"count"`
	Events []Event `json:"events"`
}

type Classification struct {
	Status          string   `json:"status"`
	Severity        string   `json:"severity"`
	Scope           string   `json:"scope"`
	Message         string   `json:"message"`
	AffectedWorkers []string `json:"affected_workers"`
	SourceAddresses []string `json:"source_addresses"`
	LikelyCause     *string  `json:"likely_cause"`
}

type Status struct {
	Timestamp     string         `json:"timestamp"`
	ServerUpSince string         `json:"server_up_since"`
	ActiveWorkers int            `json:"active_workers"`
	Workers       []string       `json:"workers"`
	Health        Classification `json:"health"`
}

type Diagnostic struct {
	Timestamp string         `json:"ts"`
	Worker    string         `json:"worker"`
	ClientIP  string         `json:"client_ip"`
	Payload   map[string]any `json:"payload"`
}

type Worker struct {
	Worker       string      `json:"worker"`
	Status       string      `json:"status"`
	LastSeen     *string     `json:"last_seen"`
	ClientIP     string      `json:"client_ip"`
	Diagnostics  *Diagnostic `json:"diagnostics"`
	RecentEvents []Event     `json:"recent_events"`
}

type MassFailureWindow struct {
	Time    string   `json:"time"`
	Workers []string `json:"workers"`
	Count   int      `json:"count"`
}

type Report struct {
	Period             string              `json:"period"`
	TotalEvents        int                 `json:"total_events"`
	UpEvents           int                 `json:"up_events"`
	DownEvents         int                 `json:"down_events"`
	MassFailureWindows []MassFailureWindow `json:"mass_failure_windows"`
	CurrentAnalysis    Classification      `json:"current_analysis"`
}
