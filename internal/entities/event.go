package entities

import (
	"errors"
	"fmt"
	"time"
)

// TimeFormat is the on-disk and wire format of every timestamp: ISO-8601,
// UTC, second precision.
const TimeFormat = "2006-01-02T15:04:05Z"

type EventType string

const (
	EventUp   EventType = "up"
	EventDown EventType = "down"
)

func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventUp, EventDown:
		return EventType(s), nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Event is an immutable record of a confirmed up or down transition.
type Event struct {
	ID               string
	Timestamp        time.Time
	Type             EventType
	Worker           string
	SourceAddress    string
	LastSeen         time.Time
	SecondsSincePing float64
}

type eventJSON struct {
	ID               string    `json:"id,omitempty"`
	Timestamp        string    `json:"ts"`
	Type             EventType `json:"type"`
	Worker           string    `json:"worker"`
	SourceAddress    *string   `json:"client_ip"`
	LastSeen         string    `json:"last_seen,omitempty"`
	SecondsSincePing float64   `json:"seconds_since_ping,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	v := eventJSON{
		ID:               e.ID,
		Timestamp:        FormatTime(e.Timestamp),
		Type:             e.Type,
		Worker:           e.Worker,
		SecondsSincePing: e.SecondsSincePing,
	}
	if e.SourceAddress != "" {
		v.SourceAddress = &e.SourceAddress
	}
	if !e.LastSeen.IsZero() {
		v.LastSeen = FormatTime(e.LastSeen)
	}
	return marshalJSON(v)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var v eventJSON
	if err := unmarshalJSON(data, &v); err != nil {
		return err
	}
	if v.Worker == "" {
		return errors.New("event without worker")
	}
	ts, err := ParseTime(v.Timestamp)
	if err != nil {
		return err
	}
	*e = Event{
		ID:               v.ID,
		Timestamp:        ts,
		Type:             v.Type,
		Worker:           v.Worker,
		SecondsSincePing: v.SecondsSincePing,
	}
	if v.SourceAddress != nil {
		e.SourceAddress = *v.SourceAddress
	}
	if v.LastSeen != "" {
		if e.LastSeen, err = ParseTime(v.LastSeen); err != nil {
			return err
		}
	}
	return nil
}

// EventQuery filters the recent events. Filters are applied in the order
// time window, type, worker and finally Limit keeps the most recent ones.
type EventQuery struct {
	Limit  int
	Type   EventType
	Worker string
	Since  time.Duration
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
