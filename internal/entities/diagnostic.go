package entities

import (
	"errors"
	"time"
)

// Diagnostic is the latest opaque payload a worker attached to a heartbeat.
type Diagnostic struct {
	Timestamp     time.Time
	Worker        string
	SourceAddress string
	Payload       map[string]any
}

type diagnosticJSON struct {
	Timestamp     string         `json:"ts"`
	Worker        string         `json:"worker"`
	SourceAddress string         `json:"client_ip,omitempty"`
	Payload       map[string]any `json:"payload"`
}

func (d Diagnostic) MarshalJSON() ([]byte, error) {
	return marshalJSON(diagnosticJSON{
		Timestamp:     FormatTime(d.Timestamp),
		Worker:        d.Worker,
		SourceAddress: d.SourceAddress,
		Payload:       d.Payload,
	})
}

func (d *Diagnostic) UnmarshalJSON(data []byte) error {
	var v diagnosticJSON
	if err := unmarshalJSON(data, &v); err != nil {
		return err
	}
	if v.Worker == "" {
		return errors.New("diagnostic without worker")
	}
	ts, err := ParseTime(v.Timestamp)
	if err != nil {
		return err
	}
	*d = Diagnostic{
		Timestamp:     ts,
		Worker:        v.Worker,
		SourceAddress: v.SourceAddress,
		Payload:       v.Payload,
	}
	return nil
}
