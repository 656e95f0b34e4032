package entities

import "time"

type WorkerStatus int

const (
	WorkerUnknown WorkerStatus = iota
	WorkerUp
	WorkerDown
)

func (s WorkerStatus) String() string {
	switch s {
	case WorkerUp:
		return "up"
	case WorkerDown:
		return "down"
	}
	return "unknown"
}

func (s WorkerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worker is a point in time copy of the registry entry for a worker.
type Worker struct {
	ID            string
	Status        WorkerStatus
	LastSeen      time.Time
	SourceAddress string
	// Armed reports whether an expiry timer is currently live for the worker.
	Armed bool
}

type Heartbeat struct {
	Worker        string
	SourceAddress string
	Payload       map[string]any
}

type HeartbeatResult struct {
	Accepted bool
	// Recovered is set when the heartbeat moved the worker to UP.
	Recovered bool
}

// Ack is the body answered to heartbeat senders.
type Ack struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}
