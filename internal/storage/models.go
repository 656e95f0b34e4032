package storage

import (
	"time"

	"github.com/bytedance/sonic"
	"github.com/uptrace/bun"

	"github.com/gosom/pingwatch/internal/entities"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID               string    `bun:"id,pk"`
	Ts               time.Time `bun:"ts,notnull"`
	Type             string    `bun:"type,notnull"`
	Worker           string    `bun:"worker,notnull"`
	SourceAddress    string    `bun:"source_address"`
	LastSeen         bun.NullTime
	SecondsSincePing float64
}

func FromEventEntity(e entities.Event) Event {
	ans := Event{
		ID:               e.ID,
		Ts:               e.Timestamp.UTC(),
		Type:             string(e.Type),
		Worker:           e.Worker,
		SourceAddress:    e.SourceAddress,
		LastSeen:         bun.NullTime{Time: e.LastSeen.UTC()},
		SecondsSincePing: e.SecondsSincePing,
	}
	return ans
}

func ToEventEntity(e Event) entities.Event {
	ans := entities.Event{
		ID:               e.ID,
		Timestamp:        e.Ts.UTC(),
		Type:             entities.EventType(e.Type),
		Worker:           e.Worker,
		SourceAddress:    e.SourceAddress,
		SecondsSincePing: e.SecondsSincePing,
	}
	if !e.LastSeen.IsZero() {
		ans.LastSeen = e.LastSeen.Time.UTC()
	}
	return ans
}

// Diagnostic keeps only the latest payload per worker.
type Diagnostic struct {
	bun.BaseModel `bun:"table:diagnostics"`

	Worker        string    `bun:"worker,pk"`
	Ts            time.Time `bun:"ts,notnull"`
	SourceAddress string    `bun:"source_address"`
	Payload       string    `bun:"payload"`
}

func FromDiagnosticEntity(d entities.Diagnostic) (Diagnostic, error) {
	payload, err := sonic.Marshal(d.Payload)
	if err != nil {
		return Diagnostic{}, err
	}
	ans := Diagnostic{
		Worker:        d.Worker,
		Ts:            d.Timestamp.UTC(),
		SourceAddress: d.SourceAddress,
		Payload:       string(payload),
	}
	return ans, nil
}

func ToDiagnosticEntity(d Diagnostic) (entities.Diagnostic, error) {
	ans := entities.Diagnostic{
		Timestamp:     d.Ts.UTC(),
		Worker:        d.Worker,
		SourceAddress: d.SourceAddress,
	}
	if len(d.Payload) > 0 {
		if err := sonic.UnmarshalString(d.Payload, &ans.Payload); err != nil {
			return entities.Diagnostic{}, err
		}
	}
	return ans, nil
}
