package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosom/pingwatch/internal/entities"
)

const defaultMirrorTimeout = 5 * time.Second

// Mirror copies events and diagnostics into a SQL database. It is a
// secondary copy: the JSONL files stay authoritative.
type Mirror struct {
	log     zerolog.Logger
	db      IDB
	timeout time.Duration
}

func NewMirror(log zerolog.Logger, db IDB) *Mirror {
	ans := Mirror{
		log:     log.With().Str("component", "mirror").Logger(),
		db:      db,
		timeout: defaultMirrorTimeout,
	}
	return &ans
}

func (m *Mirror) RecordEvent(ctx context.Context, ev entities.Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	return InsertEvent(ctx, m.db, ev)
}

func (m *Mirror) RecordDiagnostic(ctx context.Context, d entities.Diagnostic) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	return UpsertDiagnostic(ctx, m.db, d)
}

func (m *Mirror) Events(ctx context.Context, q entities.EventQuery) ([]entities.Event, error) {
	return SelectEvents(ctx, m.db, q, time.Now().UTC())
}

// Diagnostic returns the stored diagnostic of worker. A missing row is not
// an error.
func (m *Mirror) Diagnostic(ctx context.Context, worker string) (entities.Diagnostic, bool, error) {
	d, err := GetDiagnostic(ctx, m.db, worker)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Diagnostic{}, false, nil
	}
	if err != nil {
		return entities.Diagnostic{}, false, err
	}
	return d, true, nil
}
