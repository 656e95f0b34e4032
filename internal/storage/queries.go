package storage

import (
	"context"
	"time"

	"github.com/gosom/pingwatch/internal/entities"
)

func InsertEvent(ctx context.Context, db IDB, ev entities.Event) error {
	e := FromEventEntity(ev)
	_, err := db.NewInsert().
		Model(&e).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return err
}

func UpsertDiagnostic(ctx context.Context, db IDB, d entities.Diagnostic) error {
	m, err := FromDiagnosticEntity(d)
	if err != nil {
		return err
	}
	_, err = db.NewInsert().
		Model(&m).
		On("CONFLICT (worker) DO UPDATE").
		Set("ts = EXCLUDED.ts").
		Set("source_address = EXCLUDED.source_address").
		Set("payload = EXCLUDED.payload").
		Exec(ctx)
	return err
}

// SelectEvents returns the most recent matching events, oldest first.
func SelectEvents(ctx context.Context, db IDB, q entities.EventQuery, now time.Time) ([]entities.Event, error) {
	var rows []Event
	sq := db.NewSelect().Model(&rows)
	if q.Since > 0 {
		sq = sq.Where("ts >= ?", now.Add(-q.Since).UTC())
	}
	if len(q.Type) > 0 {
		sq = sq.Where("type = ?", string(q.Type))
	}
	if len(q.Worker) > 0 {
		sq = sq.Where("worker = ?", q.Worker)
	}
	sq = sq.Order("ts DESC", "id DESC")
	if q.Limit > 0 {
		sq = sq.Limit(q.Limit)
	}
	if err := sq.Scan(ctx); err != nil {
		return nil, err
	}
	items := make([]entities.Event, len(rows))
	for i := range rows {
		items[len(rows)-1-i] = ToEventEntity(rows[i])
	}
	return items, nil
}

func GetDiagnostic(ctx context.Context, db IDB, worker string) (entities.Diagnostic, error) {
	var d Diagnostic
	if err := db.NewSelect().
		Model(&d).
		Where("worker = ?", worker).
		Scan(ctx); err != nil {
		return entities.Diagnostic{}, err
	}
	return ToDiagnosticEntity(d)
}
