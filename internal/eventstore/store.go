// Package eventstore keeps the append-only log of up/down events together
// with a bounded in-memory cache of its most recent suffix, and the latest
// diagnostic payload per worker.
package eventstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gosom/pingwatch/internal/entities"
)

const (
	DefaultMaxFileSize = 100 * 1024 * 1024
	DefaultCacheSize   = 1000
	DefaultQueryLimit  = 100

	eventsFileName      = "events.jsonl"
	diagnosticsFileName = "diagnostics.jsonl"
)

// Sink receives a copy of every appended record. Failures are logged and
// never reach the caller of Append/Record.
type Sink interface {
	RecordEvent(ctx context.Context, ev entities.Event) error
	RecordDiagnostic(ctx context.Context, d entities.Diagnostic) error
}

type Config struct {
	Log         zerolog.Logger
	Dir         string
	FileName    string
	MaxFileSize int64
	CacheSize   int
	Sink        Sink
	Now         func() time.Time
}

func (cfg *Config) setDefaults(fileName string) error {
	if len(cfg.Dir) == 0 {
		return fmt.Errorf("data dir is missing")
	}
	if len(cfg.FileName) == 0 {
		cfg.FileName = fileName
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return os.MkdirAll(cfg.Dir, 0o755)
}

type Store struct {
	log  zerolog.Logger
	sink Sink
	now  func() time.Time

	mu    sync.Mutex
	file  *logFile
	cache *ring
}

// Open opens (or creates) the events file inside cfg.Dir and pre-warms the
// cache with its last CacheSize parseable lines.
func Open(cfg Config) (*Store, error) {
	if err := cfg.setDefaults(eventsFileName); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.Dir, cfg.FileName)
	ans := Store{
		log:   cfg.Log.With().Str("component", "eventstore").Logger(),
		sink:  cfg.Sink,
		now:   cfg.Now,
		cache: newRing(cfg.CacheSize),
	}
	lines, err := readTail(path, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("load event cache: %w", err)
	}
	var skipped int
	for _, line := range lines {
		var ev entities.Event
		if err := sonic.Unmarshal(line, &ev); err != nil {
			skipped++
			continue
		}
		ans.cache.push(ev)
	}
	ans.log.Info().Int("loaded", ans.cache.len()).Int("skipped", skipped).Str("path", path).Msg("event cache loaded")

	ans.file, err = openLogFile(path, cfg.MaxFileSize, cfg.Now)
	if err != nil {
		return nil, err
	}
	return &ans, nil
}

// Append persists ev and adds it to the cache. A missing ID or Timestamp is
// filled in. Write failures are logged; the cache is updated regardless.
func (s *Store) Append(ctx context.Context, ev entities.Event) entities.Event {
	if len(ev.ID) == 0 {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	ev.Timestamp = ev.Timestamp.UTC().Truncate(time.Second)

	line, err := sonic.Marshal(ev)
	s.mu.Lock()
	if err == nil {
		err = s.file.append(line)
	}
	s.cache.push(ev)
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Str("worker", ev.Worker).Str("type", string(ev.Type)).Msg("cannot write event")
	}

	if s.sink != nil {
		if err := s.sink.RecordEvent(ctx, ev); err != nil {
			s.log.Warn().Err(err).Str("worker", ev.Worker).Msg("event mirror failed")
		}
	}
	return ev
}

// Query returns cached events, most recent last.
func (s *Store) Query(q entities.EventQuery) []entities.Event {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	var cutoff time.Time
	if q.Since > 0 {
		cutoff = s.now().Add(-q.Since).UTC().Truncate(time.Second)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > s.cache.len() {
		limit = s.cache.len()
	}
	ans := make([]entities.Event, 0, limit)
	for i := 0; i < s.cache.len(); i++ {
		ev := s.cache.at(i)
		if !cutoff.IsZero() && ev.Timestamp.Before(cutoff) {
			continue
		}
		if len(q.Type) > 0 && ev.Type != q.Type {
			continue
		}
		if len(q.Worker) > 0 && ev.Worker != q.Worker {
			continue
		}
		ans = append(ans, ev)
	}
	if len(ans) > limit {
		ans = ans[len(ans)-limit:]
	}
	return ans
}

// Capacity is the maximum number of events a single query can return.
func (s *Store) Capacity() int {
	return len(s.cache.buf)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.close()
}
