package eventstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"github.com/gosom/pingwatch/internal/entities"
)

// DiagnosticStore logs every diagnostic payload and keeps only the latest
// one per worker in memory.
type DiagnosticStore struct {
	log  zerolog.Logger
	sink Sink
	now  func() time.Time

	mu     sync.Mutex
	file   *logFile
	latest *xsync.Map[string, entities.Diagnostic]
}

func OpenDiagnostics(cfg Config) (*DiagnosticStore, error) {
	if err := cfg.setDefaults(diagnosticsFileName); err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.Dir, cfg.FileName)
	ans := DiagnosticStore{
		log:    cfg.Log.With().Str("component", "diagnostics").Logger(),
		sink:   cfg.Sink,
		now:    cfg.Now,
		latest: xsync.NewMap[string, entities.Diagnostic](),
	}
	lines, err := readTail(path, cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("load diagnostics: %w", err)
	}
	for _, line := range lines {
		var d entities.Diagnostic
		if err := sonic.Unmarshal(line, &d); err != nil {
			continue
		}
		ans.latest.Store(d.Worker, d)
	}
	ans.file, err = openLogFile(path, cfg.MaxFileSize, cfg.Now)
	if err != nil {
		return nil, err
	}
	return &ans, nil
}

// Record overwrites the latest diagnostic of d.Worker and appends it to the
// log. The returned error only reports the durable write; the in-memory
// entry is always updated.
func (s *DiagnosticStore) Record(ctx context.Context, d entities.Diagnostic) error {
	if d.Timestamp.IsZero() {
		d.Timestamp = s.now()
	}
	d.Timestamp = d.Timestamp.UTC().Truncate(time.Second)
	s.latest.Store(d.Worker, d)

	line, err := sonic.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode diagnostic: %w", err)
	}
	s.mu.Lock()
	err = s.file.append(line)
	s.mu.Unlock()

	if s.sink != nil {
		if serr := s.sink.RecordDiagnostic(ctx, d); serr != nil {
			s.log.Warn().Err(serr).Str("worker", d.Worker).Msg("diagnostic mirror failed")
		}
	}
	return err
}

func (s *DiagnosticStore) Latest(worker string) (entities.Diagnostic, bool) {
	return s.latest.Load(worker)
}

func (s *DiagnosticStore) Len() int {
	return s.latest.Size()
}

func (s *DiagnosticStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.close()
}
