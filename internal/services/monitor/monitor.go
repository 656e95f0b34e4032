// Package monitor owns the per worker liveness state: last seen times,
// expiry timers and the up/down transitions they drive.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hako/durafmt"
	"github.com/rs/zerolog"

	"github.com/gosom/pingwatch/internal/entities"
	"github.com/gosom/pingwatch/internal/metrics"
)

const DefaultFailTimeout = 180 * time.Second

var ErrInvalidWorker = errors.New("worker id is missing")

type EventStore interface {
	Append(ctx context.Context, ev entities.Event) entities.Event
}

type DiagnosticRecorder interface {
	Record(ctx context.Context, d entities.Diagnostic) error
}

type Classifier interface {
	Classify() entities.Classification
}

type Notifier interface {
	Enqueue(text string)
}

type Gate interface {
	Wait(ctx context.Context) error
}

type Config struct {
	Log         zerolog.Logger
	FailTimeout time.Duration
	Events      EventStore
	Diagnostics DiagnosticRecorder
	Classifier  Classifier
	Notifier    Notifier
	Gate        Gate
	Metrics     metrics.Collector
	Now         func() time.Time
}

type workerState struct {
	status   entities.WorkerStatus
	lastSeen time.Time
	source   string
	timer    *time.Timer
	gen      uint64
}

type Service struct {
	log         zerolog.Logger
	failTimeout time.Duration
	events      EventStore
	diagnostics DiagnosticRecorder
	classifier  Classifier
	notifier    Notifier
	gate        Gate
	metrics     metrics.Collector
	now         func() time.Time
	upSince     time.Time

	ctx    context.Context
	cancel context.CancelFunc

	lock     sync.Mutex
	registry map[string]*workerState
	armed    int
}

func New(cfg Config) (*Service, error) {
	if cfg.Events == nil {
		return nil, errors.New("event store is missing")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("classifier is missing")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("notifier is missing")
	}
	if cfg.Gate == nil {
		return nil, errors.New("gate is missing")
	}
	if cfg.FailTimeout <= 0 {
		cfg.FailTimeout = DefaultFailTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = (*metrics.Prometheus)(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	ans := Service{
		log:         cfg.Log.With().Str("component", "monitor").Logger(),
		failTimeout: cfg.FailTimeout,
		events:      cfg.Events,
		diagnostics: cfg.Diagnostics,
		classifier:  cfg.Classifier,
		notifier:    cfg.Notifier,
		gate:        cfg.Gate,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		upSince:     cfg.Now().UTC(),
		ctx:         ctx,
		cancel:      cancel,
		registry:    make(map[string]*workerState),
	}
	return &ans, nil
}

func (o *Service) FailTimeout() time.Duration {
	return o.failTimeout
}

func (o *Service) UpSince() time.Time {
	return o.upSince
}

// RecordHeartbeat marks the worker alive and re-arms its expiry timer.
// A worker without a live timer transitions to UP.
func (o *Service) RecordHeartbeat(ctx context.Context, hb entities.Heartbeat) (entities.HeartbeatResult, error) {
	if len(hb.Worker) == 0 {
		return entities.HeartbeatResult{}, ErrInvalidWorker
	}
	now := o.now().UTC()

	o.lock.Lock()
	st, ok := o.registry[hb.Worker]
	if !ok {
		st = &workerState{}
		o.registry[hb.Worker] = st
	}
	recovered := st.timer == nil
	if st.timer != nil {
		st.timer.Stop()
	} else {
		o.armed++
	}
	st.gen++
	st.status = entities.WorkerUp
	st.lastSeen = now
	st.source = hb.SourceAddress
	st.timer = o.arm(hb.Worker, st.gen, o.failTimeout)
	armed := o.armed
	o.lock.Unlock()

	o.metrics.Heartbeat(recovered)
	o.metrics.ArmedWorkers(armed)

	if recovered {
		o.events.Append(ctx, entities.Event{
			Timestamp:     now,
			Type:          entities.EventUp,
			Worker:        hb.Worker,
			SourceAddress: hb.SourceAddress,
			LastSeen:      now,
		})
		o.metrics.Event(string(entities.EventUp))
		o.notifier.Enqueue(fmt.Sprintf("🟢 %s is UP", hb.Worker))
		o.log.Info().Str("worker", hb.Worker).Str("source", hb.SourceAddress).Msg("worker is up")
	}

	if len(hb.Payload) > 0 && o.diagnostics != nil {
		err := o.diagnostics.Record(ctx, entities.Diagnostic{
			Timestamp:     now,
			Worker:        hb.Worker,
			SourceAddress: hb.SourceAddress,
			Payload:       hb.Payload,
		})
		if err != nil {
			o.log.Error().Err(err).Str("worker", hb.Worker).Msg("cannot record diagnostics")
		}
	}

	return entities.HeartbeatResult{Accepted: true, Recovered: recovered}, nil
}

// arm must be called with the lock held.
func (o *Service) arm(worker string, gen uint64, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() {
		o.onExpiry(worker, gen)
	})
}

// onExpiry confirms a DOWN transition. Timer cancellation is best effort,
// so staleness is re-validated against last seen after the gate opens.
func (o *Service) onExpiry(worker string, gen uint64) {
	if err := o.gate.Wait(o.ctx); err != nil {
		return
	}

	now := o.now().UTC()
	o.lock.Lock()
	st, ok := o.registry[worker]
	if !ok || st.timer == nil {
		o.lock.Unlock()
		return
	}
	if st.gen != gen {
		o.lock.Unlock()
		o.metrics.FalseAlarm()
		o.log.Debug().Str("worker", worker).Msg("expiry superseded by a newer heartbeat")
		return
	}
	elapsed := now.Sub(st.lastSeen)
	if elapsed <= o.failTimeout {
		st.timer = o.arm(worker, gen, o.failTimeout-elapsed+time.Millisecond)
		o.lock.Unlock()
		o.metrics.FalseAlarm()
		o.log.Info().Str("worker", worker).Dur("elapsed", elapsed).Msg("false alarm, worker is alive")
		return
	}
	st.timer = nil
	st.status = entities.WorkerDown
	o.armed--
	lastSeen, source, armed := st.lastSeen, st.source, o.armed
	o.lock.Unlock()

	o.metrics.ArmedWorkers(armed)
	o.events.Append(o.ctx, entities.Event{
		Timestamp:        now,
		Type:             entities.EventDown,
		Worker:           worker,
		SourceAddress:    source,
		LastSeen:         lastSeen,
		SecondsSincePing: elapsed.Seconds(),
	})
	o.metrics.Event(string(entities.EventDown))

	c := o.classifier.Classify()
	o.notifier.Enqueue(downAlert(worker, elapsed, c))
	o.log.Warn().
		Str("worker", worker).
		Str("source", source).
		Dur("elapsed", elapsed).
		Str("classification", string(c.Status)).
		Msg("worker is down")
}

func downAlert(worker string, elapsed time.Duration, c entities.Classification) string {
	text := fmt.Sprintf("🔴 %s is DOWN (silent for %s)", worker,
		durafmt.Parse(elapsed.Truncate(time.Second)).LimitFirstN(2).String())
	if c.SharedCause() {
		text += "\n⚠️ " + c.Message
	}
	return text
}

func (o *Service) Worker(id string) (entities.Worker, bool) {
	o.lock.Lock()
	defer o.lock.Unlock()
	st, ok := o.registry[id]
	if !ok {
		return entities.Worker{}, false
	}
	return snapshot(id, st), true
}

// Workers returns every known worker sorted by id.
func (o *Service) Workers() []entities.Worker {
	o.lock.Lock()
	items := make([]entities.Worker, 0, len(o.registry))
	for id, st := range o.registry {
		items = append(items, snapshot(id, st))
	}
	o.lock.Unlock()
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
	return items
}

// ActiveWorkers returns the sorted ids of workers with a live timer.
func (o *Service) ActiveWorkers() []string {
	o.lock.Lock()
	items := make([]string, 0, o.armed)
	for id, st := range o.registry {
		if st.timer != nil {
			items = append(items, id)
		}
	}
	o.lock.Unlock()
	sort.Strings(items)
	return items
}

func snapshot(id string, st *workerState) entities.Worker {
	return entities.Worker{
		ID:            id,
		Status:        st.status,
		LastSeen:      st.lastSeen,
		SourceAddress: st.source,
		Armed:         st.timer != nil,
	}
}

func (o *Service) StatsPrinter(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.lock.Lock()
			wn, armed := len(o.registry), o.armed
			o.lock.Unlock()
			o.log.Info().Int("workersNum", wn).Int("armed", armed).Msg("worker stats")
		}
	}
}

// Close stops every timer and unblocks expiries waiting on the gate.
func (o *Service) Close() {
	o.cancel()
	o.lock.Lock()
	defer o.lock.Unlock()
	for _, st := range o.registry {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
	o.armed = 0
}
