// Package notify delivers alerts through a single consumer, rate limited
// queue.
package notify

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gosom/pingwatch/internal/common"
	"github.com/gosom/pingwatch/internal/entities"
	"github.com/gosom/pingwatch/internal/metrics"
)

// Holder is the backpressure gate the dispatcher closes while it backs off.
type Holder interface {
	Hold()
	Release()
}

type Config struct {
	Log       zerolog.Logger
	Transport Transport
	Gate      Holder
	Metrics   metrics.Collector
	// MaxRetryWait bounds the total backoff spent on one message. Zero
	// retries until delivered.
	MaxRetryWait time.Duration
	// Jitter adds a random delay in [0, Jitter) to every backoff.
	Jitter time.Duration
}

type Dispatcher struct {
	log          zerolog.Logger
	transport    Transport
	gate         Holder
	metrics      metrics.Collector
	maxRetryWait time.Duration
	jitter       time.Duration

	mu    sync.Mutex
	queue []entities.Notification
	ch    chan struct{}
}

func New(cfg Config) (*Dispatcher, error) {
	if cfg.Transport == nil {
		return nil, errors.New("transport is missing")
	}
	if cfg.Gate == nil {
		return nil, errors.New("gate is missing")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = (*metrics.Prometheus)(nil)
	}
	ans := Dispatcher{
		log:          cfg.Log.With().Str("component", "dispatcher").Logger(),
		transport:    cfg.Transport,
		gate:         cfg.Gate,
		metrics:      cfg.Metrics,
		maxRetryWait: cfg.MaxRetryWait,
		jitter:       cfg.Jitter,
		ch:           make(chan struct{}, 1),
	}
	return &ans, nil
}

// Enqueue adds text to the delivery queue. It never blocks.
func (d *Dispatcher) Enqueue(text string) {
	n := entities.Notification{
		ID:        uuid.New().String(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	d.mu.Lock()
	d.queue = append(d.queue, n)
	depth := len(d.queue)
	d.mu.Unlock()
	d.metrics.QueueDepth(depth)
	d.wakeup()
}

func (d *Dispatcher) wakeup() bool {
	select {
	case d.ch <- struct{}{}:
		return true
	default:
	}
	return false
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) pop() (entities.Notification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return entities.Notification{}, false
	}
	n := d.queue[0]
	d.queue[0] = entities.Notification{}
	d.queue = d.queue[1:]
	d.metrics.QueueDepth(len(d.queue))
	return n, true
}

// Run is the single consumer loop. It returns when ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Msg("starting dispatcher")
	defer d.log.Info().Msg("dispatcher stopped")
	for {
		n, ok := d.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-d.ch:
			}
			continue
		}
		d.deliver(ctx, n)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n entities.Notification) {
	var waited time.Duration
	for attempt := 1; ; attempt++ {
		err := d.transport.Send(ctx, n.Text)
		if err == nil {
			d.metrics.AlertResult("sent")
			d.log.Debug().Str("id", n.ID).Int("attempt", attempt).Msg("alert delivered")
			return
		}
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			d.metrics.AlertResult("dropped")
			d.log.Error().Err(err).Str("id", n.ID).Msg("alert delivery failed, dropping")
			return
		}
		d.metrics.RateLimited()
		wait := d.backoff(rl.RetryAfter)
		if d.maxRetryWait > 0 && waited+wait > d.maxRetryWait {
			d.metrics.AlertResult("dropped")
			d.log.Error().Str("id", n.ID).Dur("waited", waited).Msg("alert retry budget exhausted, dropping")
			return
		}
		d.log.Warn().Str("id", n.ID).Dur("retryAfter", wait).Int("attempt", attempt).Msg("rate limited, holding expiries")
		if err := d.pause(ctx, wait); err != nil {
			d.log.Warn().Str("id", n.ID).Msg("dispatcher stopped during backoff")
			return
		}
		waited += wait
	}
}

// pause holds the gate for the whole backoff so no expiry callback makes
// progress while the transport is throttled.
func (d *Dispatcher) pause(ctx context.Context, wait time.Duration) error {
	d.gate.Hold()
	d.metrics.GateHeld(true)
	defer func() {
		d.gate.Release()
		d.metrics.GateHeld(false)
	}()
	return common.SleepContext(ctx, wait)
}

func (d *Dispatcher) backoff(retryAfter time.Duration) time.Duration {
	if retryAfter < 0 {
		retryAfter = 0
	}
	if d.jitter > 0 {
		retryAfter += rand.N(d.jitter)
	}
	return retryAfter
}
