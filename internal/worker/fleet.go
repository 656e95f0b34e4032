package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/remeh/sizedwaitgroup"
	"github.com/rs/zerolog"
)

type FleetConfig struct {
	Log         zerolog.Logger
	API         PingAPI
	Prefix      string
	Count       int
	Interval    time.Duration
	Concurrency int
	Diagnostics func() map[string]any
}

// Fleet simulates Count workers named <prefix>-<n>. Every interval all of
// them ping, with at most Concurrency requests in flight.
type Fleet struct {
	log         zerolog.Logger
	pingers     []*Pinger
	interval    time.Duration
	concurrency int
}

func NewFleet(cfg FleetConfig) (*Fleet, error) {
	if cfg.Count <= 0 {
		return nil, errors.New("count must be positive")
	}
	if len(cfg.Prefix) == 0 {
		cfg.Prefix = "worker"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	ans := Fleet{
		log:         cfg.Log,
		interval:    cfg.Interval,
		concurrency: cfg.Concurrency,
	}
	for i := 0; i < cfg.Count; i++ {
		p, err := NewPinger(PingerConfig{
			Log:         cfg.Log,
			API:         cfg.API,
			Name:        fmt.Sprintf("%s-%d", cfg.Prefix, i+1),
			Interval:    cfg.Interval,
			Diagnostics: cfg.Diagnostics,
		})
		if err != nil {
			return nil, err
		}
		ans.pingers = append(ans.pingers, p)
	}
	return &ans, nil
}

func (f *Fleet) Pingers() []*Pinger {
	return f.pingers
}

func (f *Fleet) Start(ctx context.Context) error {
	f.log.Info().Int("workers", len(f.pingers)).Dur("interval", f.interval).Msg("starting fleet")
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		ok := f.Round(ctx)
		f.log.Info().Int("ok", ok).Int("workers", len(f.pingers)).Msg("fleet round done")
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Round pings once with every worker and returns the number of accepted
// heartbeats.
func (f *Fleet) Round(ctx context.Context) int {
	swg := sizedwaitgroup.New(f.concurrency)
	results := make(chan bool, len(f.pingers))
	for _, p := range f.pingers {
		if err := swg.AddWithContext(ctx); err != nil {
			break
		}
		go func(p *Pinger) {
			defer swg.Done()
			results <- p.PingOnce(ctx)
		}(p)
	}
	swg.Wait()
	close(results)
	var ok int
	for r := range results {
		if r {
			ok++
		}
	}
	return ok
}
