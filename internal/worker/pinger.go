// Package worker implements the worker side of the protocol: a pinger that
// sends periodic heartbeats, and a fleet of simulated pingers for load and
// failure drills.
package worker

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hako/durafmt"
	"github.com/rs/zerolog"

	"github.com/gosom/pingwatch/client"
)

const DefaultInterval = 60 * time.Second

type PingAPI interface {
	Ping(ctx context.Context, worker string, diagnostics map[string]any) (client.Ack, error)
}

type PingerConfig struct {
	Log      zerolog.Logger
	API      PingAPI
	Name     string
	Interval time.Duration
	// Diagnostics builds the payload attached to every heartbeat. Nil sends
	// DefaultDiagnostics.
	Diagnostics func() map[string]any
}

type Pinger struct {
	log         zerolog.Logger
	api         PingAPI
	name        string
	interval    time.Duration
	diagnostics func() map[string]any

	sent   atomic.Int64
	failed atomic.Int64
}

func NewPinger(cfg PingerConfig) (*Pinger, error) {
	if cfg.API == nil {
		return nil, errors.New("api is missing")
	}
	if len(cfg.Name) == 0 {
		cfg.Name = uuid.New().String()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = DefaultDiagnostics(time.Now())
	}
	ans := Pinger{
		log:         cfg.Log.With().Str("worker", cfg.Name).Logger(),
		api:         cfg.API,
		name:        cfg.Name,
		interval:    cfg.Interval,
		diagnostics: cfg.Diagnostics,
	}
	return &ans, nil
}

func (p *Pinger) Name() string {
	return p.name
}

// Start pings immediately and then every interval until ctx is done.
func (p *Pinger) Start(ctx context.Context) error {
	started := time.Now()
	p.log.Info().Str("interval", durafmt.Parse(p.interval).String()).Msg("starting pinger")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.PingOnce(ctx)
		select {
		case <-ctx.Done():
			sent, failed := p.Stats()
			p.log.Info().
				Int64("sent", sent).
				Int64("failed", failed).
				Str("ran", durafmt.Parse(time.Since(started).Truncate(time.Second)).LimitFirstN(2).String()).
				Msg("pinger stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Pinger) PingOnce(ctx context.Context) bool {
	ack, err := p.api.Ping(ctx, p.name, p.diagnostics())
	if err != nil {
		if ctx.Err() == nil {
			p.failed.Add(1)
			p.log.Warn().Err(err).Msg("heartbeat failed")
		}
		return false
	}
	if ack.Status != 1 {
		p.failed.Add(1)
		p.log.Warn().Str("msg", ack.Msg).Msg("heartbeat rejected")
		return false
	}
	p.sent.Add(1)
	p.log.Debug().Msg("heartbeat sent")
	return true
}

func (p *Pinger) Stats() (sent, failed int64) {
	return p.sent.Load(), p.failed.Load()
}

// DefaultDiagnostics reports host level facts useful when a worker goes
// silent.
func DefaultDiagnostics(started time.Time) func() map[string]any {
	hostname, _ := os.Hostname()
	return func() map[string]any {
		return map[string]any{
			"hostname":       hostname,
			"uptime_seconds": int64(time.Since(started).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
		}
	}
}
