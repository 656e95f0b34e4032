// Package gate provides the process wide backpressure gate that pauses
// expiry processing while outbound alerting is being throttled.
package gate

import (
	"context"
	"sync"
)

// Gate is a broadcast open/closed signal. It starts open. Holds nest: the
// gate reopens once every Hold has been matched by a Release.
type Gate struct {
	mu    sync.Mutex
	holds int
	open  chan struct{}
}

func New() *Gate {
	g := Gate{open: make(chan struct{})}
	close(g.open)
	return &g
}

// Hold closes the gate.
func (g *Gate) Hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holds == 0 {
		g.open = make(chan struct{})
	}
	g.holds++
}

// Release opens the gate when the last outstanding Hold is released.
// Unbalanced calls are ignored.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holds == 0 {
		return
	}
	g.holds--
	if g.holds == 0 {
		close(g.open)
	}
}

func (g *Gate) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holds > 0
}

// Wait returns immediately while the gate is open and blocks while it is
// held. It returns ctx.Err() if ctx is done first.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
