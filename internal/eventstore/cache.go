package eventstore

import "github.com/gosom/pingwatch/internal/entities"

// ring is a fixed capacity FIFO of events. Pushing into a full ring evicts
// the oldest entry.
type ring struct {
	buf   []entities.Event
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]entities.Event, capacity)}
}

func (r *ring) push(ev entities.Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = ev
		r.n++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int {
	return r.n
}

// at returns the i-th event counting from the oldest.
func (r *ring) at(i int) entities.Event {
	return r.buf[(r.start+i)%len(r.buf)]
}
