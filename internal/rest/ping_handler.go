package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/uptrace/bunrouter"

	"github.com/gosom/pingwatch/internal/entities"
	"github.com/gosom/pingwatch/internal/services/monitor"
)

type PingHandler struct {
	log     zerolog.Logger
	monitor MonitorService
}

type PingPayload struct {
	Diagnostics map[string]any `json:"diagnostics"`
}

func (h *PingHandler) Get(w http.ResponseWriter, r bunrouter.Request) error {
	return h.record(w, r, nil)
}

// Post accepts an optional diagnostics payload. A malformed body never
// rejects the heartbeat.
func (h *PingHandler) Post(w http.ResponseWriter, r bunrouter.Request) error {
	var p PingPayload
	if err := Bind(r, &p); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug().Err(err).Str("worker", r.Param("worker")).Msg("ignoring malformed diagnostics")
		p.Diagnostics = nil
	}
	return h.record(w, r, p.Diagnostics)
}

func (h *PingHandler) record(w http.ResponseWriter, r bunrouter.Request, payload map[string]any) error {
	worker := r.Param("worker")
	if len(worker) == 0 {
		return ValidationError{"worker is missing"}
	}
	res, err := h.monitor.RecordHeartbeat(r.Context(), entities.Heartbeat{
		Worker:        worker,
		SourceAddress: sourceAddress(r),
		Payload:       payload,
	})
	if errors.Is(err, monitor.ErrInvalidWorker) {
		return ValidationError{err.Error()}
	}
	if err != nil {
		return err
	}
	if !res.Accepted {
		return errors.New("heartbeat not accepted")
	}
	return JSON(w, http.StatusOK, entities.Ack{Status: 1, Msg: "Heartbeat received"})
}
