package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bunrouter"

	"github.com/gosom/pingwatch/internal/entities"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
	workerEventsLimit  = 20
)

type APIHandler struct {
	log         zerolog.Logger
	monitor     MonitorService
	events      EventReader
	diagnostics DiagnosticReader
	history     History
	analyzer    Analyzer
}

type StatusResponse struct {
	Timestamp     string                  `json:"timestamp"`
	ServerUpSince string                  `json:"server_up_since"`
	ActiveWorkers int                     `json:"active_workers"`
	Workers       []string                `json:"workers"`
	Health        entities.Classification `json:"health"`
}

type EventsResponse struct {
	Count  int              `json:"count"`
	Events []entities.Event `json:"events"`
}

type WorkerResponse struct {
	Worker        string               `json:"worker"`
	Status        string               `json:"status"`
	LastSeen      *string              `json:"last_seen"`
	SourceAddress string               `json:"client_ip,omitempty"`
	Diagnostics   *entities.Diagnostic `json:"diagnostics,omitempty"`
	RecentEvents  []entities.Event     `json:"recent_events"`
}

func (h *APIHandler) Status(w http.ResponseWriter, r bunrouter.Request) error {
	active := h.monitor.ActiveWorkers()
	ans := StatusResponse{
		Timestamp:     entities.FormatTime(time.Now()),
		ServerUpSince: entities.FormatTime(h.monitor.UpSince()),
		ActiveWorkers: len(active),
		Workers:       active,
		Health:        h.analyzer.Classify(),
	}
	return JSON(w, http.StatusOK, ans)
}

func (h *APIHandler) Events(w http.ResponseWriter, r bunrouter.Request) error {
	limit, err := parseIntParam(r, "limit", defaultEventsLimit)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return ValidationError{"limit must be positive"}
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}
	typ, err := entities.ParseEventType(r.URL.Query().Get("type"))
	if err != nil {
		return ValidationError{err.Error()}
	}
	since, err := parseIntParam(r, "since_minutes", 0)
	if err != nil {
		return err
	}
	if since < 0 {
		return ValidationError{"since_minutes must not be negative"}
	}
	q := entities.EventQuery{
		Limit:  limit,
		Type:   typ,
		Worker: r.URL.Query().Get("worker"),
		Since:  time.Duration(since) * time.Minute,
	}
	var events []entities.Event
	if h.history != nil && limit > h.events.Capacity() {
		events, err = h.history.Events(r.Context(), q)
		if err != nil {
			return err
		}
	} else {
		events = h.events.Query(q)
	}
	return JSON(w, http.StatusOK, EventsResponse{Count: len(events), Events: nonNil(events)})
}

func (h *APIHandler) Analysis(w http.ResponseWriter, r bunrouter.Request) error {
	return JSON(w, http.StatusOK, h.analyzer.Classify())
}

// Worker reports an unknown worker as down, like one that stopped pinging.
func (h *APIHandler) Worker(w http.ResponseWriter, r bunrouter.Request) error {
	id := r.Param("worker")
	if len(id) == 0 {
		return ValidationError{"worker is missing"}
	}
	ans := WorkerResponse{
		Worker: id,
		Status: entities.WorkerDown.String(),
	}
	if wk, ok := h.monitor.Worker(id); ok {
		if wk.Armed {
			ans.Status = entities.WorkerUp.String()
		}
		ans.LastSeen = formatOptionalTime(wk.LastSeen)
		ans.SourceAddress = wk.SourceAddress
	}
	if d, ok, err := h.latestDiagnostic(r, id); err != nil {
		return err
	} else if ok {
		ans.Diagnostics = &d
	}
	ans.RecentEvents = nonNil(h.events.Query(entities.EventQuery{
		Limit:  workerEventsLimit,
		Worker: id,
	}))
	return JSON(w, http.StatusOK, ans)
}

func (h *APIHandler) Diagnostics(w http.ResponseWriter, r bunrouter.Request) error {
	id := r.Param("worker")
	d, ok, err := h.latestDiagnostic(r, id)
	if err != nil {
		return err
	}
	if !ok {
		return NotFoundError{fmt.Sprintf("no diagnostics for worker %s", id)}
	}
	return JSON(w, http.StatusOK, d)
}

func (h *APIHandler) latestDiagnostic(r bunrouter.Request, worker string) (entities.Diagnostic, bool, error) {
	if h.diagnostics != nil {
		if d, ok := h.diagnostics.Latest(worker); ok {
			return d, true, nil
		}
	}
	if h.history == nil {
		return entities.Diagnostic{}, false, nil
	}
	return h.history.Diagnostic(r.Context(), worker)
}

func (h *APIHandler) RCA(w http.ResponseWriter, r bunrouter.Request) error {
	return JSON(w, http.StatusOK, h.analyzer.Report())
}

func nonNil(events []entities.Event) []entities.Event {
	if events == nil {
		return []entities.Event{}
	}
	return events
}
