package rest

import (
	"net/http"
	"sync"
	"time"

	"github.com/uptrace/bunrouter"
)

type HealthHandler struct {
	monitor      MonitorService
	alerts       AlertQueue
	gate         Gate
	cacheTTL     time.Duration
	lock         sync.RWMutex
	lastCache    time.Time
	lastResponse HealthResponse
}

type HealthResponse struct {
	ServerUpSince   time.Time `json:"serverUpSince"`
	ActiveWorkers   int       `json:"activeWorkers"`
	WorkersHealthy  bool      `json:"workersHealthy"`
	PendingAlerts   int       `json:"pendingAlerts"`
	AlertsThrottled bool      `json:"alertsThrottled"`
}

func (h *HealthHandler) Get(w http.ResponseWriter, r bunrouter.Request) error {
	h.lock.RLock()
	elapsed := time.Now().UTC().Sub(h.lastCache)
	if elapsed <= h.cacheTTL {
		ans := h.lastResponse
		h.lock.RUnlock()
		return JSON(w, http.StatusOK, ans)
	}
	h.lock.RUnlock()
	wcount := len(h.monitor.ActiveWorkers())
	ans := HealthResponse{
		ServerUpSince:  h.monitor.UpSince(),
		ActiveWorkers:  wcount,
		WorkersHealthy: wcount > 0,
	}
	if h.alerts != nil {
		ans.PendingAlerts = h.alerts.Len()
	}
	if h.gate != nil {
		ans.AlertsThrottled = h.gate.Held()
	}
	h.lock.Lock()
	h.lastResponse = ans
	h.lastCache = time.Now().UTC()
	h.lock.Unlock()
	return JSON(w, http.StatusOK, ans)
}
