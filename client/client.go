package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseUrl    string
	APIKey     string
	HttpClient HTTPClient
	Logf       func(format string, a ...any)
}

type PingwatchAPI struct {
	baseUrl   string
	apiKey    string
	netClient HTTPClient
	logf      func(format string, a ...any)
}

func New(cfg Config) (*PingwatchAPI, error) {
	if len(cfg.BaseUrl) == 0 {
		return nil, errors.New("BaseUrl is mandatory")
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if cfg.HttpClient == nil {
		cfg.HttpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	ans := PingwatchAPI{
		baseUrl:   cfg.BaseUrl,
		apiKey:    cfg.APIKey,
		netClient: cfg.HttpClient,
		logf:      cfg.Logf,
	}
	return &ans, nil
}

// Ping sends a heartbeat for worker. Diagnostics are optional.
func (h *PingwatchAPI) Ping(ctx context.Context, worker string, diagnostics map[string]any) (Ack, error) {
	if len(worker) == 0 {
		return Ack{}, errors.New("worker is mandatory")
	}
	path := "/ping/" + url.PathEscape(worker)
	var ack Ack
	if len(diagnostics) == 0 {
		err := h.do(ctx, http.MethodGet, path, nil, &ack)
		return ack, err
	}
	err := h.do(ctx, http.MethodPost, path, PingPayload{Diagnostics: diagnostics}, &ack)
	return ack, err
}

func (h *PingwatchAPI) Status(ctx context.Context) (Status, error) {
	var ans Status
	err := h.do(ctx, http.MethodGet, "/api/status", nil, &ans)
	return ans, err
}

func (h *PingwatchAPI) Events(ctx context.Context, q EventsQuery) (EventList, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if len(q.Type) > 0 {
		params.Set("type", q.Type)
	}
	if len(q.Worker) > 0 {
		params.Set("worker", q.Worker)
	}
	if q.SinceMinutes > 0 {
		params.Set("since_minutes", strconv.Itoa(q.SinceMinutes))
	}
	path := "/api/events"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var ans EventList
	err := h.do(ctx, http.MethodGet, path, nil, &ans)
	return ans, err
}

func (h *PingwatchAPI) Analysis(ctx context.Context) (Classification, error) {
	var ans Classification
	err := h.do(ctx, http.MethodGet, "/api/analysis", nil, &ans)
	return ans, err
}

func (h *PingwatchAPI) Worker(ctx context.Context, worker string) (Worker, error) {
	var ans Worker
	err := h.do(ctx, http.MethodGet, "/api/worker/"+url.PathEscape(worker), nil, &ans)
	return ans, err
}

func (h *PingwatchAPI) RCA(ctx context.Context) (Report, error) {
	var ans Report
	err := h.do(ctx, http.MethodGet, "/api/rca", nil, &ans)
	return ans, err
}

func (h *PingwatchAPI) do(ctx context.Context, method, path string, payload, dst any) error {
	var body io.Reader
	if payload != nil {
		json_data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(json_data)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.buildUrl(path), body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(h.apiKey) > 0 {
		req.Header.Set("X-API-KEY", h.apiKey)
	}
	resp, err := h.netClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		e := HttpError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			h.logf("cannot decode error response: %v", err)
		}
		e.StatusCode = resp.StatusCode
		return e
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func (h *PingwatchAPI) buildUrl(path string) string {
	return h.baseUrl + path
}
