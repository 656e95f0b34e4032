package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, h http.HandlerFunc) *PingwatchAPI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	api, err := New(Config{
		BaseUrl:    srv.URL,
		APIKey:     "k",
		HttpClient: srv.Client(),
		Logf:       t.Logf,
	})
	require.NoError(t, err)
	return api
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	var (
		method string
		path   string
		key    string
		body   []byte
	)
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		method, path, key = r.Method, r.URL.EscapedPath(), r.Header.Get("X-API-KEY")
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"status":1,"msg":"Heartbeat received"}`))
	})

	ack, err := api.Ping(context.Background(), "gpu 1", nil)
	require.NoError(t, err)
	require.Equal(t, Ack{Status: 1, Msg: "Heartbeat received"}, ack)
	require.Equal(t, http.MethodGet, method)
	require.Equal(t, "/ping/gpu%201", path)
	require.Equal(t, "k", key)
	require.Empty(t, body)

	_, err = api.Ping(context.Background(), "gpu-1", map[string]any{"temp": 70})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, method)
	var p PingPayload
	require.NoError(t, json.Unmarshal(body, &p))
	require.EqualValues(t, 70, p.Diagnostics["temp"])

	_, err = api.Ping(context.Background(), "", nil)
	require.Error(t, err)
}

func TestPing_Unauthorized(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":0,"msg":"Invalid API key"}`))
	})
	_, err := api.Ping(context.Background(), "gpu-1", nil)
	var httpErr HttpError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	require.Contains(t, httpErr.Error(), "Invalid API key")
}

func TestEvents(t *testing.T) {
	var query string
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"count":1,"events":[{"id":"x","ts":"2024-05-01T12:00:00Z","type":"down","worker":"a","client_ip":null,"seconds_since_ping":181}]}`))
	})
	list, err := api.Events(context.Background(), EventsQuery{Limit: 5, Type: "down", SinceMinutes: 10})
	require.NoError(t, err)
	require.Equal(t, "limit=5&since_minutes=10&type=down", query)
	require.Equal(t, 1, list.Count)
	require.Nil(t, list.Events[0].ClientIP)
	require.Equal(t, 181.0, list.Events[0].SecondsSincePing)
}

func TestRCA(t *testing.T) {
	var path string
	api := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"period":"last_60_minutes","total_events":3,"up_events":0,"down_events":3,
			"mass_failure_windows":[{"time":"2024-05-01T12:00:00Z","workers":["a","b","c"],"count":3}],
			"current_analysis":{"status":"partial_outage","severity":"medium","message":"PARTIAL: 3 workers down recently","affected_workers":["a","b","c"],"likely_cause":"x"}}`))
	})
	r, err := api.RCA(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/api/rca", path)
	require.Equal(t, 3, r.DownEvents)
	require.Len(t, r.MassFailureWindows, 1)
	require.Equal(t, "partial_outage", r.CurrentAnalysis.Status)
}
