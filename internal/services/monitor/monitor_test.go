package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gosom/pingwatch/internal/entities"
	"github.com/gosom/pingwatch/internal/gate"
)

type memEvents struct {
	mu     sync.Mutex
	events []entities.Event
}

func (m *memEvents) Append(_ context.Context, ev entities.Event) entities.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return ev
}

func (m *memEvents) ofType(t entities.EventType) []entities.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ans []entities.Event
	for _, ev := range m.events {
		if ev.Type == t {
			ans = append(ans, ev)
		}
	}
	return ans
}

type memNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (m *memNotifier) Enqueue(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
}

func (m *memNotifier) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

type fixedClassifier entities.Classification

func (f fixedClassifier) Classify() entities.Classification {
	return entities.Classification(f)
}

type memDiagnostics struct {
	mu  sync.Mutex
	got []entities.Diagnostic
	err error
}

func (m *memDiagnostics) Record(_ context.Context, d entities.Diagnostic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, d)
	return m.err
}

type fixture struct {
	svc      *Service
	events   *memEvents
	notifier *memNotifier
	diag     *memDiagnostics
	gate     *gate.Gate
}

func newFixture(t *testing.T, timeout time.Duration, c entities.Classification) *fixture {
	t.Helper()
	f := fixture{
		events:   &memEvents{},
		notifier: &memNotifier{},
		diag:     &memDiagnostics{},
		gate:     gate.New(),
	}
	svc, err := New(Config{
		Log:         zerolog.Nop(),
		FailTimeout: timeout,
		Events:      f.events,
		Diagnostics: f.diag,
		Classifier:  fixedClassifier(c),
		Notifier:    f.notifier,
		Gate:        f.gate,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return &f
}

func healthy() entities.Classification {
	return entities.Classification{Status: entities.Healthy}
}

func beat(t *testing.T, svc *Service, worker string) entities.HeartbeatResult {
	t.Helper()
	res, err := svc.RecordHeartbeat(context.Background(), entities.Heartbeat{
		Worker:        worker,
		SourceAddress: "10.0.0.1",
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	return res
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestRecordHeartbeat_RejectsEmptyWorker(t *testing.T) {
	f := newFixture(t, time.Minute, healthy())
	_, err := f.svc.RecordHeartbeat(context.Background(), entities.Heartbeat{})
	require.ErrorIs(t, err, ErrInvalidWorker)
}

func TestRecordHeartbeat_FirstHeartbeatIsUp(t *testing.T) {
	f := newFixture(t, time.Minute, healthy())

	require.True(t, beat(t, f.svc, "gpu-1").Recovered)
	require.False(t, beat(t, f.svc, "gpu-1").Recovered)

	ups := f.events.ofType(entities.EventUp)
	require.Len(t, ups, 1)
	require.Equal(t, "gpu-1", ups[0].Worker)
	require.Equal(t, "10.0.0.1", ups[0].SourceAddress)
	require.Equal(t, []string{"🟢 gpu-1 is UP"}, f.notifier.all())

	w, ok := f.svc.Worker("gpu-1")
	require.True(t, ok)
	require.Equal(t, entities.WorkerUp, w.Status)
	require.True(t, w.Armed)
	require.Equal(t, []string{"gpu-1"}, f.svc.ActiveWorkers())
}

func TestRecordHeartbeat_ForwardsDiagnostics(t *testing.T) {
	f := newFixture(t, time.Minute, healthy())
	f.diag.err = errors.New("disk full")

	res, err := f.svc.RecordHeartbeat(context.Background(), entities.Heartbeat{
		Worker:  "gpu-1",
		Payload: map[string]any{"gpu_temp": 71},
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Len(t, f.diag.got, 1)
	require.Equal(t, "gpu-1", f.diag.got[0].Worker)

	beat(t, f.svc, "gpu-1")
	require.Len(t, f.diag.got, 1)
}

func TestExpiry_SingleDownEvent(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond, healthy())
	beat(t, f.svc, "gpu-1")

	require.Eventually(t, func() bool {
		return len(f.events.ofType(entities.EventDown)) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	downs := f.events.ofType(entities.EventDown)
	require.Len(t, downs, 1)
	require.Equal(t, "10.0.0.1", downs[0].SourceAddress)
	require.Greater(t, downs[0].SecondsSincePing, 0.03)

	w, ok := f.svc.Worker("gpu-1")
	require.True(t, ok)
	require.Equal(t, entities.WorkerDown, w.Status)
	require.False(t, w.Armed)
	require.Empty(t, f.svc.ActiveWorkers())

	texts := f.notifier.all()
	require.Len(t, texts, 2)
	require.True(t, strings.HasPrefix(texts[1], "🔴 gpu-1 is DOWN"))

	require.True(t, beat(t, f.svc, "gpu-1").Recovered)
}

func TestExpiry_HeartbeatsSuppressDown(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond, healthy())
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		beat(t, f.svc, "gpu-1")
		time.Sleep(30 * time.Millisecond)
	}
	require.Empty(t, f.events.ofType(entities.EventDown))
	require.Len(t, f.events.ofType(entities.EventUp), 1)
}

func TestExpiry_StaleGenerationIsIgnored(t *testing.T) {
	f := newFixture(t, time.Minute, healthy())
	beat(t, f.svc, "gpu-1")
	beat(t, f.svc, "gpu-1")

	f.svc.onExpiry("gpu-1", 1)
	f.svc.onExpiry("unknown", 1)
	require.Empty(t, f.events.ofType(entities.EventDown))
}

func TestExpiry_NotStaleIsFalseAlarm(t *testing.T) {
	f := newFixture(t, time.Minute, healthy())
	beat(t, f.svc, "gpu-1")

	f.svc.onExpiry("gpu-1", 1)
	require.Empty(t, f.events.ofType(entities.EventDown))
	w, _ := f.svc.Worker("gpu-1")
	require.True(t, w.Armed)
}

func TestExpiry_IdempotentPerGeneration(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newFixture(t, time.Hour, healthy())
	f.svc.now = clock
	beat(t, f.svc, "gpu-1")

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.onExpiry("gpu-1", 1)
		}()
	}
	wg.Wait()
	downs := f.events.ofType(entities.EventDown)
	require.Len(t, downs, 1)
	require.Equal(t, float64(2*60*60), downs[0].SecondsSincePing)
}

func TestExpiry_GateDelaysDown(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond, healthy())
	f.gate.Hold()
	beat(t, f.svc, "gpu-1")

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, f.events.ofType(entities.EventDown))

	f.gate.Release()
	require.Eventually(t, func() bool {
		return len(f.events.ofType(entities.EventDown)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestExpiry_HeartbeatWhileHeldCancelsDown(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond, healthy())
	f.gate.Hold()
	beat(t, f.svc, "gpu-1")
	time.Sleep(80 * time.Millisecond)

	beat(t, f.svc, "gpu-1")
	f.gate.Release()
	time.Sleep(10 * time.Millisecond)
	require.Empty(t, f.events.ofType(entities.EventDown))
}

func TestExpiry_ConcurrentWorkers(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, healthy())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.RecordHeartbeat(context.Background(), entities.Heartbeat{
				Worker:        fmt.Sprintf("w-%03d", i),
				SourceAddress: "10.0.0.1",
			})
			if err != nil {
				panic(err)
			}
		}(i)
	}
	wg.Wait()
	require.Len(t, f.svc.ActiveWorkers(), 100)

	require.Eventually(t, func() bool {
		return len(f.events.ofType(entities.EventDown)) == 100
	}, 3*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	downs := f.events.ofType(entities.EventDown)
	require.Len(t, downs, 100)
	seen := make(map[string]bool)
	for _, ev := range downs {
		require.False(t, seen[ev.Worker], ev.Worker)
		seen[ev.Worker] = true
	}
	require.Empty(t, f.svc.ActiveWorkers())
	require.Len(t, f.svc.Workers(), 100)
}

func TestDownAlert(t *testing.T) {
	text := downAlert("gpu-1", 185*time.Second, healthy())
	require.Equal(t, "🔴 gpu-1 is DOWN (silent for 3 minutes 5 seconds)", text)

	shared := entities.Classification{
		Status:  entities.NetworkIssue,
		Message: "NETWORK ISSUE: 5 workers from same IP went down",
	}
	text = downAlert("gpu-1", 185*time.Second, shared)
	require.Equal(t, "🔴 gpu-1 is DOWN (silent for 3 minutes 5 seconds)\n⚠️ NETWORK ISSUE: 5 workers from same IP went down", text)
}

func TestClose_UnblocksHeldExpiries(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond, healthy())
	f.gate.Hold()
	beat(t, f.svc, "gpu-1")
	time.Sleep(30 * time.Millisecond)

	f.svc.Close()
	f.gate.Release()
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, f.events.ofType(entities.EventDown))
}
