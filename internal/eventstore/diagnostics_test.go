package eventstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gosom/pingwatch/internal/entities"
)

func TestDiagnosticStore_LatestWins(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	s, err := OpenDiagnostics(Config{Log: zerolog.Nop(), Dir: dir, Sink: sink})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, entities.Diagnostic{
		Worker:        "gpu-1",
		SourceAddress: "10.0.0.1",
		Payload:       map[string]any{"dns_ok": 1.0},
	}))
	require.NoError(t, s.Record(ctx, entities.Diagnostic{
		Worker:        "gpu-1",
		SourceAddress: "10.0.0.1",
		Payload:       map[string]any{"dns_ok": 0.0, "traceroute": "1 * * *"},
	}))

	d, ok := s.Latest("gpu-1")
	require.True(t, ok)
	require.Equal(t, 0.0, d.Payload["dns_ok"])
	require.Equal(t, "1 * * *", d.Payload["traceroute"])
	require.Equal(t, 1, s.Len())
	require.Len(t, sink.diags, 2)

	_, ok = s.Latest("unknown")
	require.False(t, ok)

	data, err := os.ReadFile(filepath.Join(dir, diagnosticsFileName))
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
	require.NoError(t, s.Close())

	reopened, err := OpenDiagnostics(Config{Log: zerolog.Nop(), Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()
	d, ok = reopened.Latest("gpu-1")
	require.True(t, ok)
	require.Equal(t, "1 * * *", d.Payload["traceroute"])
}
