package memguard

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/ingest"
)

func TestGuard_TierThresholds(t *testing.T) {
	t.Parallel()

	const ceiling = 1000

	cases := []struct {
		name string
		used uint64
		want ingest.MemoryTier
	}{
		{name: "well under", used: 100, want: ingest.MemoryOK},
		{name: "just below warning", used: 599, want: ingest.MemoryOK},
		{name: "warning", used: 600, want: ingest.MemoryWarning},
		{name: "danger", used: 750, want: ingest.MemoryDanger},
		{name: "critical", used: 900, want: ingest.MemoryCritical},
		{name: "over ceiling", used: 1500, want: ingest.MemoryCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			used := tc.used
			g := New(Config{CeilingBytes: ceiling}, zap.NewNop(),
				WithMemReader(func() uint64 { return used }))
			require.Equal(t, tc.want, g.Tier())
		})
	}
}

func TestGuard_NoCeilingAlwaysOK(t *testing.T) {
	t.Parallel()

	g := New(Config{}, zap.NewNop(),
		WithMemReader(func() uint64 { return 1 << 40 }))
	require.Equal(t, ingest.MemoryOK, g.Tier())
}

func TestGuard_ForceGCReturns(t *testing.T) {
	t.Parallel()

	g := New(Config{CeilingBytes: 1}, zap.NewNop())
	g.gcPause = 0
	g.ForceGC()
}
