// Package memguard provides a process-wide advisory memory watchdog.
package memguard

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/newsblend/ingest/internal/ingest"
	"github.com/newsblend/ingest/internal/metrics"
)

// Config sets the heap ceiling and the tier thresholds as fractions of it.
type Config struct {
	CeilingBytes     uint64
	WarningFraction  float64
	DangerFraction   float64
	CriticalFraction float64
}

// Guard classifies current heap usage into safety tiers. It never blocks or
// acts on its own; callers consult it at batch boundaries.
type Guard struct {
	cfg      Config
	readMem  func() uint64
	logger   *zap.Logger
	gcPause  time.Duration
	lastTier ingest.MemoryTier
}

// Option customizes Guard construction.
type Option func(*Guard)

// WithMemReader overrides the heap usage reader (for tests).
func WithMemReader(read func() uint64) Option {
	return func(g *Guard) { g.readMem = read }
}

// New constructs a Guard. Zero fractions fall back to 0.6/0.75/0.9.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WarningFraction == 0 {
		cfg.WarningFraction = 0.6
	}
	if cfg.DangerFraction == 0 {
		cfg.DangerFraction = 0.75
	}
	if cfg.CriticalFraction == 0 {
		cfg.CriticalFraction = 0.9
	}
	g := &Guard{
		cfg:     cfg,
		readMem: heapAlloc,
		logger:  logger,
		gcPause: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tier reports the current memory safety tier.
func (g *Guard) Tier() ingest.MemoryTier {
	if g.cfg.CeilingBytes == 0 {
		return ingest.MemoryOK
	}
	used := g.readMem()
	frac := float64(used) / float64(g.cfg.CeilingBytes)

	tier := ingest.MemoryOK
	switch {
	case frac >= g.cfg.CriticalFraction:
		tier = ingest.MemoryCritical
	case frac >= g.cfg.DangerFraction:
		tier = ingest.MemoryDanger
	case frac >= g.cfg.WarningFraction:
		tier = ingest.MemoryWarning
	}

	if tier != g.lastTier {
		g.logger.Info("memory tier changed",
			zap.String("tier", tier.String()),
			zap.Uint64("heap_bytes", used),
			zap.Uint64("ceiling_bytes", g.cfg.CeilingBytes),
		)
		g.lastTier = tier
	}
	metrics.SetMemoryTier(int(tier))
	return tier
}

// ForceGC triggers a collection pass and pauses briefly so the runtime can
// return freed pages before the caller resumes.
func (g *Guard) ForceGC() {
	runtime.GC()
	time.Sleep(g.gcPause)
}

func heapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
