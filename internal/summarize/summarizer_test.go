package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBackend struct {
	summary string
	err     error
	delay   time.Duration
	calls   int
}

func (b *fakeBackend) Complete(ctx context.Context, _ string, _ int) (string, error) {
	b.calls++
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return b.summary, b.err
}

func longText(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func TestSummarize_ShortInputSkipsBackend(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{summary: "should not be used"}
	a := New(backend, Config{}, zap.NewNop())

	got, fellBack := a.Summarize(context.Background(), "already short enough", 10)
	require.Equal(t, "already short enough", got)
	require.False(t, fellBack)
	require.Zero(t, backend.calls)
}

func TestSummarize_BackendSuccess(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{summary: "  a   tidy\nsummary  "}
	a := New(backend, Config{}, zap.NewNop())

	got, fellBack := a.Summarize(context.Background(), longText(50), 10)
	require.Equal(t, "a tidy summary", got)
	require.False(t, fellBack)
	require.Equal(t, 1, backend.calls)
}

func TestSummarize_BackendErrorFallsBack(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{err: errors.New("rate limited")}
	a := New(backend, Config{}, zap.NewNop())

	got, fellBack := a.Summarize(context.Background(), longText(50), 10)
	require.True(t, fellBack)
	require.Equal(t, TruncateWords(longText(50), 10), got)
}

func TestSummarize_TimeoutFallsBack(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{summary: "too late", delay: time.Second}
	a := New(backend, Config{Timeout: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	got, fellBack := a.Summarize(context.Background(), longText(50), 10)
	require.True(t, fellBack)
	require.Equal(t, TruncateWords(longText(50), 10), got)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSummarize_EmptyResponseFallsBack(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{summary: "   "}
	a := New(backend, Config{}, zap.NewNop())

	got, fellBack := a.Summarize(context.Background(), longText(50), 10)
	require.True(t, fellBack)
	require.NotEmpty(t, got)
}

func TestSummarize_NilBackendAlwaysTruncates(t *testing.T) {
	t.Parallel()

	a := New(nil, Config{}, zap.NewNop())

	got, fellBack := a.Summarize(context.Background(), longText(30), 5)
	require.True(t, fellBack)
	require.Equal(t, "word word word word word...", got)
}

func TestSummarize_EmptyInput(t *testing.T) {
	t.Parallel()

	a := New(&fakeBackend{}, Config{}, zap.NewNop())
	got, fellBack := a.Summarize(context.Background(), "   \n  ", 10)
	require.Empty(t, got)
	require.False(t, fellBack)
}

func TestTruncateWords(t *testing.T) {
	t.Parallel()

	require.Equal(t, "one two three", TruncateWords("one two three", 5))
	require.Equal(t, "one two...", TruncateWords("one two three four five six", 2))
	require.Equal(t, "", TruncateWords("", 3))
}

func TestWordCount(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, WordCount(""))
	require.Equal(t, 3, WordCount("  a\tb \n c "))
}
