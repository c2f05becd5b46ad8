package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestNoOpCollector(t *testing.T) {
	timer := StartTimer(context.Background(), "ignored")
	timer.Child("child").End()
	timer.End()

	var buf bytes.Buffer
	FromContext(context.Background()).Report(&buf, nil)
	assert.Equal(t, 0, buf.Len())
}

func TestFromContextReturnsNoOpWhenMissing(t *testing.T) {
	_, ok := FromContext(context.Background()).(noOpCollector)
	assert.True(t, ok)
}

func TestWithCollector(t *testing.T) {
	collector := NewTimingCollector()
	ctx := WithCollector(context.Background(), collector)
	got, ok := FromContext(ctx).(*TimingCollector)
	assert.True(t, ok)
	assert.True(t, got == collector)
}

func TestTimingCollectorTree(t *testing.T) {
	collector := NewTimingCollector()
	collector.now = fakeClock(10 * time.Millisecond)
	ctx := WithCollector(context.Background(), collector)

	root := StartTimer(ctx, "import bank.csv")
	// Started while root runs: nests under it.
	parse := StartTimer(ctx, "parse")
	validate := parse.Child("validate")
	validate.End()
	parse.End()
	commit := root.Child("commit")
	commit.End()
	root.End()

	var buf bytes.Buffer
	collector.Report(&buf, nil)

	want := strings.Join([]string{
		"import bank.csv: 70ms",
		"├─ parse: 30ms",
		"│  └─ validate: 10ms",
		"└─ commit: 10ms",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestTimingCollectorSequentialRoots(t *testing.T) {
	collector := NewTimingCollector()
	collector.now = fakeClock(time.Millisecond)

	collector.Start("first").End()
	collector.Start("second").End()

	var buf bytes.Buffer
	collector.Report(&buf, nil)
	assert.Equal(t, "first: 1ms\nsecond: 1ms\n", buf.String())
}

func TestTimingCollectorEndTwice(t *testing.T) {
	collector := NewTimingCollector()
	collector.now = fakeClock(time.Millisecond)

	timer := collector.Start("once")
	timer.End()
	timer.End()

	assert.Equal(t, map[string]time.Duration{"once": time.Millisecond}, collector.Durations())
}

func TestTimingCollectorEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	NewTimingCollector().Report(&buf, nil)
	assert.Equal(t, 0, buf.Len())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{time.Millisecond, "1ms"},
		{999 * time.Millisecond, "999ms"},
		{time.Second, "1.00s"},
		{1500 * time.Millisecond, "1.50s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.duration))
	}
}
