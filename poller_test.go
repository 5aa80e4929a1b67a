package smokerlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource yields readings according to a script of true (reading) and
// false (no data) entries, then keeps producing readings.
type scriptedSource struct {
	script []bool
	calls  int
}

func (s *scriptedSource) Fetch(ctx context.Context) (Reading, bool) {
	i := s.calls
	s.calls++
	if i < len(s.script) && !s.script[i] {
		return Reading{}, false
	}
	return NewReading(time.Unix(int64(1000+60*i), 0), []SensorValue{
		{Name: "pit", Value: 200 + float64(i)},
		{Name: "meat", Value: 40 + float64(i)},
	}), true
}

func (s *scriptedSource) Info() SourceInfo { return SourceInfo{TempUnits: "F"} }
func (s *scriptedSource) String() string   { return "scripted" }

// memorySink records batches; it fails every call while err is set, after
// writing the first `partial` readings.
type memorySink struct {
	written []Reading
	batches int
	events  []string
	err     error
	partial int
}

func (m *memorySink) WriteBatch(readings []Reading) (int, error) {
	m.batches++
	if m.err != nil {
		n := Min(m.partial, len(readings))
		m.written = append(m.written, readings[:n]...)
		return n, m.err
	}
	m.written = append(m.written, readings...)
	return len(readings), nil
}

func (m *memorySink) LogEvent(text string, t time.Time) error {
	m.events = append(m.events, text)
	return nil
}

func TestPollerFlushesAtThreshold(t *testing.T) {
	for _, tc := range []struct{ ticks, threshold int }{{10, 10}, {25, 10}, {7, 3}, {5, 1}} {
		sink := &memorySink{}
		p := NewPoller(&scriptedSource{}, sink, WithCacheBufferSize(tc.threshold))

		for i := 0; i < tc.ticks; i++ {
			require.True(t, p.Tick(context.Background()))
			if p.Cached() == 0 {
				assert.Equal(t, 0, (i+1)%tc.threshold, "flushed early at tick %d", i+1)
			}
		}

		assert.Equal(t, tc.ticks/tc.threshold, sink.batches, "ticks=%d threshold=%d", tc.ticks, tc.threshold)
		assert.Equal(t, tc.ticks%tc.threshold, p.Cached())
		assert.Equal(t, tc.ticks/tc.threshold, p.Status().Flushes)
	}
}

func TestPollerNoDataChangesNothing(t *testing.T) {
	sink := &memorySink{}
	store := NewStore()
	var handled int

	p := NewPoller(&scriptedSource{script: []bool{false, true, false}}, sink)
	p.Subscribe(ReadingHandlerFunc(store.Append))
	p.Subscribe(ReadingHandlerFunc(func(Reading) { handled++ }))

	assert.False(t, p.Tick(context.Background()))
	assert.Equal(t, 0, p.Cached())
	assert.Equal(t, 0, store.Points())
	assert.Equal(t, 0, handled)

	assert.True(t, p.Tick(context.Background()))
	assert.False(t, p.Tick(context.Background()))
	assert.Equal(t, 1, p.Cached())
	assert.Equal(t, 2, store.Points())
	assert.Equal(t, 1, handled)

	status := p.Status()
	assert.Equal(t, 1, status.Reads)
	assert.Equal(t, 2, status.Misses)
}

func TestPollerFailedFlushKeepsReadings(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full"), partial: 1}
	p := NewPoller(&scriptedSource{}, sink, WithCacheBufferSize(3))

	for i := 0; i < 3; i++ {
		p.Tick(context.Background())
	}
	assert.Len(t, sink.written, 1)
	assert.Equal(t, 2, p.Cached())

	err := p.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, sink.written, 2)
	assert.Equal(t, 1, p.Cached())
	assert.Equal(t, 0, p.Status().Flushes)

	// Once the sink recovers every reading arrives exactly once, in order.
	sink.err = nil
	require.NoError(t, p.Flush())
	assert.Equal(t, 0, p.Cached())
	require.Len(t, sink.written, 3)
	for i, r := range sink.written {
		assert.True(t, r.Time.Equal(time.Unix(int64(1000+60*i), 0)), "reading %d at %v", i, r.Time)
	}
}

func TestPollerHandlerOrder(t *testing.T) {
	var order []string
	p := NewPoller(&scriptedSource{}, &memorySink{})
	p.Subscribe(ReadingHandlerFunc(func(Reading) { order = append(order, "store") }))
	p.Subscribe(ReadingHandlerFunc(func(Reading) { order = append(order, "hub") }))
	p.Subscribe(ReadingHandlerFunc(func(Reading) { order = append(order, "metrics") }))

	p.Tick(context.Background())
	assert.Equal(t, []string{"store", "hub", "metrics"}, order)
}

func TestPollerStates(t *testing.T) {
	p := NewPoller(&scriptedSource{}, &memorySink{}, WithReadInterval(time.Hour))
	assert.Equal(t, PollerIdle, p.State())
	assert.Nil(t, p.Ticks())

	require.NoError(t, p.Start())
	assert.Equal(t, PollerRunning, p.State())
	assert.NotNil(t, p.Ticks())
	assert.Error(t, p.Start())

	require.NoError(t, p.SetInterval(2*time.Hour))
	assert.Equal(t, 2*time.Hour, p.Interval())
	assert.Error(t, p.SetInterval(0))

	p.Stop()
	assert.Equal(t, PollerStopped, p.State())
	assert.Nil(t, p.Ticks())
	assert.Error(t, p.Start())
	assert.Equal(t, "stopped", p.State().String())
}

func TestPollerTicker(t *testing.T) {
	p := NewPoller(&scriptedSource{}, &memorySink{}, WithReadInterval(10*time.Millisecond))
	require.NoError(t, p.Start())
	defer p.Stop()

	select {
	case <-p.Ticks():
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestPollerThresholdChange(t *testing.T) {
	sink := &memorySink{}
	p := NewPoller(&scriptedSource{}, sink, WithCacheBufferSize(10))
	for i := 0; i < 4; i++ {
		p.Tick(context.Background())
	}
	assert.Error(t, p.SetThreshold(0))
	require.NoError(t, p.SetThreshold(5))
	p.Tick(context.Background())
	assert.Equal(t, 1, sink.batches)
	assert.Equal(t, 0, p.Cached())
}

func TestPollerLogEventAndClear(t *testing.T) {
	sink := &memorySink{}
	p := NewPoller(&scriptedSource{}, sink)

	require.NoError(t, p.LogEvent("lid opened", time.Time{}))
	assert.Equal(t, []string{"lid opened"}, sink.events)

	p.Tick(context.Background())
	p.Clear()
	assert.Equal(t, 0, p.Cached())
	require.NoError(t, p.Flush())
	assert.Equal(t, 0, sink.batches)
}

func TestPollerWithFileSink(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "cook")
	p := NewPoller(&scriptedSource{}, NewFileSink(prefix), WithCacheBufferSize(2))
	for i := 0; i < 4; i++ {
		p.Tick(context.Background())
	}
	assert.Len(t, readLines(t, prefix+"-pit.txt"), 4)
	assert.Len(t, readLines(t, prefix+"-meat.txt"), 4)
}
