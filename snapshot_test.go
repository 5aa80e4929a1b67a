package smokerlog

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStore() *Store {
	st := NewStore()
	st.Append(reading(100, SensorValue{"pit", 225.25}, SensorValue{"meat", 40}))
	st.Append(reading(160, SensorValue{"pit", 226}))
	st.Append(reading(220, SensorValue{"pit", 224.5}, SensorValue{"meat", 45.75}))
	return st
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := sampleStore()
	st.SelectRegion(Region{Start: 100, End: 150})

	var buf bytes.Buffer
	require.NoError(t, st.WriteSnapshot(&buf))

	restored, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, st.Names(), restored.Names())
	for _, name := range st.Names() {
		want, _ := st.Series(name)
		got, _ := restored.Series(name)
		assert.Equal(t, want, got, name)
	}

	// The region is a view setting and does not survive a restart.
	_, ok := restored.Region()
	assert.False(t, ok)
}

func TestSnapshotEmptyStore(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewStore().WriteSnapshot(&buf))

	restored, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, restored.Len())
}

func TestSnapshotTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleStore().WriteSnapshot(&buf))
	full := buf.Bytes()

	// Cutting at any point, including exactly between messages, must fail.
	for _, n := range []int{0, 5, EnvelopeHeaderSize + 3, len(full) / 2, len(full) - 1} {
		_, err := ReadSnapshot(bytes.NewReader(full[:n]))
		assert.Error(t, err, "cut at %d", n)
	}

	withoutTrailer := bytes.NewBuffer(nil)
	st := sampleStore()
	require.NoError(t, WriteMessage(withoutTrailer, NewMessage(Metadata{PlotOptions: PlotOptions{Columns: st.Names()}})))
	_, err := ReadSnapshot(withoutTrailer)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}

func TestSnapshotRejectsBadSeriesID(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewMessage(Metadata{PlotOptions: PlotOptions{Columns: []string{"pit"}}})))
	require.NoError(t, WriteMessage(&buf, NewMessage(NewDataMessage(4, Series{Times: []float64{1}, Values: []float64{2}}))))
	require.NoError(t, WriteMessage(&buf, NewMessage(StreamEndMessage{})))

	_, err := ReadSnapshot(&buf)
	assert.Error(t, err)
}

func TestSaveLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".SmokerLog.snapshot")

	_, err := LoadSnapshot(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	st := sampleStore()
	require.NoError(t, SaveSnapshot(path, st))
	st.Append(reading(280, SensorValue{"pit", 230}))
	require.NoError(t, SaveSnapshot(path, st))

	restored, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, st.Points(), restored.Points())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")

	require.NoError(t, RemoveSnapshot(path))
	require.NoError(t, RemoveSnapshot(path))
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
