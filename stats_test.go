package smokerlog

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestComputeStats(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.Local)
	s := Series{
		Times:  []float64{float64(t0.Unix()), float64(t0.Add(time.Minute).Unix()), float64(t0.Add(2 * time.Minute).Unix())},
		Values: []float64{10, 30, 20},
	}

	st, err := ComputeStats(s)
	require.NoError(t, err)
	assert.Equal(t, 20.0, st.Current)
	assert.Equal(t, 30.0, st.Max)
	assert.Equal(t, 10.0, st.Min)
	assert.Equal(t, 20.0, st.Avg)
	assert.InDelta(t, math.Sqrt(200.0/3), st.Stdev, 1e-9)
	assert.Equal(t, "10:00:00 - 10:02:00", st.Domain)
}

func TestComputeStatsSinglePoint(t *testing.T) {
	st, err := ComputeStats(Series{Times: []float64{0}, Values: []float64{72}})
	require.NoError(t, err)
	assert.Equal(t, 72.0, st.Avg)
	assert.Equal(t, 0.0, st.Stdev)
}

func TestComputeStatsEmpty(t *testing.T) {
	_, err := ComputeStats(Series{})
	assert.True(t, errors.Is(err, ErrEmptySeries))
}

func TestStoreReport(t *testing.T) {
	st := NewStore()
	st.Append(reading(100, SensorValue{"pit", 200}, SensorValue{"meat", 40}))
	st.Append(reading(200, SensorValue{"pit", 220}))
	st.Append(reading(300, SensorValue{"pit", 240}, SensorValue{"meat", 60}))

	report := st.Report()
	assert.Len(t, report.Total, 2)
	assert.Empty(t, report.Selected)
	assert.Equal(t, 220.0, report.Total["pit"].Avg)

	// meat has no point inside the region and is left out of Selected.
	st.SelectRegion(Region{Start: 150, End: 250})
	report = st.Report()
	assert.Len(t, report.Total, 2)
	require.Len(t, report.Selected, 1)
	assert.Equal(t, 220.0, report.Selected["pit"].Current)

	out, err := yaml.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Total:")
	assert.Contains(t, string(out), "Selected:")
	assert.Contains(t, string(out), "stdev:")
}
