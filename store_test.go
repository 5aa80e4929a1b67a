package smokerlog

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(sec int64, temps ...SensorValue) Reading {
	return Reading{Time: time.Unix(sec, 0), Temps: temps}
}

func TestStoreAppend(t *testing.T) {
	st := NewStore()
	st.Append(reading(10, SensorValue{"pit", 200}, SensorValue{"meat", 40}))
	st.Append(reading(20, SensorValue{"pit", 210}))
	st.Append(reading(30, SensorValue{"ambient", 70}, SensorValue{"pit", 220}))

	assert.Equal(t, []string{"pit", "meat", "ambient"}, st.Names())
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, 5, st.Points())

	pit, ok := st.Series("pit")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 30}, pit.Times)
	assert.Equal(t, []float64{200, 210, 220}, pit.Values)

	meat, _ := st.Series("meat")
	assert.Equal(t, 1, meat.Len())

	_, ok = st.Series("missing")
	assert.False(t, ok)

	assert.Equal(t, 10.0, st.MinTime())
	assert.Equal(t, 30.0, st.MaxTime())
}

func TestStoreRegion(t *testing.T) {
	st := NewStore()
	for i := int64(0); i < 10; i++ {
		st.Append(reading(100+i*10, SensorValue{"pit", float64(i)}))
	}

	_, ok := st.Region()
	assert.False(t, ok)
	all, _ := st.Windowed("pit")
	assert.Equal(t, 10, all.Len())

	t.Run("inclusive bounds", func(t *testing.T) {
		st.SelectRegion(Region{Start: 120, End: 150})
		w, ok := st.Windowed("pit")
		require.True(t, ok)
		assert.Equal(t, []float64{120, 130, 140, 150}, w.Times)
		assert.Equal(t, []float64{2, 3, 4, 5}, w.Values)
	})

	t.Run("reversed bounds are swapped", func(t *testing.T) {
		st.SelectRegion(Region{Start: 155, End: 115})
		r, _ := st.Region()
		assert.Equal(t, Region{Start: 115, End: 155}, r)
		w, _ := st.Windowed("pit")
		assert.Equal(t, []float64{120, 130, 140, 150}, w.Times)
	})

	t.Run("region outside data", func(t *testing.T) {
		st.SelectRegion(Region{Start: 1000, End: 2000})
		w, _ := st.Windowed("pit")
		assert.Equal(t, 0, w.Len())
	})

	t.Run("clear", func(t *testing.T) {
		st.ClearRegion()
		_, ok := st.Region()
		assert.False(t, ok)
		w, _ := st.Windowed("pit")
		assert.Equal(t, 10, w.Len())
	})
}

func TestSeriesWindowMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	var s Series
	x := 0.0
	for i := 0; i < 200; i++ {
		// Repeated timestamps are allowed.
		x += float64(rng.Intn(3))
		s.Times = append(s.Times, x)
		s.Values = append(s.Values, rng.Float64())
	}

	for i := 0; i < 500; i++ {
		a := rng.Float64()*x*1.2 - x*0.1
		b := rng.Float64()*x*1.2 - x*0.1
		r := Region{Start: Min(a, b), End: Max(a, b)}

		var want Series
		for j, tm := range s.Times {
			if r.Contains(tm) {
				want.Times = append(want.Times, tm)
				want.Values = append(want.Values, s.Values[j])
			}
		}

		got := s.Window(r)
		require.Equal(t, want.Len(), got.Len(), "region %+v", r)
		for j := range want.Times {
			require.Equal(t, want.Times[j], got.Times[j])
			require.Equal(t, want.Values[j], got.Values[j])
		}
	}
}

func TestStoreCopyIsIndependent(t *testing.T) {
	st := NewStore()
	st.Append(reading(1, SensorValue{"pit", 100}))
	st.SelectRegion(Region{Start: 0, End: 5})

	c := st.Copy()
	st.Append(reading(2, SensorValue{"pit", 101}))
	st.ClearRegion()

	s, _ := c.Series("pit")
	assert.Equal(t, 1, s.Len())
	r, ok := c.Region()
	require.True(t, ok)
	assert.Equal(t, Region{Start: 0, End: 5}, r)
}

func TestStoreClear(t *testing.T) {
	st := NewStore()
	st.Append(reading(1, SensorValue{"pit", 100}))
	st.SelectRegion(Region{Start: 0, End: 5})
	st.Clear()

	assert.Equal(t, 0, st.Len())
	assert.Equal(t, 0, st.Points())
	assert.Empty(t, st.Names())
	_, ok := st.Region()
	assert.False(t, ok)
}
