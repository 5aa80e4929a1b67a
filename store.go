package smokerlog

import (
	"time"

	"golang.org/x/exp/slices"
)

// Series is the history of one sensor: parallel slices of unix timestamps
// (seconds) and values, in arrival order.
type Series struct {
	Times  []float64 `json:"t" yaml:"t"`
	Values []float64 `json:"T" yaml:"T"`
}

func (s Series) Len() int {
	return len(s.Times)
}

func (s Series) Copy() Series {
	return Series{
		Times:  slices.Clone(s.Times),
		Values: slices.Clone(s.Values),
	}
}

// Region is an inclusive [Start, End] window in unix seconds.
type Region struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

func NewRegion(start, end time.Time) Region {
	return Region{Start: float64(start.Unix()), End: float64(end.Unix())}
}

func (r Region) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

// Store keeps the full history of every sensor plus the currently selected
// region. It is owned by the event loop and is not safe for concurrent use.
type Store struct {
	names  []string
	series map[string]*Series
	region *Region
}

func NewStore() *Store {
	return &Store{
		series: make(map[string]*Series),
	}
}

// Append adds every sensor value of the reading to its series, creating the
// series on first sight of a sensor name.
func (st *Store) Append(r Reading) {
	x := r.X()
	for _, sv := range r.Temps {
		s, ok := st.series[sv.Name]
		if !ok {
			s = &Series{}
			st.series[sv.Name] = s
			st.names = append(st.names, sv.Name)
		}
		s.Times = append(s.Times, x)
		s.Values = append(s.Values, sv.Value)
	}
}

// Names returns sensor names in the order they were first seen.
func (st *Store) Names() []string {
	return slices.Clone(st.names)
}

func (st *Store) Series(name string) (Series, bool) {
	s, ok := st.series[name]
	if !ok {
		return Series{}, false
	}
	return *s, true
}

func (st *Store) Len() int {
	return len(st.names)
}

// SelectRegion records the active window. Reversed bounds are swapped.
func (st *Store) SelectRegion(r Region) {
	if r.Start > r.End {
		r.Start, r.End = r.End, r.Start
	}
	st.region = &r
}

func (st *Store) ClearRegion() {
	st.region = nil
}

func (st *Store) Region() (Region, bool) {
	if st.region == nil {
		return Region{}, false
	}
	return *st.region, true
}

// Windowed returns the contiguous part of the named series that falls inside
// the selected region, or the whole series when no region is selected. It
// relies on timestamps being non-decreasing, which Append guarantees under
// normal operation.
func (st *Store) Windowed(name string) (Series, bool) {
	s, ok := st.series[name]
	if !ok {
		return Series{}, false
	}
	if st.region == nil {
		return *s, true
	}
	return s.Window(*st.region), true
}

// Window slices the series to the points inside r using binary search.
func (s Series) Window(r Region) Series {
	lo, _ := slices.BinarySearchFunc(s.Times, r.Start, func(t, target float64) int {
		if t < target {
			return -1
		}
		return 1
	})
	hi, _ := slices.BinarySearchFunc(s.Times, r.End, func(t, target float64) int {
		if t <= target {
			return -1
		}
		return 1
	})
	if hi < lo {
		hi = lo
	}

	return Series{
		Times:  s.Times[lo:hi:hi],
		Values: s.Values[lo:hi:hi],
	}
}

// MinTime and MaxTime span every series; both are zero for an empty store.
func (st *Store) MinTime() float64 {
	first := true
	var m float64
	for _, s := range st.series {
		for _, t := range s.Times {
			if first || t < m {
				m = t
				first = false
			}
		}
	}
	return m
}

func (st *Store) MaxTime() float64 {
	first := true
	var m float64
	for _, s := range st.series {
		for _, t := range s.Times {
			if first || t > m {
				m = t
				first = false
			}
		}
	}
	return m
}

// Points returns the total number of points across all series.
func (st *Store) Points() int {
	n := 0
	for _, s := range st.series {
		n += s.Len()
	}
	return n
}

// Clear drops all history and the selected region.
func (st *Store) Clear() {
	st.names = nil
	st.series = make(map[string]*Series)
	st.region = nil
}

// Copy returns a deep copy, safe to hand to another goroutine.
func (st *Store) Copy() *Store {
	c := NewStore()
	for _, name := range st.names {
		s := st.series[name].Copy()
		c.names = append(c.names, name)
		c.series[name] = &s
	}
	if st.region != nil {
		r := *st.region
		c.region = &r
	}
	return c
}
