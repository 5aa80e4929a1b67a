package smokerlog

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrEmptySeries = errors.New("statistics of an empty series")

type Stats struct {
	Domain  string  `json:"domain" yaml:"domain"`
	Current float64 `json:"current" yaml:"current"`
	Max     float64 `json:"max" yaml:"max"`
	Min     float64 `json:"min" yaml:"min"`
	Avg     float64 `json:"avg" yaml:"avg"`
	Stdev   float64 `json:"stdev" yaml:"stdev"`
}

// ComputeStats summarizes a series. Current is the most recent value and
// Stdev is the population standard deviation. Callers check Len() first;
// an empty series yields ErrEmptySeries.
func ComputeStats(s Series) (Stats, error) {
	n := len(s.Values)
	if n == 0 || len(s.Times) != n {
		return Stats{}, ErrEmptySeries
	}

	st := Stats{
		Current: s.Values[n-1],
		Max:     s.Values[0],
		Min:     s.Values[0],
	}

	sum := 0.0
	for _, v := range s.Values {
		st.Max = Max(st.Max, v)
		st.Min = Min(st.Min, v)
		sum += v
	}
	st.Avg = sum / float64(n)

	sq := 0.0
	for _, v := range s.Values {
		d := v - st.Avg
		sq += d * d
	}
	st.Stdev = math.Sqrt(sq / float64(n))

	tmin, tmax := s.Times[0], s.Times[0]
	for _, t := range s.Times {
		tmin = Min(tmin, t)
		tmax = Max(tmax, t)
	}
	st.Domain = fmt.Sprintf("%s - %s", FormatClock(tmin), FormatClock(tmax))

	return st, nil
}

// FormatClock renders unix seconds as local wall-clock time.
func FormatClock(x float64) string {
	return time.Unix(int64(x), 0).Format(ClockLayout)
}

// StatsReport holds statistics for the full history and for the selected
// region, keyed by sensor name.
type StatsReport struct {
	Total    map[string]Stats `json:"Total" yaml:"Total"`
	Selected map[string]Stats `json:"Selected" yaml:"Selected"`
}

// Report computes statistics for every sensor. Sensors whose series or
// window is empty are left out. Selected is empty when no region is set.
func (st *Store) Report() StatsReport {
	report := StatsReport{
		Total:    make(map[string]Stats),
		Selected: make(map[string]Stats),
	}

	for _, name := range st.names {
		s := *st.series[name]
		if s.Len() > 0 {
			report.Total[name], _ = ComputeStats(s)
		}
	}

	region, ok := st.Region()
	if !ok {
		return report
	}

	for _, name := range st.names {
		w := st.series[name].Window(region)
		if w.Len() > 0 {
			report.Selected[name], _ = ComputeStats(w)
		}
	}

	return report
}
