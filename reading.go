package smokerlog

import (
	"time"

	"github.com/sirupsen/logrus"
)

// The on-disk timestamp layout used by the per-sensor and event logs.
const TimeLayout = "2006-01-02 15:04:05"

// The short layout used when displaying plot domains.
const ClockLayout = "15:04:05"

type SensorValue struct {
	Name  string
	Value float64
}

// A Reading is one timestamped batch of sensor temperatures from a single
// poll. Sensor names are unique within a reading and keep the order in which
// the appliance reported them. Readings are not modified after creation.
type Reading struct {
	Time  time.Time
	Temps []SensorValue
}

// NewReading builds a reading stamped with t truncated to whole seconds. A
// sensor name that appears more than once keeps its first value.
func NewReading(t time.Time, temps []SensorValue) Reading {
	seen := make(map[string]struct{}, len(temps))
	deduped := make([]SensorValue, 0, len(temps))
	for _, sv := range temps {
		if _, ok := seen[sv.Name]; ok {
			logrus.WithFields(logrus.Fields{"tag": "Reading", "sensor": sv.Name}).Warn("duplicate sensor name in one poll, keeping the first value")
			continue
		}
		seen[sv.Name] = struct{}{}
		deduped = append(deduped, sv)
	}

	return Reading{
		Time:  t.Truncate(time.Second),
		Temps: deduped,
	}
}

func (r Reading) Get(name string) (float64, bool) {
	for _, sv := range r.Temps {
		if sv.Name == name {
			return sv.Value, true
		}
	}
	return 0, false
}

func (r Reading) Names() []string {
	names := make([]string, len(r.Temps))
	for i, sv := range r.Temps {
		names[i] = sv.Name
	}
	return names
}

// Unix timestamp in seconds as used by the series and the plot.
func (r Reading) X() float64 {
	return float64(r.Time.Unix())
}

// SourceInfo is what a data source declares about itself once.
type SourceInfo struct {
	// Native temperature unit of every value the source produces, e.g. "F".
	TempUnits string
	// Firmware version, when the source can tell.
	Version string
}
