package smokerlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Document served at /stoker.json by Stoker firmware 2.7.x and later.
type stokerDocument struct {
	Stoker struct {
		// Decoded one by one so a bad entry only costs that sensor.
		Sensors []json.RawMessage `json:"sensors"`
	} `json:"stoker"`
}

type stokerJSONSensor struct {
	ID     string   `json:"id"`     // 16 character serial number
	Name   string   `json:"name"`   // user defined
	Alarm  int      `json:"al"`     // 0 none, 1 target, 2 fire hi/low
	Target *float64 `json:"ta"`     // target temperature
	High   *float64 `json:"th"`     // fire high
	Low    *float64 `json:"tl"`     // fire low
	Temp   *float64 `json:"tc"`     // current temperature
	Blower *string  `json:"blower"` // serial of the attached blower, if any
}

// StokerJSONSource reads the JSON interface of newer Stoker firmware.
type StokerJSONSource struct {
	host    string
	url     string
	fetcher *HTTPFetcher
	now     func() time.Time
	logger  logrus.FieldLogger
}

func NewStokerJSONSource(host string, fetcher *HTTPFetcher) *StokerJSONSource {
	return &StokerJSONSource{
		host:    host,
		url:     fmt.Sprintf("http://%s/stoker.json", host),
		fetcher: fetcher,
		now:     time.Now,
		logger:  logrus.WithField("tag", "StokerJSONSource"),
	}
}

func (s *StokerJSONSource) String() string {
	return fmt.Sprintf("Stoker JSON Interface (%s)", s.host)
}

func (s *StokerJSONSource) Info() SourceInfo {
	return SourceInfo{TempUnits: "F", Version: "2.7.x"}
}

func (s *StokerJSONSource) Fetch(ctx context.Context) (Reading, bool) {
	body, err := s.fetcher.Get(ctx, s.url)
	if err != nil {
		logFetchError(s.logger, err)
		return Reading{}, false
	}

	temps, err := ParseStokerJSON(body)
	if err != nil {
		s.logger.WithError(err).Warn("cannot decode status document, will try again later")
		return Reading{}, false
	}

	return NewReading(s.now(), temps), true
}

// ParseStokerJSON returns the current temperature of every sensor entry that
// has an id, a name and a current temperature. Entries missing any of those
// are dropped rather than reported as zero.
func ParseStokerJSON(body []byte) ([]SensorValue, error) {
	var doc stokerDocument
	err := json.Unmarshal(body, &doc)
	if err != nil {
		return nil, err
	}

	temps := make([]SensorValue, 0, len(doc.Stoker.Sensors))
	for i, raw := range doc.Stoker.Sensors {
		logger := logrus.WithFields(logrus.Fields{
			"tag":   "StokerJSONSource",
			"index": i,
		})

		sensor, err := parseStokerJSONSensor(raw)
		if err != nil {
			logger.WithError(err).Debug("ignoring sensor entry")
			continue
		}
		temps = append(temps, sensor)
	}

	return temps, nil
}

func parseStokerJSONSensor(raw json.RawMessage) (SensorValue, error) {
	var sensor stokerJSONSensor
	if err := json.Unmarshal(raw, &sensor); err != nil {
		return SensorValue{}, fmt.Errorf("%w: %v", errSkipRow, err)
	}

	name := strings.TrimSpace(sensor.Name)
	switch {
	case strings.TrimSpace(sensor.ID) == "":
		return SensorValue{}, fmt.Errorf("%w: no id", errSkipRow)
	case name == "":
		return SensorValue{}, fmt.Errorf("%w: no name", errSkipRow)
	case sensor.Temp == nil:
		return SensorValue{}, fmt.Errorf("%w: no current temperature", errSkipRow)
	}
	return SensorValue{Name: name, Value: *sensor.Temp}, nil
}
