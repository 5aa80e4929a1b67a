package smokerlog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// A DataSource produces at most one Reading per call.
//
// Fetch never returns an error: a timeout, transport failure or unparsable
// document is logged by the source and reported as "no data" (false). The
// caller simply tries again on its next tick.
type DataSource interface {
	Fetch(context.Context) (Reading, bool)
	Info() SourceInfo
	String() string
}

// Returned from a row extractor when the row does not have the expected
// shape. The row is dropped and the parse continues.
var errSkipRow = errors.New("skip row")

// StaticSource always reports the same two sensors. Used for --debug runs.
type StaticSource struct {
	Now func() time.Time
}

func (s *StaticSource) Fetch(ctx context.Context) (Reading, bool) {
	return NewReading(now(s.Now), []SensorValue{
		{Name: "sens1", Value: 80},
		{Name: "sens2", Value: 87},
	}), true
}

func (s *StaticSource) Info() SourceInfo {
	return SourceInfo{TempUnits: "F"}
}

func (s *StaticSource) String() string {
	return "Static debug source"
}

// IntermittentSource produces ramping values and drops every third call,
// which exercises the "no data this tick" path.
type IntermittentSource struct {
	Now func() time.Time

	iter int
}

func (s *IntermittentSource) Fetch(ctx context.Context) (Reading, bool) {
	s.iter++
	if s.iter%3 == 0 {
		return Reading{}, false
	}

	return NewReading(now(s.Now), []SensorValue{
		{Name: "sens1", Value: 30 + float64(s.iter)*2},
		{Name: "sens2", Value: 40 + float64(s.iter)*1.1},
	}), true
}

func (s *IntermittentSource) Info() SourceInfo {
	return SourceInfo{TempUnits: "F"}
}

func (s *IntermittentSource) String() string {
	return fmt.Sprintf("Intermittent debug source (call %d)", s.iter)
}

func now(f func() time.Time) time.Time {
	if f == nil {
		return time.Now()
	}
	return f()
}
