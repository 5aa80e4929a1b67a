package smokerlog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type LogEntry struct {
	Time    time.Time
	Level   logrus.Level
	Message string
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s - %s", strings.ToUpper(e.Level.String()), e.Time.Format(TimeLayout), e.Message)
}

// LogBuffer is a logrus hook that remembers the most recent entries so the
// console can replay them without reading the log file back.
type LogBuffer struct {
	mu   sync.Mutex
	ring *Ring[LogEntry]
}

func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{ring: NewRing[LogEntry](capacity)}
}

func (b *LogBuffer) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (b *LogBuffer) Fire(e *logrus.Entry) error {
	msg := e.Message
	if len(e.Data) > 0 {
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString(msg)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, e.Data[k])
		}
		msg = sb.String()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring.Push(LogEntry{Time: e.Time, Level: e.Level, Message: msg})
	return nil
}

// Entries returns buffered entries at or above the given severity, oldest
// first. logrus orders levels from panic (0) to trace (6).
func (b *LogBuffer) Entries(atLeast logrus.Level) []LogEntry {
	b.mu.Lock()
	all := b.ring.ReadAllOrdered()
	b.mu.Unlock()

	return Filter(all, func(e LogEntry) bool {
		return e.Level <= atLeast
	})
}

func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring.Clear()
}
