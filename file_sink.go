package smokerlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const eventLogName = "eventLog"

// FileSink appends readings and events to flat text files named
// <prefix>-<sensor>.txt and <prefix>-eventLog.txt. There is no rotation or
// indexing.
type FileSink struct {
	prefix string
	logger logrus.FieldLogger
}

func NewFileSink(prefix string) *FileSink {
	return &FileSink{
		prefix: prefix,
		logger: logrus.WithField("tag", "FileSink"),
	}
}

func (f *FileSink) Prefix() string {
	return f.prefix
}

func (f *FileSink) SetPrefix(prefix string) {
	f.prefix = prefix
}

// Filename returns the log file for a sensor. Path separators in the sensor
// name are replaced so every file lands next to the prefix.
func (f *FileSink) Filename(sensor string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == filepath.Separator {
			return '_'
		}
		return r
	}, sensor)
	return fmt.Sprintf("%s-%s.txt", f.prefix, name)
}

// WriteBatch appends one "timestamp value" line per sensor of each reading,
// in order. Each file is opened once for the batch and closed at the end.
//
// It returns how many leading readings were written completely. On error the
// reading at that index may be partially written; it and everything after it
// must be retried by the caller. If the final flush or close fails it returns
// 0 even though some files may already hold their lines, so a retry can
// append those lines twice: a duplicated line is preferred over a lost one.
func (f *FileSink) WriteBatch(readings []Reading) (int, error) {
	files := make(map[string]*os.File)
	writers := make(map[string]*bufio.Writer)

	closeAll := func() error {
		var firstErr error
		for name, w := range writers {
			if err := w.Flush(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("flush %s: %w", name, err)
			}
		}
		for name, fh := range files {
			if err := fh.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s: %w", name, err)
			}
		}
		return firstErr
	}

	written := 0
	for _, r := range readings {
		stamp := r.Time.Format(TimeLayout)
		for _, sv := range r.Temps {
			name := f.Filename(sv.Name)
			w, ok := writers[name]
			if !ok {
				fh, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					closeAll()
					return written, fmt.Errorf("open %s: %w", name, err)
				}
				files[name] = fh
				w = bufio.NewWriter(fh)
				writers[name] = w
			}

			_, err := fmt.Fprintf(w, "%s %s\n", stamp, strconv.FormatFloat(sv.Value, 'g', -1, 64))
			if err != nil {
				closeAll()
				return written, fmt.Errorf("write %s: %w", name, err)
			}
		}
		written++
	}

	// Buffered lines only reach the disk here, so a failure means none of
	// the batch is known to be durable.
	if err := closeAll(); err != nil {
		return 0, err
	}

	f.logger.WithField("readings", written).Debug("wrote batch")
	return written, nil
}

// LogEvent appends "timestamp 'text'" to the event log.
func (f *FileSink) LogEvent(text string, t time.Time) error {
	name := f.Filename(eventLogName)
	fh, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	_, err = fmt.Fprintf(fh, "%s '%s'\n", t.Format(TimeLayout), text)
	if err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}

	return fh.Close()
}
