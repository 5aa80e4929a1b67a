package smokerlog

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)

	buf := NewLogBuffer(3)
	logger.AddHook(buf)

	logger.Debug("polling")
	logger.WithField("tag", "Poller").Warn("flush failed")
	logger.WithFields(logrus.Fields{"b": 2, "a": 1}).Error("cannot save snapshot")
	logger.Info("plot started")

	all := buf.Entries(logrus.TraceLevel)
	require.Len(t, all, 3, "oldest entry should be evicted")
	assert.Equal(t, "flush failed tag=Poller", all[0].Message)
	assert.Equal(t, "cannot save snapshot a=1 b=2", all[1].Message)

	warnings := buf.Entries(logrus.WarnLevel)
	require.Len(t, warnings, 2)
	assert.Equal(t, logrus.WarnLevel, warnings[0].Level)
	assert.Equal(t, logrus.ErrorLevel, warnings[1].Level)

	assert.True(t, strings.HasPrefix(warnings[1].String(), "[ERROR] "))
	assert.True(t, strings.HasSuffix(warnings[1].String(), " - cannot save snapshot a=1 b=2"))
}

func TestLogBufferClear(t *testing.T) {
	buf := NewLogBuffer(2)
	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, buf.Fire(&logrus.Entry{Level: logrus.WarnLevel, Message: msg}))
	}
	require.Len(t, buf.Entries(logrus.TraceLevel), 2)

	buf.Clear()
	assert.Empty(t, buf.Entries(logrus.TraceLevel))

	require.NoError(t, buf.Fire(&logrus.Entry{Level: logrus.InfoLevel, Message: "four"}))
	entries := buf.Entries(logrus.TraceLevel)
	require.Len(t, entries, 1)
	assert.Equal(t, "four", entries[0].Message)
}
