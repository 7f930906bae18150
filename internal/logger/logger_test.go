package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/djdv/go-bufferpool/internal/logger"
	"github.com/stretchr/testify/require"
)

func TestStandardLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewStandardLogger(&buf, false).WithPrefix("reader: ")
	log.Infof("loaded %d", 3)
	log.Debugf("hidden")
	log.Errorf("read failed: %v", "eof")

	out := buf.String()
	require.Contains(t, out, "INFO")
	require.Contains(t, out, "reader: loaded 3")
	require.Contains(t, out, "ERROR")
	require.NotContains(t, out, "hidden")
}

func TestVerboseLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.NewStandardLogger(&buf, true).Debugf("miss %s", "1/2")
	require.Contains(t, buf.String(), "miss 1/2")
}

func TestBufferLogger(t *testing.T) {
	log := logger.NewBufferLogger()
	prefixed := log.WithPrefix("writer: ")
	prefixed.Warnf("slow")
	prefixed.Debugf("dropped")
	require.True(t, log.Contains("WARN:  writer: slow"))
	require.False(t, log.Contains("dropped"))
	require.Equal(t, 1, strings.Count(log.String(), "\n"))
}

type recorder struct{ lines []string }

func (r *recorder) Logf(format string, v ...interface{}) {
	r.lines = append(r.lines, format)
}

func TestLogfLogger(t *testing.T) {
	rec := &recorder{}
	logger.NewLogfLogger(rec).WithPrefix("p: ").Errorf("x")
	require.Equal(t, []string{"ERROR: p: x"}, rec.lines)
	logger.NopLogger.Errorf("ignored")
}
