package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStderr routes the stderr sink into a buffer for the duration of the test.
func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := RedirectStderr(&buf)
	t.Cleanup(func() { RedirectStderr(prev) })
	return &buf
}

func resetConfig(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { SetConfig(Config{File: FileSinkConfig{Disabled: true}}) })
}

func TestNewLoggerCachesPerComponent(t *testing.T) {
	resetConfig(t)
	SetConfig(Config{File: FileSinkConfig{Disabled: true}})

	a := NewLogger("store")
	b := NewLogger("store")
	c := NewLogger("relay")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "store", a.Data["component"])
	assert.Equal(t, "relay", c.Data["component"])
}

func TestSetConfigReconfiguresExistingLoggers(t *testing.T) {
	resetConfig(t)
	t.Setenv("CHORDSYNC_LOG_LEVEL", "")
	buf := captureStderr(t)

	SetConfig(Config{File: FileSinkConfig{Disabled: true}})
	logger := NewLogger("reconfigure-test")
	assert.Equal(t, logrus.InfoLevel, logger.Logger.GetLevel())

	SetConfig(Config{
		Level:  "debug",
		File:   FileSinkConfig{Disabled: true},
		Format: FormatConfig{StructuredToStderr: "always", DisableTimestamp: true},
	})
	assert.Equal(t, logrus.DebugLevel, logger.Logger.GetLevel())

	logger.Debug("visible now")
	assert.Contains(t, buf.String(), "[DEBUG] [reconfigure-test] visible now")
}

func TestLevelFromEnvironmentWins(t *testing.T) {
	resetConfig(t)
	t.Setenv("CHORDSYNC_LOG_LEVEL", "error")

	SetConfig(Config{Level: "debug", File: FileSinkConfig{Disabled: true}})
	logger := NewLogger("env-level-test")
	assert.Equal(t, logrus.ErrorLevel, logger.Logger.GetLevel())
}

func TestStructuredToStderrNever(t *testing.T) {
	resetConfig(t)
	buf := captureStderr(t)

	SetConfig(Config{
		Level:  "debug",
		File:   FileSinkConfig{Disabled: true},
		Format: FormatConfig{StructuredToStderr: "never"},
	})
	NewLogger("quiet-test").Info("hidden")
	assert.Empty(t, buf.String())
}

func TestFileSink(t *testing.T) {
	resetConfig(t)
	captureStderr(t)
	path := filepath.Join(t.TempDir(), "logs", "client.log")

	SetConfig(Config{
		File:   FileSinkConfig{Path: path, Format: "json"},
		Format: FormatConfig{StructuredToStderr: "never"},
	})
	assert.Equal(t, path, LogFilePath())

	NewLogger("file-test").WithField("run_id", "r-1").Info("run submitted")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "run submitted", line["msg"])
	assert.Equal(t, "r-1", line["run_id"])
	assert.Equal(t, "file-test", line["component"])
}

func TestLogFilePathDefaults(t *testing.T) {
	resetConfig(t)
	home := t.TempDir()
	t.Setenv("CHORDSYNC_HOME", home)

	SetConfig(Config{Format: FormatConfig{StructuredToStderr: "never"}})
	want := filepath.Join(home, "state", "logs", "chordsync-"+time.Now().Format("2006-01-02")+".log")
	assert.Equal(t, want, LogFilePath())

	SetConfig(Config{File: FileSinkConfig{Disabled: true}})
	assert.Empty(t, LogFilePath())
}

func TestStderrSinkWritesWholeEntries(t *testing.T) {
	resetConfig(t)
	t.Setenv("CHORDSYNC_LOG_LEVEL", "")
	buf := captureStderr(t)
	SetConfig(Config{
		File:   FileSinkConfig{Disabled: true},
		Format: FormatConfig{Preset: "json", StructuredToStderr: "always"},
	})

	loggers := []*logrus.Entry{NewLogger("monitor"), NewLogger("relay"), NewLogger("action")}
	var wg sync.WaitGroup
	for _, logger := range loggers {
		wg.Add(1)
		go func(logger *logrus.Entry) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				logger.WithField("i", i).Info(strings.Repeat("x", 256))
			}
		}(logger)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 150)
	for _, line := range lines {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "interleaved line %q", line)
	}

	RedirectStderr(nil)
	loggers[0].Info("dropped")
	assert.Equal(t, 150, strings.Count(buf.String(), "\n"))
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    string
		notWant []string
	}{
		{
			name:   "component and sorted fields",
			config: FormatConfig{DisableTimestamp: true},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "fetched",
				Data: logrus.Fields{
					"component": "store",
					"slice":     "projects",
					"count":     3,
				},
			},
			want: "[INFO] [store] fetched count=3 slice=projects\n",
		},
		{
			name:   "warning is shortened",
			config: FormatConfig{DisableTimestamp: true, DisableComponent: true},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "slow",
				Data:    logrus.Fields{"component": "relay"},
			},
			want:    "[WARN] slow\n",
			notWant: []string{"relay"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &TextFormatter{Config: tt.config}
			out, err := f.Format(tt.entry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
			for _, s := range tt.notWant {
				assert.False(t, strings.Contains(string(out), s), "unexpected %q in %q", s, out)
			}
		})
	}
}

func TestTextFormatterTimestamp(t *testing.T) {
	f := &TextFormatter{}
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	out, err := f.Format(&logrus.Entry{Time: ts, Level: logrus.ErrorLevel, Message: "boom", Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04 05:06:07 [ERROR] boom\n", string(out))
}
