package common

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls the process wide logger.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	NoTime     bool
	JSON       bool
}

var (
	rootMu sync.Mutex
	root   = logrus.New()
)

// SetupLogging configures the shared logger. Log files are rotated with
// lumberjack and stdout is always kept.
func SetupLogging(c LogConfig) error {
	rootMu.Lock()
	defer rootMu.Unlock()

	lvl := logrus.InfoLevel
	if c.Level != "" {
		l, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		lvl = l
	}
	root.SetLevel(lvl)

	writers := []io.Writer{os.Stdout}
	if c.File != "" {
		if dir := filepath.Dir(c.File); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create log dir %s: %w", dir, err)
			}
		}
		maxSize := c.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 20
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    maxSize,
			MaxBackups: c.MaxBackups,
			Compress:   true,
		})
	}
	root.SetOutput(io.MultiWriter(writers...))

	if c.JSON {
		root.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: c.NoTime,
		})
	} else {
		root.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02 15:04:05",
			DisableTimestamp: c.NoTime,
		})
	}
	return nil
}

// Logger returns a logger tagged with the given component.
func Logger(component string) *logrus.Entry {
	return root.WithField("component", component)
}

// StdLogger adapts the component logger for APIs that want a *log.Logger,
// such as http.Server.ErrorLog. Lines are logged at warn level.
func StdLogger(component string) *stdlog.Logger {
	return stdlog.New(Logger(component).WriterLevel(logrus.WarnLevel), "", 0)
}
