package engine

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sirzenith/galleryvault/galleryevent"
)

const logFileName = "galleryvault.log"

// busWriter tees every log line charmbracelet/log formats into a LogEvent
// on the bus, so a GUI log pane can render the same stream that lands in
// the optional file sink (spec §6 logEvent).
type busWriter struct {
	bus *galleryevent.Bus
}

func (w *busWriter) Write(p []byte) (int, error) {
	w.bus.PublishLog(galleryevent.LogEvent{
		Timestamp: time.Now(),
		Level:     "info",
		Target:    "engine",
		Fields:    map[string]any{"message": string(p)},
	})
	return len(p), nil
}

// setupLogging builds the package-level charmbracelet/log.Logger used by
// every component: always to stderr and the bus, additionally to
// {appDataDir}/logs/galleryvault.log when enableFileLogger is set
// (spec §4.8 "Logging").
func setupLogging(appDataDir string, enableFileLogger bool, bus *galleryevent.Bus) (*log.Logger, func() error, error) {
	writers := []io.Writer{os.Stderr, &busWriter{bus: bus}}

	closeFn := func() error { return nil }

	if enableFileLogger {
		logDir := filepath.Join(appDataDir, "logs")
		if err := os.MkdirAll(logDir, 0o777); err != nil {
			return nil, closeFn, err
		}

		logFile, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, closeFn, err
		}

		writers = append(writers, logFile)
		closeFn = logFile.Close
	}

	logger := log.NewWithOptions(io.MultiWriter(writers...), log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})

	return logger, closeFn, nil
}

// logsDirSize sums the byte size of every file under {appDataDir}/logs, for
// getLogsDirSize (spec §6).
func logsDirSize(appDataDir string) (int64, error) {
	logDir := filepath.Join(appDataDir, "logs")

	var total int64
	err := filepath.Walk(logDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	return total, nil
}
