// Package scheduler runs the background outbound send workers
package scheduler

import (
	"io"
	"log"
	"os"

	"github.com/amirphl/Yamata-WABA/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a logger writing to stdout, a rotated file, or both.
// The returned closer releases the file and is never nil.
func NewLogger(cfg config.LoggingConfig, prefix string) (*log.Logger, io.Closer) {
	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)

	if cfg.Output != "file" {
		writers = append(writers, os.Stdout)
	}
	if (cfg.Output == "file" || cfg.Output == "both") && cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writers = append(writers, lj)
		closer = lj
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	return log.New(io.MultiWriter(writers...), prefix, log.LstdFlags|log.Lmicroseconds|log.LUTC), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
