// Package logging configures the process-wide logger: stdout plus a
// size-rotated file sink.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the stdlib logger at stdout and, when path is
// non-empty, a rotating log file.
func Setup(path string) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("logging: cannot create log directory: %v", err)
		return
	}

	fileSink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileSink))
}
