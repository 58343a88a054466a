package logger

import (
	"encoding/json"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// fileSink writes JSON entries to a size-rotated log file.
type fileSink struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

func newFileSink(config *Config) *fileSink {
	return &fileSink{
		writer: &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSizeMB,
			MaxBackups: config.File.MaxBackups,
			MaxAge:     config.File.MaxAgeDays,
			Compress:   config.File.Compress,
		},
	}
}

func (f *fileSink) write(entry *Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	// Rotation or disk errors must never take the caller down.
	_, _ = f.writer.Write(data)
}

func (f *fileSink) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writer.Close()
}
