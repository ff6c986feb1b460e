package logger

import (
	"github.com/rs/zerolog"
)

// Logger wraps the configured zerolog instance
type Logger struct {
	zerolog zerolog.Logger
}

// GetZerolog returns the underlying zerolog instance
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zerolog
}
