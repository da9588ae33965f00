package logger

import (
	"log"
	"os"
)

// Logger is an alias used by components for dependency injection.
type Logger = log.Logger

// New returns a logger with a consistent component prefix.
func New(component string) *Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
}
