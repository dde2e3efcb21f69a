package logger

import (
	"fmt"
	"strings"

	"quantSim/internal/ports"
)

// New returns the logger for format: "json" builds a zap logger, anything else the std logger.
func New(format string, level LogLevel) (ports.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		z, err := NewZapLogger(level)
		if err != nil {
			return nil, fmt.Errorf("failed to build zap logger: %w", err)
		}
		return z, nil
	default:
		return NewStdLogger(level), nil
	}
}
