package utils

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantDebug bool
	}{
		{"debug config logs debug entries", true, true},
		{"production config starts at info", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.debug)
			if err != nil {
				t.Fatalf("NewLogger(%v): %v", tt.debug, err)
			}
			defer func() { _ = logger.Sync() }()

			if got := logger.Core().Enabled(zap.DebugLevel); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if !logger.Core().Enabled(zap.InfoLevel) {
				t.Error("info level should always be enabled")
			}
		})
	}
}
