package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger tagged with the service name. When debug is true, uses
// development config (human-readable, debug level); otherwise production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	opts := []zap.Option{zap.Fields(zap.String("service", "kaiwa"))}
	if debug {
		return zap.NewDevelopment(opts...)
	}
	return zap.NewProduction(opts...)
}
