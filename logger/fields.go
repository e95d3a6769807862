package logger

import "go.uber.org/zap"

// Standard field names for consistent structured logging across the LB.
const (
	FieldComponent = "component"
	FieldEndpoint  = "endpoint"
	FieldAddress   = "address"
	FieldPort      = "port"
	FieldMode      = "mode"
	FieldClient    = "client"
	FieldServer    = "server"
	FieldDurationMS = "duration_ms"
	FieldError     = "error"
	FieldCount     = "count"
	FieldWeight    = "weight"
	FieldRTTMS     = "rtt_ms"
	FieldHealth    = "health_score"
	FieldVerb      = "verb"
)

// ComponentLogger returns a named logger for a specific component — the
// preferred way to get a logger for constructor injection.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
