// Package datasource defines the capability interfaces a datasource needs from
// its host application: logging and metrics. Implementations are injected so
// datasources never depend on a concrete logger or metrics backend.
package datasource

import "context"

// Logger is the subset of the sqlkit logger a datasource uses.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Log(args ...any)
	Logf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
}

// Metrics records datasource level metrics.
type Metrics interface {
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
}
