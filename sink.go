package corroborate

import (
	"context"

	"github.com/agentstation/corroborate/pkg/records"
)

// RecordSink persists resolved records.
type RecordSink interface {
	// Save stores one record. Errors are logged by the engine and never
	// fail the request.
	Save(ctx context.Context, record *records.ResolvedRecord) error
}

// SinkFunc adapts a function to RecordSink.
type SinkFunc func(ctx context.Context, record *records.ResolvedRecord) error

// Save calls f.
func (f SinkFunc) Save(ctx context.Context, record *records.ResolvedRecord) error {
	return f(ctx, record)
}
