// Package remote defines the authoritative data source a manager syncs
// against, plus an HTTP implementation for the syncache demo server.
package remote

import (
	"context"

	"github.com/roach88/syncache/internal/record"
)

// DataSource is the remote side of one cached collection. Implementations
// own timeouts and retries; callers treat every error as final.
type DataSource interface {
	FetchAll(ctx context.Context) ([]record.Record, error)
	Create(ctx context.Context, input record.Record) (record.Record, error)
	Update(ctx context.Context, id string, partial record.Record) (record.Record, error)
	Delete(ctx context.Context, id string) error
}
