// Package store is the single execute primitive the engine talks to.
package store

import (
	"context"

	"github.com/abmgate/abmgate/internal/record"
)

// Store runs one parameterized statement per call. Implementations must be
// safe for concurrent use.
type Store interface {
	// Query runs a row-returning statement.
	Query(ctx context.Context, sql string, args ...any) ([]record.Fields, error)
	// Exec runs a statement and reports the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}
