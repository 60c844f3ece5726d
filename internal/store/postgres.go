package store

import (
	"context"
	"fmt"
	"time"

	"github.com/abmgate/abmgate/internal/record"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a pgx connection pool. Every statement runs
// in autocommit mode.
type Postgres struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewPostgres wraps pool. A zero queryTimeout disables the per-call limit.
func NewPostgres(pool *pgxpool.Pool, queryTimeout time.Duration) *Postgres {
	return &Postgres{pool: pool, queryTimeout: queryTimeout}
}

// withTimeout returns a context with the query timeout applied.
// If the parent context already has a shorter deadline, that deadline is preserved.
func (p *Postgres) withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	if deadline, ok := parent.Deadline(); ok && time.Until(deadline) <= p.queryTimeout {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, p.queryTimeout)
}

func (p *Postgres) Query(ctx context.Context, sql string, args ...any) ([]record.Fields, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := make([]record.Fields, 0, 16)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}

		row := make(record.Fields, len(fieldDescs))
		for i, fd := range fieldDescs {
			v, err := toValue(values[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", fd.Name, err)
			}
			row[i] = record.Field{Name: fd.Name, Value: v}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}

func (p *Postgres) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("executing statement: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks that the pool can reach the server.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.pool.Ping(ctx)
}

// toValue normalizes pgx's decoded values. uuid columns decode to a raw
// [16]byte, which would otherwise serialize as a number array.
func toValue(x any) (record.Value, error) {
	if b, ok := x.([16]byte); ok {
		return record.String(uuid.UUID(b).String()), nil
	}
	return record.FromGo(x)
}
