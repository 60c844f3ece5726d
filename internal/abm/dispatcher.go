// Package abm is the generic create/read/update/delete dispatch surface:
// one entry point taking a table name, a method name, an encoded predicate
// and a JSON body, for any table of the configured schema.
package abm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/abmgate/abmgate/internal/predicate"
	"github.com/abmgate/abmgate/internal/query"
	"github.com/abmgate/abmgate/internal/record"
	"github.com/abmgate/abmgate/internal/schema"
	"github.com/abmgate/abmgate/internal/store"
)

// TablesSentinel is the table name that makes list return the table
// inventory. It wins over a real table of the same name.
const TablesSentinel = "tables"

// Catalog is the schema metadata the dispatcher needs.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	Structure(ctx context.Context, table string) ([]schema.Column, error)
	ColumnNames(ctx context.Context, table string) ([]string, error)
}

// Request is one inbound operation. Where is the encoded predicate as it
// arrived; Body is the raw JSON body, possibly empty.
type Request struct {
	Table  string
	Method string
	Where  string
	Body   json.RawMessage
}

// Result holds whichever payload the method produces.
type Result struct {
	Method   Method
	Rows     []record.Fields
	Tables   []string
	Columns  []schema.Column
	Affected int64
}

// Ack is the payload of write operations.
type Ack struct {
	Affected int64 `json:"affected"`
}

// Data returns the response payload for the method: an Ack for writes, rows
// or table names for list and find, descriptors for structure.
func (r *Result) Data() any {
	switch r.Method {
	case MethodCreate, MethodUpdate, MethodDelete:
		return Ack{Affected: r.Affected}
	case MethodStructure:
		if r.Columns == nil {
			return []schema.Column{}
		}
		return r.Columns
	case MethodList, MethodFind:
		if r.Tables != nil {
			return r.Tables
		}
		if r.Rows == nil {
			return []record.Fields{}
		}
		return r.Rows
	}
	return nil
}

// Dispatcher validates requests and runs them against the store.
type Dispatcher struct {
	store   store.Store
	catalog Catalog
	builder query.Builder
	logger  *slog.Logger
	strict  bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCatalogCheck makes every operation confirm, with one extra catalog
// round-trip, that the table and each named column exist.
func WithCatalogCheck(enabled bool) Option {
	return func(d *Dispatcher) {
		d.strict = enabled
	}
}

// New creates a dispatcher for tables of schemaName.
func New(st store.Store, catalog Catalog, schemaName string, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   st,
		catalog: catalog,
		builder: query.New(schemaName),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Operate runs one request. Every validation failure is reported before the
// store is touched.
func (d *Dispatcher) Operate(ctx context.Context, req Request) (*Result, error) {
	if req.Table == "" {
		return nil, fmt.Errorf("%w: table", ErrMissingRequiredField)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("%w: method", ErrMissingRequiredField)
	}
	method, err := ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}

	if method == MethodList && req.Table == TablesSentinel {
		tables, err := d.catalog.ListTables(ctx)
		if err != nil {
			return nil, &StoreError{Op: "list tables", Err: err}
		}
		return &Result{Method: method, Tables: tables}, nil
	}

	if err := schema.CheckIdentifier("table", req.Table); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentifierRejected, err)
	}

	where, ok := predicate.Decode(req.Where)
	if !ok && req.Where != "" {
		d.logger.Debug("where payload did not decode",
			slog.String("table", req.Table),
			slog.String("method", method.String()),
		)
	}
	if method.needsPredicate() && len(where) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrMissingPredicate, method)
	}

	if method == MethodStructure {
		return d.structure(ctx, req.Table)
	}

	stmt, columns, err := d.build(method, req.Table, where, req.Body)
	if err != nil {
		return nil, err
	}
	if err := d.checkCatalog(ctx, req.Table, columns); err != nil {
		return nil, err
	}

	d.logger.Debug("executing operation",
		slog.String("table", req.Table),
		slog.String("method", method.String()),
		slog.String("sql", stmt.SQL),
		slog.Int("args", len(stmt.Args)),
	)

	result := &Result{Method: method}
	switch method {
	case MethodCreate, MethodUpdate, MethodDelete:
		result.Affected, err = d.store.Exec(ctx, stmt.SQL, stmt.Args...)
	default:
		result.Rows, err = d.store.Query(ctx, stmt.SQL, stmt.Args...)
	}
	if err != nil {
		return nil, &StoreError{Op: method.String() + " " + req.Table, Err: err}
	}
	return result, nil
}

func (d *Dispatcher) structure(ctx context.Context, table string) (*Result, error) {
	if err := d.checkCatalog(ctx, table, nil); err != nil {
		return nil, err
	}
	cols, err := d.catalog.Structure(ctx, table)
	if err != nil {
		return nil, &StoreError{Op: "structure " + table, Err: err}
	}
	return &Result{Method: MethodStructure, Columns: cols}, nil
}

// build turns a validated request into a statement and reports the column
// names it references.
func (d *Dispatcher) build(method Method, table string, where record.Fields, body json.RawMessage) (query.Statement, []string, error) {
	var (
		stmt    query.Statement
		columns []string
		err     error
	)
	switch method {
	case MethodCreate:
		rows, perr := record.ParseRows(body)
		if perr != nil {
			return stmt, nil, fmt.Errorf("%w: %w", ErrMalformedBatch, perr)
		}
		stmt, err = d.builder.Insert(table, rows)
		if len(rows) > 0 {
			columns = rows[0].Names()
		}
	case MethodUpdate:
		var set record.Fields
		if perr := set.UnmarshalJSON(body); perr != nil {
			return stmt, nil, fmt.Errorf("%w: update expects a JSON object of columns to set: %w", ErrMalformedBody, perr)
		}
		stmt, err = d.builder.Update(table, set, where)
		columns = append(set.Names(), where.Names()...)
	case MethodDelete:
		stmt, err = d.builder.Delete(table, where)
		columns = where.Names()
	case MethodFind:
		stmt, err = d.builder.Find(table, where)
		columns = where.Names()
	case MethodList:
		opts, perr := parseListOptions(body)
		if perr != nil {
			return stmt, nil, perr
		}
		stmt, err = d.builder.Select(table, opts.cols, where, opts.limit)
		columns = append(where.Names(), opts.cols...)
	default:
		return stmt, nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	if err != nil {
		return stmt, nil, classify(err)
	}
	return stmt, columns, nil
}

// classify maps builder errors onto the dispatcher's taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, schema.ErrInvalidIdentifier):
		return fmt.Errorf("%w: %w", ErrIdentifierRejected, err)
	case errors.Is(err, query.ErrEmptyPredicate):
		return fmt.Errorf("%w: %w", ErrMissingPredicate, err)
	case errors.Is(err, query.ErrEmptyBatch), errors.Is(err, query.ErrEmptyRow), errors.Is(err, query.ErrMixedBatch):
		return fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}
}

// checkCatalog confirms table and columns exist when the catalog check is
// enabled. A table with no columns is taken as missing.
func (d *Dispatcher) checkCatalog(ctx context.Context, table string, columns []string) error {
	if !d.strict {
		return nil
	}
	known, err := d.catalog.ColumnNames(ctx, table)
	if err != nil {
		return &StoreError{Op: "catalog check " + table, Err: err}
	}
	if len(known) == 0 {
		return fmt.Errorf("%w: table %q not found", ErrIdentifierRejected, table)
	}
	for _, col := range columns {
		if col == "*" {
			continue
		}
		if !slices.Contains(known, col) {
			return fmt.Errorf("%w: column %q not found in %q", ErrIdentifierRejected, col, table)
		}
	}
	return nil
}

type listOptions struct {
	cols  []string
	limit int
}

// parseListOptions reads {cols, limit} from a list body. cols may be an
// array of names or one comma-separated string; both forms may be absent.
func parseListOptions(body json.RawMessage) (listOptions, error) {
	var opts listOptions
	body = bytes.TrimSpace(body)
	if len(body) == 0 || string(body) == "null" {
		return opts, nil
	}

	var raw struct {
		Cols  json.RawMessage `json:"cols"`
		Limit *int            `json:"limit"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return opts, fmt.Errorf("%w: list expects {cols, limit}: %w", ErrMalformedBody, err)
	}
	if raw.Limit != nil {
		opts.limit = *raw.Limit
	}

	var names []string
	cols := bytes.TrimSpace(raw.Cols)
	switch {
	case len(cols) == 0 || string(cols) == "null":
	case cols[0] == '"':
		var s string
		if err := json.Unmarshal(cols, &s); err != nil {
			return opts, fmt.Errorf("%w: cols: %w", ErrMalformedBody, err)
		}
		names = []string{s}
	default:
		if err := json.Unmarshal(cols, &names); err != nil {
			return opts, fmt.Errorf("%w: cols must be a string or an array of strings: %w", ErrMalformedBody, err)
		}
	}

	for _, entry := range names {
		for _, name := range strings.Split(entry, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.cols = append(opts.cols, name)
			}
		}
	}
	return opts, nil
}
