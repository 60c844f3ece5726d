package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/abmgate/abmgate/internal/record"
	"github.com/abmgate/abmgate/internal/store"
	"golang.org/x/sync/errgroup"
)

// primaryKeyMarker is the column_key value queryStructure emits for
// primary-key columns.
const primaryKeyMarker = "PRI"

const defaultFKWorkers = 4

// Introspector reads catalog metadata for one schema. Nothing is cached:
// every call reflects the catalog as of that call.
type Introspector struct {
	store      store.Store
	schema     string
	fkRowLimit int
	fkWorkers  int
	logger     *slog.Logger
}

// Option configures an Introspector.
type Option func(*Introspector)

// WithForeignKeyRowLimit caps the referenced rows fetched per foreign key.
// Zero means all rows.
func WithForeignKeyRowLimit(n int) Option {
	return func(i *Introspector) {
		i.fkRowLimit = n
	}
}

// WithForeignKeyWorkers bounds how many referenced tables are read at once.
func WithForeignKeyWorkers(n int) Option {
	return func(i *Introspector) {
		if n > 0 {
			i.fkWorkers = n
		}
	}
}

// NewIntrospector creates a new schema introspector.
func NewIntrospector(st store.Store, schemaName string, logger *slog.Logger, opts ...Option) *Introspector {
	i := &Introspector{
		store:     st,
		schema:    schemaName,
		fkWorkers: defaultFKWorkers,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Schema returns the catalog schema the introspector reads.
func (i *Introspector) Schema() string {
	return i.schema
}

// ListTables returns every relation (tables and views) in the schema.
func (i *Introspector) ListTables(ctx context.Context) ([]string, error) {
	rows, err := i.store.Query(ctx, queryListTables, i.schema)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		name := text(row, "table_name")
		if name == "" {
			continue
		}
		tables = append(tables, name)
	}
	return tables, nil
}

// ColumnNames returns the table's columns in declaration order.
func (i *Introspector) ColumnNames(ctx context.Context, table string) ([]string, error) {
	byTable, err := i.columnsOf(ctx, []string{table})
	if err != nil {
		return nil, err
	}
	return byTable[table], nil
}

// Structure returns one descriptor per column of table, in declaration
// order. Foreign-key columns carry a snapshot of the referenced rows; a
// snapshot that cannot be built is left nil and does not fail the call.
func (i *Introspector) Structure(ctx context.Context, table string) ([]Column, error) {
	rows, err := i.store.Query(ctx, queryStructure, i.schema, table)
	if err != nil {
		return nil, fmt.Errorf("querying structure of %q: %w", table, err)
	}

	cols := make([]Column, 0, len(rows))
	var fkIdx []int
	for _, row := range rows {
		col := Column{
			Name:         text(row, "column_name"),
			DataType:     text(row, "data_type"),
			IsNullable:   truth(row, "is_nullable"),
			IsPrimaryKey: text(row, "column_key") == primaryKeyMarker,
		}
		if def, ok := optionalText(row, "column_default"); ok {
			col.Default = &def
		}
		refTable, refColumn := text(row, "referenced_table"), text(row, "referenced_column")
		if refTable != "" && refColumn != "" {
			col.IsForeignKey = true
			col.ForeignKey = &ForeignKey{ReferencedTable: refTable, ReferencedColumn: refColumn}
			fkIdx = append(fkIdx, len(cols))
		}
		cols = append(cols, col)
	}

	if len(fkIdx) > 0 {
		i.resolveForeignKeys(ctx, table, cols, fkIdx)
	}
	return cols, nil
}

// resolveForeignKeys fills ForeignKey.Rows for cols[fkIdx...]. The
// referenced tables' columns come from one batched catalog read; the row
// snapshots are fetched concurrently.
func (i *Introspector) resolveForeignKeys(ctx context.Context, table string, cols []Column, fkIdx []int) {
	seen := make(map[string]bool, len(fkIdx))
	targets := make([]string, 0, len(fkIdx))
	for _, idx := range fkIdx {
		ref := cols[idx].ForeignKey.ReferencedTable
		if !seen[ref] {
			seen[ref] = true
			targets = append(targets, ref)
		}
	}

	refCols, err := i.columnsOf(ctx, targets)
	if err != nil {
		i.logger.Warn("foreign key resolution skipped",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return
	}

	var g errgroup.Group
	g.SetLimit(i.fkWorkers)
	for _, idx := range fkIdx {
		fk := cols[idx].ForeignKey
		column := cols[idx].Name
		g.Go(func() error {
			rows, err := i.referenceRows(ctx, fk.ReferencedTable, refCols[fk.ReferencedTable], nil)
			if err != nil {
				i.logger.Warn("foreign key rows unavailable",
					slog.String("table", table),
					slog.String("column", column),
					slog.String("referenced_table", fk.ReferencedTable),
					slog.String("error", err.Error()),
				)
				return nil
			}
			fk.Rows = rows
			return nil
		})
	}
	_ = g.Wait()
}

// ReferencedRows resolves the foreign key on table.column restricted to the
// referenced row whose first column equals key. It returns nil when the
// column is not a foreign key or the referenced table has fewer than two
// columns.
func (i *Introspector) ReferencedRows(ctx context.Context, table, column string, key record.Value) (*ForeignKey, error) {
	rows, err := i.store.Query(ctx, queryForeignKeyTarget, i.schema, table, column)
	if err != nil {
		return nil, fmt.Errorf("querying foreign key of %s.%s: %w", table, column, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	fk := &ForeignKey{
		ReferencedTable:  text(rows[0], "referenced_table"),
		ReferencedColumn: text(rows[0], "referenced_column"),
	}

	refCols, err := i.columnsOf(ctx, []string{fk.ReferencedTable})
	if err != nil {
		return nil, err
	}
	if len(refCols[fk.ReferencedTable]) < 2 {
		return nil, nil
	}

	fk.Rows, err = i.referenceRows(ctx, fk.ReferencedTable, refCols[fk.ReferencedTable], &key)
	if err != nil {
		return nil, err
	}
	return fk, nil
}

// referenceRows selects the first two columns of refTable, aliased pk and
// col2. A nil slice with nil error means the table has fewer than two
// columns.
func (i *Introspector) referenceRows(ctx context.Context, refTable string, refCols []string, key *record.Value) ([]ReferenceRow, error) {
	if len(refCols) < 2 {
		return nil, nil
	}
	idCol, labelCol := refCols[0], refCols[1]
	for _, name := range []string{refTable, idCol, labelCol} {
		if err := CheckIdentifier("referenced identifier", name); err != nil {
			return nil, err
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(QuoteIdentifier(idCol))
	sb.WriteString(" AS pk, ")
	sb.WriteString(QuoteIdentifier(labelCol))
	sb.WriteString(" AS col2 FROM ")
	sb.WriteString(QualifiedName(i.schema, refTable))

	var args []any
	if key != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(QuoteIdentifier(idCol))
		sb.WriteString(" = $1")
		args = append(args, key.Arg())
	}
	if i.fkRowLimit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(i.fkRowLimit))
	}

	rows, err := i.store.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", refTable, err)
	}

	out := make([]ReferenceRow, 0, len(rows))
	for _, row := range rows {
		pk, _ := row.Get("pk")
		label, _ := row.Get("col2")
		out = append(out, ReferenceRow{PK: pk, Col2: label})
	}
	return out, nil
}

// columnsOf returns the ordered column names of each table.
func (i *Introspector) columnsOf(ctx context.Context, tables []string) (map[string][]string, error) {
	rows, err := i.store.Query(ctx, queryColumnsOf, i.schema, tables)
	if err != nil {
		return nil, fmt.Errorf("querying columns of %v: %w", tables, err)
	}

	byTable := make(map[string][]string, len(tables))
	for _, row := range rows {
		table := text(row, "table_name")
		byTable[table] = append(byTable[table], text(row, "column_name"))
	}
	return byTable, nil
}

func text(row record.Fields, name string) string {
	s, _ := optionalText(row, name)
	return s
}

func optionalText(row record.Fields, name string) (string, bool) {
	v, ok := row.Get(name)
	if !ok {
		return "", false
	}
	return v.Text()
}

func truth(row record.Fields, name string) bool {
	v, ok := row.Get(name)
	if !ok {
		return false
	}
	b, _ := v.Truth()
	return b
}
