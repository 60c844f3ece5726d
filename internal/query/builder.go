// Package query composes parameterized statements from runtime table,
// column and value data. Values only ever travel as bind parameters;
// identifiers are checked against the allow-list and quoted before they
// reach the SQL text.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/abmgate/abmgate/internal/record"
	"github.com/abmgate/abmgate/internal/schema"
)

var (
	ErrEmptyPredicate = errors.New("predicate is required and cannot be empty")
	ErrEmptySet       = errors.New("at least one column to set is required")
	ErrEmptyBatch     = errors.New("no rows to insert")
	ErrEmptyRow       = errors.New("row has no columns")
	ErrMixedBatch     = errors.New("rows in a batch must share the same columns")
	ErrNegativeLimit  = errors.New("limit cannot be negative")
)

// Statement is SQL text plus its bind parameters, in $n order.
type Statement struct {
	SQL  string
	Args []any
}

// Builder emits statements against tables of one schema. The zero Builder
// leaves table names unqualified.
type Builder struct {
	Schema string
}

// New returns a Builder qualifying tables with schemaName.
func New(schemaName string) Builder {
	return Builder{Schema: schemaName}
}

// Select reads cols (all columns when empty) from table. where may be empty.
// A limit of 0 is unbounded and emits no LIMIT clause, so LIMIT 0 is never
// produced; a negative limit returns ErrNegativeLimit.
func (b Builder) Select(table string, cols []string, where record.Fields, limit int) (Statement, error) {
	if limit < 0 {
		return Statement{}, ErrNegativeLimit
	}
	target, err := b.table(table)
	if err != nil {
		return Statement{}, err
	}
	projection, err := projectionList(cols)
	if err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(projection)
	sb.WriteString(" FROM ")
	sb.WriteString(target)

	var args []any
	if len(where) > 0 {
		clause, whereArgs, err := conjunction(where, 1)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(clause)
		args = whereArgs
	}
	if limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
	}
	return Statement{SQL: sb.String(), Args: args}, nil
}

// Find reads every column of the rows matching where, which must be
// non-empty.
func (b Builder) Find(table string, where record.Fields) (Statement, error) {
	if len(where) == 0 {
		return Statement{}, ErrEmptyPredicate
	}
	return b.Select(table, nil, where, 0)
}

// Insert writes rows in a single multi-row statement. The column list comes
// from the first row; every other row must carry exactly the same columns.
func (b Builder) Insert(table string, rows []record.Fields) (Statement, error) {
	if len(rows) == 0 {
		return Statement{}, ErrEmptyBatch
	}
	target, err := b.table(table)
	if err != nil {
		return Statement{}, err
	}

	first := rows[0]
	if len(first) == 0 {
		return Statement{}, ErrEmptyRow
	}
	for i, row := range rows[1:] {
		if !first.SameKeys(row) {
			return Statement{}, fmt.Errorf("%w: row %d has %v, row 0 has %v", ErrMixedBatch, i+1, row.Names(), first.Names())
		}
	}

	cols := first.Names()
	quoted := make([]string, len(cols))
	for i, col := range cols {
		if err := schema.CheckIdentifier("column", col); err != nil {
			return Statement{}, err
		}
		quoted[i] = schema.QuoteIdentifier(col)
	}

	args := make([]any, 0, len(rows)*len(cols))
	tuples := make([]string, len(rows))
	for r, row := range rows {
		placeholders := make([]string, len(cols))
		for c, col := range cols {
			v, _ := row.Get(col)
			args = append(args, v.Arg())
			placeholders[c] = placeholder(len(args))
		}
		tuples[r] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	sql := "INSERT INTO " + target + " (" + strings.Join(quoted, ", ") + ") VALUES " + strings.Join(tuples, ", ")
	return Statement{SQL: sql, Args: args}, nil
}

// Update sets the columns of set on the rows matching where. SET values are
// bound before WHERE values.
func (b Builder) Update(table string, set, where record.Fields) (Statement, error) {
	if len(where) == 0 {
		return Statement{}, ErrEmptyPredicate
	}
	if len(set) == 0 {
		return Statement{}, ErrEmptySet
	}
	target, err := b.table(table)
	if err != nil {
		return Statement{}, err
	}

	assignments := make([]string, len(set))
	args := make([]any, 0, len(set)+len(where))
	for i, field := range set {
		if err := schema.CheckIdentifier("column", field.Name); err != nil {
			return Statement{}, err
		}
		args = append(args, field.Value.Arg())
		assignments[i] = schema.QuoteIdentifier(field.Name) + " = " + placeholder(len(args))
	}

	clause, whereArgs, err := conjunction(where, len(args)+1)
	if err != nil {
		return Statement{}, err
	}
	args = append(args, whereArgs...)

	sql := "UPDATE " + target + " SET " + strings.Join(assignments, ", ") + " WHERE " + clause
	return Statement{SQL: sql, Args: args}, nil
}

// Delete removes the rows matching where, which must be non-empty.
func (b Builder) Delete(table string, where record.Fields) (Statement, error) {
	if len(where) == 0 {
		return Statement{}, ErrEmptyPredicate
	}
	target, err := b.table(table)
	if err != nil {
		return Statement{}, err
	}
	clause, args, err := conjunction(where, 1)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "DELETE FROM " + target + " WHERE " + clause, Args: args}, nil
}

func (b Builder) table(name string) (string, error) {
	if err := schema.CheckIdentifier("table", name); err != nil {
		return "", err
	}
	return schema.QualifiedName(b.Schema, name), nil
}

// projectionList renders cols; nil, empty or a lone "*" select every column.
func projectionList(cols []string) (string, error) {
	if len(cols) == 0 || (len(cols) == 1 && cols[0] == "*") {
		return "*", nil
	}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		if err := schema.CheckIdentifier("column", col); err != nil {
			return "", err
		}
		quoted[i] = schema.QuoteIdentifier(col)
	}
	return strings.Join(quoted, ", "), nil
}

// conjunction renders `"k" = $n AND ...` numbering placeholders from first.
// A null value binds like any other and so matches no row.
func conjunction(where record.Fields, first int) (string, []any, error) {
	terms := make([]string, len(where))
	args := make([]any, len(where))
	for i, field := range where {
		if err := schema.CheckIdentifier("column", field.Name); err != nil {
			return "", nil, err
		}
		args[i] = field.Value.Arg()
		terms[i] = schema.QuoteIdentifier(field.Name) + " = " + placeholder(first+i)
	}
	return strings.Join(terms, " AND "), args, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
