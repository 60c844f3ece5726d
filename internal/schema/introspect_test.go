package schema

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/abmgate/abmgate/internal/record"
	"github.com/abmgate/abmgate/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ordersStore() *storetest.Fake {
	return storetest.New().
		OnQuery(queryStructure,
			storetest.Row("column_name", "id", "data_type", "integer", "is_nullable", false,
				"column_default", "nextval('orders_id_seq'::regclass)", "column_key", "PRI",
				"referenced_table", nil, "referenced_column", nil),
			storetest.Row("column_name", "customer_id", "data_type", "integer", "is_nullable", false,
				"column_default", nil, "column_key", "",
				"referenced_table", "customers", "referenced_column", "id"),
			storetest.Row("column_name", "total", "data_type", "numeric", "is_nullable", true,
				"column_default", nil, "column_key", "",
				"referenced_table", nil, "referenced_column", nil),
		).
		OnQuery(queryColumnsOf,
			storetest.Row("table_name", "customers", "column_name", "id"),
			storetest.Row("table_name", "customers", "column_name", "name"),
			storetest.Row("table_name", "customers", "column_name", "email"),
		).
		OnQuery(`FROM "public"."customers"`,
			storetest.Row("pk", 1, "col2", "Ada"),
			storetest.Row("pk", 2, "col2", "Grace"),
		)
}

func TestListTables(t *testing.T) {
	st := storetest.New().OnQuery(queryListTables,
		storetest.Row("table_name", "customers"),
		storetest.Row("table_name", nil),
		storetest.Row("table_name", "orders"),
	)
	in := NewIntrospector(st, "public", testLogger())

	tables, err := in.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tables)

	call, ok := st.Last()
	require.True(t, ok)
	assert.Equal(t, []any{"public"}, call.Args)
}

func TestListTables_StoreError(t *testing.T) {
	st := storetest.New().OnError(queryListTables, errors.New("connection refused"))
	in := NewIntrospector(st, "public", testLogger())

	_, err := in.ListTables(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStructure_OrderAndKeys(t *testing.T) {
	in := NewIntrospector(ordersStore(), "public", testLogger())

	cols, err := in.Structure(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, cols, 3)

	assert.Equal(t, []string{"id", "customer_id", "total"}, []string{cols[0].Name, cols[1].Name, cols[2].Name})
	assert.True(t, cols[0].IsPrimaryKey)
	assert.False(t, cols[1].IsPrimaryKey)
	assert.False(t, cols[2].IsPrimaryKey)
	require.NotNil(t, cols[0].Default)
	assert.Nil(t, cols[1].Default)
	assert.True(t, cols[2].IsNullable)
	assert.False(t, cols[0].IsForeignKey)
	assert.Nil(t, cols[0].ForeignKey)
}

func TestStructure_ForeignKeyDetail(t *testing.T) {
	st := ordersStore()
	in := NewIntrospector(st, "public", testLogger())

	cols, err := in.Structure(context.Background(), "orders")
	require.NoError(t, err)

	fkCol := cols[1]
	assert.True(t, fkCol.IsForeignKey)
	require.NotNil(t, fkCol.ForeignKey)
	assert.Equal(t, "customers", fkCol.ForeignKey.ReferencedTable)
	assert.Equal(t, "id", fkCol.ForeignKey.ReferencedColumn)
	require.Len(t, fkCol.ForeignKey.Rows, 2)
	label, _ := fkCol.ForeignKey.Rows[1].Col2.Text()
	assert.Equal(t, "Grace", label)

	var refSQL string
	for _, c := range st.Calls() {
		if c.Args == nil {
			refSQL = c.SQL
		}
	}
	assert.Equal(t, `SELECT "id" AS pk, "name" AS col2 FROM "public"."customers"`, refSQL)
}

func TestStructure_BatchesReferencedColumns(t *testing.T) {
	st := storetest.New().
		OnQuery(queryStructure,
			storetest.Row("column_name", "buyer_id", "data_type", "integer", "is_nullable", false,
				"column_default", nil, "column_key", "", "referenced_table", "customers", "referenced_column", "id"),
			storetest.Row("column_name", "seller_id", "data_type", "integer", "is_nullable", false,
				"column_default", nil, "column_key", "", "referenced_table", "customers", "referenced_column", "id"),
			storetest.Row("column_name", "product_id", "data_type", "integer", "is_nullable", false,
				"column_default", nil, "column_key", "", "referenced_table", "products", "referenced_column", "id"),
		).
		OnQuery(queryColumnsOf,
			storetest.Row("table_name", "customers", "column_name", "id"),
			storetest.Row("table_name", "customers", "column_name", "name"),
			storetest.Row("table_name", "products", "column_name", "id"),
			storetest.Row("table_name", "products", "column_name", "title"),
		)
	in := NewIntrospector(st, "public", testLogger())

	_, err := in.Structure(context.Background(), "sales")
	require.NoError(t, err)

	var catalogCalls int
	for _, c := range st.Calls() {
		if c.SQL == queryColumnsOf {
			catalogCalls++
			assert.Equal(t, []string{"customers", "products"}, c.Args[1])
		}
	}
	assert.Equal(t, 1, catalogCalls)
	// structure + batched catalog + one snapshot per foreign-key column
	assert.Len(t, st.Calls(), 5)
}

func TestStructure_SingleColumnReferenceOmitted(t *testing.T) {
	st := storetest.New().
		OnQuery(queryStructure,
			storetest.Row("column_name", "tag", "data_type", "text", "is_nullable", false,
				"column_default", nil, "column_key", "", "referenced_table", "tags", "referenced_column", "tag"),
		).
		OnQuery(queryColumnsOf, storetest.Row("table_name", "tags", "column_name", "tag"))
	in := NewIntrospector(st, "public", testLogger())

	cols, err := in.Structure(context.Background(), "posts")
	require.NoError(t, err)
	require.NotNil(t, cols[0].ForeignKey)
	assert.Nil(t, cols[0].ForeignKey.Rows)
	assert.Len(t, st.Calls(), 2, "no row fetch for a one-column table")
}

func TestStructure_ForeignKeyFailureDegrades(t *testing.T) {
	st := storetest.New().
		OnError(`FROM "public"."customers"`, errors.New("permission denied")).
		OnQuery(queryStructure, mustRows(t, ordersStore(), queryStructure)...).
		OnQuery(queryColumnsOf, mustRows(t, ordersStore(), queryColumnsOf)...)
	in := NewIntrospector(st, "public", testLogger())

	cols, err := in.Structure(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.True(t, cols[1].IsForeignKey)
	assert.Nil(t, cols[1].ForeignKey.Rows)
}

func TestStructure_CatalogFailureDegrades(t *testing.T) {
	st := storetest.New().
		OnQuery(queryStructure, mustRows(t, ordersStore(), queryStructure)...).
		OnError(queryColumnsOf, errors.New("timeout"))
	in := NewIntrospector(st, "public", testLogger())

	cols, err := in.Structure(context.Background(), "orders")
	require.NoError(t, err)
	assert.Nil(t, cols[1].ForeignKey.Rows)
}

func TestStructure_RowLimit(t *testing.T) {
	st := ordersStore()
	in := NewIntrospector(st, "public", testLogger(), WithForeignKeyRowLimit(50))

	_, err := in.Structure(context.Background(), "orders")
	require.NoError(t, err)

	last, _ := st.Last()
	assert.Equal(t, `SELECT "id" AS pk, "name" AS col2 FROM "public"."customers" LIMIT 50`, last.SQL)
}

func TestReferencedRows_SingleKey(t *testing.T) {
	st := ordersStore().OnQuery(queryForeignKeyTarget,
		storetest.Row("referenced_table", "customers", "referenced_column", "id"),
	)
	in := NewIntrospector(st, "public", testLogger())

	fk, err := in.ReferencedRows(context.Background(), "orders", "customer_id", record.String("2"))
	require.NoError(t, err)
	require.NotNil(t, fk)
	assert.Equal(t, "customers", fk.ReferencedTable)

	last, _ := st.Last()
	assert.Equal(t, `SELECT "id" AS pk, "name" AS col2 FROM "public"."customers" WHERE "id" = $1`, last.SQL)
	assert.Equal(t, []any{"2"}, last.Args)
}

func TestReferencedRows_NotForeignKey(t *testing.T) {
	in := NewIntrospector(storetest.New(), "public", testLogger())

	fk, err := in.ReferencedRows(context.Background(), "orders", "total", record.Int(1))
	require.NoError(t, err)
	assert.Nil(t, fk)
}

func TestColumnNames(t *testing.T) {
	st := storetest.New().OnQuery(queryColumnsOf,
		storetest.Row("table_name", "products", "column_name", "id"),
		storetest.Row("table_name", "products", "column_name", "name"),
	)
	in := NewIntrospector(st, "public", testLogger())

	cols, err := in.ColumnNames(context.Background(), "products")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)
}

// mustRows replays the rows a fake would answer for sql.
func mustRows(t *testing.T, st *storetest.Fake, sql string) []record.Fields {
	t.Helper()
	rows, err := st.Query(context.Background(), sql)
	require.NoError(t, err)
	return rows
}
