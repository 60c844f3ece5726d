package schema

// Catalog reads. information_schema columns are domain types, so every
// projected identifier is cast to text.

const queryListTables = `
	SELECT table_name::text AS table_name
	FROM information_schema.tables
	WHERE table_schema = $1
	ORDER BY table_name
`

// foreignKeyColumns pairs each referencing column with its referenced
// column by position in conkey/confkey. Constraint names are only unique per
// table, so the constraint is pinned through conrelid rather than its name.
const foreignKeyColumns = `
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(attnum, refnum)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		JOIN pg_class rt ON rt.oid = con.confrelid
		JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.refnum
		WHERE con.contype = 'f'
		  AND n.nspname = $1
		  AND t.relname = $2
`

// queryStructure returns one row per column in declaration order. column_key
// carries the primary-key marker; referenced_table/referenced_column are
// non-null for foreign-key columns (first constraint by name when a column
// has several).
const queryStructure = `
	SELECT
		c.column_name::text AS column_name,
		c.data_type::text AS data_type,
		c.is_nullable = 'YES' AS is_nullable,
		c.column_default::text AS column_default,
		CASE WHEN pk.column_name IS NOT NULL THEN 'PRI' ELSE '' END AS column_key,
		fk.referenced_table,
		fk.referenced_column
	FROM information_schema.columns c
	LEFT JOIN (
		SELECT DISTINCT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		 AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
	) pk ON pk.column_name = c.column_name
	LEFT JOIN (
		SELECT DISTINCT ON (a.attname)
			a.attname::text AS column_name,
			rt.relname::text AS referenced_table,
			ra.attname::text AS referenced_column` + foreignKeyColumns + `
		ORDER BY a.attname, con.conname
	) fk ON fk.column_name = c.column_name
	WHERE c.table_schema = $1
	  AND c.table_name = $2
	ORDER BY c.ordinal_position
`

// queryColumnsOf lists the columns of several tables in one round-trip.
const queryColumnsOf = `
	SELECT table_name::text AS table_name, column_name::text AS column_name
	FROM information_schema.columns
	WHERE table_schema = $1
	  AND table_name = ANY($2)
	ORDER BY table_name, ordinal_position
`

const queryForeignKeyTarget = `
	SELECT
		rt.relname::text AS referenced_table,
		ra.attname::text AS referenced_column` + foreignKeyColumns + `
		  AND a.attname = $3
	ORDER BY con.conname
	LIMIT 1
`
