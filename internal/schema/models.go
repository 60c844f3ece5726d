package schema

import "github.com/abmgate/abmgate/internal/record"

// Column describes one catalog column of a table.
type Column struct {
	Name         string      `json:"name"`
	DataType     string      `json:"dataType"`
	IsNullable   bool        `json:"isNullable"`
	Default      *string     `json:"default,omitempty"`
	IsPrimaryKey bool        `json:"isPrimaryKey"`
	IsForeignKey bool        `json:"isForeignKey"`
	ForeignKey   *ForeignKey `json:"foreignKey,omitempty"`
}

// ForeignKey is the target of a foreign-key column plus a snapshot of the
// referenced rows. Rows is nil when the snapshot could not be built: the
// referenced table has fewer than two columns, or the lookup failed.
type ForeignKey struct {
	ReferencedTable  string         `json:"referencedTable"`
	ReferencedColumn string         `json:"referencedColumn"`
	Rows             []ReferenceRow `json:"rows"`
}

// ReferenceRow is one referenced row projected onto the referenced table's
// first two columns, taken as identifier and label.
type ReferenceRow struct {
	PK   record.Value `json:"pk"`
	Col2 record.Value `json:"col2"`
}
