package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIdentifier is returned for table or column names that fail the
// allow-list.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// maxIdentifierLen is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLen = 63

// ValidIdentifier checks if a name is safe to place in SQL text: 1 to 63
// ASCII letters, digits or underscores.
func ValidIdentifier(name string) bool {
	if name == "" || len(name) > maxIdentifierLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

// CheckIdentifier returns ErrInvalidIdentifier, naming the offender, when
// name fails ValidIdentifier.
func CheckIdentifier(kind, name string) error {
	if !ValidIdentifier(name) {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, name)
	}
	return nil
}

// QuoteIdentifier wraps a name in double quotes, doubling embedded quotes
// (SQL standard). Callers validate first; quoting keeps mixed-case names
// intact.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName returns "schema"."table", or just "table" when schemaName
// is empty.
func QualifiedName(schemaName, table string) string {
	if schemaName == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schemaName) + "." + QuoteIdentifier(table)
}
