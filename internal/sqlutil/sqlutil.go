// Package sqlutil provides SQL identifier helpers shared by the query engine.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// with backticks and escapes any backticks within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Qualify returns a quoted table-or-alias qualified column reference,
// e.g. Qualify("order", "customer_id") -> "`order`.`customer_id`".
// An empty qualifier yields the bare quoted column.
func Qualify(qualifier, column string) string {
	if qualifier == "" {
		return QuoteIdentifier(column)
	}
	return QuoteIdentifier(qualifier) + "." + QuoteIdentifier(column)
}

// IsValidIdentifier reports whether name is a plain SQL identifier: letters,
// digits, underscores, not starting with a digit. Used to vet caller-supplied
// column names in structured conditions before they reach SQL text.
func IsValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SplitQualified splits an optionally qualified column reference into its
// qualifier and column parts. "t.col" -> ("t", "col"); "col" -> ("", "col").
// More than one dot is rejected by returning ok=false.
func SplitQualified(name string) (qualifier, column string, ok bool) {
	parts := strings.Split(name, ".")
	switch len(parts) {
	case 1:
		return "", parts[0], true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}
