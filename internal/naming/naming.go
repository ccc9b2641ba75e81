// Package naming derives default SQL names from Go-style record type names.
package naming

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// TableName converts a record type name to its default table name.
// Example: "OrderItem" -> "order_item".
func TableName(typeName string) string {
	return toSnakeCase(typeName)
}

// RelationName suggests a relation name for a target record type.
// Singular relations use the camelCased type name, plural relations the
// pluralized form. Example: ("OrderItem", true) -> "orderItems".
func RelationName(typeName string, many bool) string {
	name := toCamelCase(typeName)
	if many {
		return inflection.Plural(name)
	}
	return name
}

// JunctionTableName suggests a junction table name for a many-to-many
// association between two record types, ordered alphabetically.
// Example: ("Order", "Item") -> "item_order".
func JunctionTableName(left, right string) string {
	a, b := TableName(left), TableName(right)
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}

func toSnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// Break before an upper rune that starts a new word, including
			// the tail of an acronym run ("HTTPLog" -> "http_log").
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toCamelCase(name string) string {
	if name == "" {
		return name
	}
	runes := []rune(name)
	for i := range runes {
		if unicode.IsLower(runes[i]) {
			break
		}
		// Lowercase leading uppers, but stop before the last upper of an
		// acronym run when it starts the next word.
		if i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
