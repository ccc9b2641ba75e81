package activerecord

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/darkdef/active-record/internal/sqlutil"
)

// linkTuple is one row of source values extracted from owner models.
type linkTuple struct {
	values []any
}

// linkFilter builds the relational-context condition: target link columns
// of this query restricted to the source values found in models. Models may
// be Records or attribute maps. An empty value set yields a condition that
// matches nothing.
func (q *Query) linkFilter(models []any) (sq.Sqlizer, error) {
	if len(q.link) == 0 {
		if q.on != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: filtering %s", ErrMissingLink, q.typeName)
	}

	alias, err := q.resolvedAlias()
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(q.link))
	for i, p := range q.link {
		columns[i] = sqlutil.Qualify(alias, p.Target)
	}

	tuples := uniqueLinkTuples(models, q.link.sources())
	if len(tuples) == 0 {
		return sq.Expr("0=1"), nil
	}

	condSQL, condArgs, err := buildTupleInCondition(columns, tuples)
	if err != nil {
		return nil, err
	}
	return sq.Expr(condSQL, condArgs...), nil
}

// uniqueLinkTuples collects the distinct source-column value tuples from
// models. Models missing any source value are skipped; a relation cannot
// match rows through a NULL link.
func uniqueLinkTuples(models []any, columns []string) []linkTuple {
	seen := make(map[string]struct{}, len(models))
	tuples := make([]linkTuple, 0, len(models))
	for _, m := range models {
		values := make([]any, len(columns))
		missing := false
		for i, col := range columns {
			v := modelValue(m, col)
			if v == nil {
				missing = true
				break
			}
			values[i] = v
		}
		if missing {
			continue
		}
		key := tupleKey(values)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tuples = append(tuples, linkTuple{values: values})
	}
	return tuples
}

// buildTupleInCondition renders `col IN (...)` for one column and the row
// constructor form `(a, b) IN ((?,?), ...)` for composite links.
func buildTupleInCondition(quotedColumns []string, tuples []linkTuple) (string, []any, error) {
	width := len(quotedColumns)
	if width == 0 {
		return "", nil, fmt.Errorf("tuple IN requires at least one column")
	}

	if width == 1 {
		placeholders := sq.Placeholders(len(tuples))
		args := make([]any, 0, len(tuples))
		for _, t := range tuples {
			if len(t.values) != 1 {
				return "", nil, fmt.Errorf("tuple width mismatch: expected 1 value")
			}
			args = append(args, t.values[0])
		}
		return fmt.Sprintf("%s IN (%s)", quotedColumns[0], placeholders), args, nil
	}

	args := make([]any, 0, len(tuples)*width)
	rowPlaceholders := make([]string, 0, len(tuples))
	valuePlaceholders := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"
	for _, t := range tuples {
		if len(t.values) != width {
			return "", nil, fmt.Errorf("tuple width mismatch: expected %d values", width)
		}
		rowPlaceholders = append(rowPlaceholders, valuePlaceholders)
		args = append(args, t.values...)
	}
	return fmt.Sprintf("(%s) IN (%s)", strings.Join(quotedColumns, ", "), strings.Join(rowPlaceholders, ", ")), args, nil
}

// modelValue reads one attribute from a Record or attribute map.
func modelValue(m any, column string) any {
	switch v := m.(type) {
	case *Record:
		return v.Get(column)
	case map[string]any:
		return v[column]
	}
	return nil
}

// modelSetRelated attaches a relation value to a Record or attribute map.
func modelSetRelated(m any, name string, value any) {
	switch v := m.(type) {
	case *Record:
		v.SetRelated(name, value)
	case map[string]any:
		v[name] = value
	}
}

// modelKey builds a tuple key from a model's values at the given columns.
// ok is false when any value is missing.
func modelKey(m any, columns []string) (string, bool) {
	values := make([]any, len(columns))
	for i, col := range columns {
		v := modelValue(m, col)
		if v == nil {
			return "", false
		}
		values[i] = v
	}
	return tupleKey(values), true
}

// tupleKey encodes values into a map key. Values of different types that
// print identically collide, which matches how link values compare after
// a round trip through the database.
func tupleKey(values []any) string {
	if len(values) == 1 {
		return fmt.Sprint(values[0])
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}
