package activerecord

import (
	"context"
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"

	"github.com/darkdef/active-record/internal/sqlutil"
)

// FindOne fetches one record by condition. A scalar or slice condition
// matches the first primary key column; a map[string]any condition matches
// each column after validating the keys against the record type.
func (c *Conn) FindOne(ctx context.Context, typeName string, condition any) (*Record, error) {
	q := c.Find(typeName)
	if err := q.applyFindCondition(condition); err != nil {
		return nil, err
	}
	return q.One(ctx)
}

// FindAll fetches every record matching the condition. See FindOne for the
// condition forms.
func (c *Conn) FindAll(ctx context.Context, typeName string, condition any) ([]*Record, error) {
	q := c.Find(typeName)
	if err := q.applyFindCondition(condition); err != nil {
		return nil, err
	}
	return q.All(ctx)
}

// applyFindCondition compiles a FindOne/FindAll condition onto the query.
// Map keys must be plain or table-qualified column names; with a declared
// column list only listed columns pass. Everything else binds to the first
// primary key column.
func (q *Query) applyFindCondition(condition any) error {
	t, err := q.recordType()
	if err != nil {
		return err
	}
	alias, err := q.resolvedAlias()
	if err != nil {
		return err
	}

	if m, ok := condition.(map[string]any); ok {
		eq := make(sq.Eq, len(m))
		for key, value := range m {
			qualifier, column, ok := sqlutil.SplitQualified(key)
			if !ok || !sqlutil.IsValidIdentifier(column) {
				return fmt.Errorf("%w: %q", ErrInvalidConditionKey, key)
			}
			if qualifier != "" {
				if !sqlutil.IsValidIdentifier(qualifier) {
					return fmt.Errorf("%w: %q", ErrInvalidConditionKey, key)
				}
				if qualifier != alias && qualifier != t.Table {
					return fmt.Errorf("%w: %q does not reference this query's table", ErrInvalidConditionKey, key)
				}
			}
			if !t.columnAllowed(column) {
				return fmt.Errorf("%w: %q is not a column of %s", ErrInvalidConditionKey, key, t.Name)
			}
			eq[sqlutil.Qualify(alias, column)] = value
		}
		q.AndWhere(eq)
		return nil
	}

	if len(t.PrimaryKey) == 0 {
		return fmt.Errorf("%w: %s requires a map condition", ErrNoPrimaryKey, t.Name)
	}
	pk := sqlutil.Qualify(alias, t.PrimaryKey[0])
	values := conditionValues(condition)
	switch len(values) {
	case 0:
		q.AndWhere(sq.Expr("0=1"))
	case 1:
		q.AndWhere(sq.Eq{pk: values[0]})
	default:
		q.AndWhere(sq.Eq{pk: values})
	}
	return nil
}

// conditionValues flattens a scalar or any slice type into a value list.
func conditionValues(condition any) []any {
	v := reflect.ValueOf(condition)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return []any{condition}
	}
	out := make([]any, v.Len())
	for i := range out {
		out[i] = v.Index(i).Interface()
	}
	return out
}
