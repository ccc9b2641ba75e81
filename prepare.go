package activerecord

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/darkdef/active-record/internal/observability"
	"github.com/darkdef/active-record/internal/sqlutil"
)

// prepare finalizes the query for SQL generation and returns the finalized
// copy. Queued join-with requests are resolved onto q itself exactly once,
// so preparing the same query again yields the same statement. Relational
// context (the owning record, via chains, the ON condition) is compiled
// into the copy's WHERE clause without touching q's own condition.
func (q *Query) prepare(ctx context.Context) (*Query, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.joinRequests) > 0 {
		if err := q.buildJoinWith(ctx); err != nil {
			return nil, err
		}
	}

	qc := q.clone()
	if qc.from == "" {
		t, err := q.recordType()
		if err != nil {
			return nil, err
		}
		qc.from = t.Table
	}
	if len(qc.selectCols) == 0 && len(qc.joins) > 0 {
		alias, err := qc.resolvedAlias()
		if err != nil {
			return nil, err
		}
		qc.selectCols = []string{sqlutil.QuoteIdentifier(alias) + ".*"}
	}

	if q.primaryRecord != nil {
		filterModels, err := q.relationalContext(ctx)
		if err != nil {
			return nil, err
		}
		cond, err := qc.linkFilter(filterModels)
		if err != nil {
			return nil, err
		}
		qc.where = andCond(qc.where, cond)
	}
	if q.on != nil {
		qc.where = andCond(qc.where, q.on)
	}

	for i, u := range qc.unions {
		uc, err := u.query.prepare(ctx)
		if err != nil {
			return nil, err
		}
		qc.unions[i].query = uc
	}
	qc.joinRequests = nil
	return qc, nil
}

// relationalContext resolves the models whose link values scope a lazy
// relation query: the owning record itself, or the junction rows reached
// through the via chain.
func (q *Query) relationalContext(ctx context.Context) ([]any, error) {
	owners := []any{q.primaryRecord}
	if q.via == nil {
		return owners, nil
	}
	if q.via.name == "" {
		return q.via.query.findJunctionRows(ctx, owners)
	}

	owner := q.primaryRecord
	if cached, ok := owner.Related(q.via.name); ok {
		return normalizeRelatedSlice(cached), nil
	}
	viaQuery := q.via.query
	var value any
	var err error
	if viaQuery.multiple {
		value, err = viaQuery.All(ctx)
	} else {
		value, err = viaQuery.One(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve via relation %q: %w", q.via.name, err)
	}
	if !q.via.callbackUsed {
		owner.SetRelated(q.via.name, value)
	}
	return normalizeRelatedSlice(value), nil
}

// findJunctionRows fetches the junction rows matching the given owners in
// one statement and returns them as attribute maps.
func (q *Query) findJunctionRows(ctx context.Context, owners []any) ([]any, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	cond, err := q.linkFilter(owners)
	if err != nil {
		return nil, err
	}
	runner := q.clone()
	runner.primaryRecord = nil
	runner.asArray = true
	runner.where = andCond(runner.where, cond)
	rows, err := runner.fetchRows(ctx, false, observability.QueryKindJunction)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}

// normalizeRelatedSlice flattens any attached relation value into a model
// slice for link filtering.
func normalizeRelatedSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []*Record:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, r := range t {
			out[i] = r
		}
		return out
	case map[string]*Record:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, r)
		}
		return out
	case map[string]map[string]any:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, r)
		}
		return out
	case *Record:
		if t == nil {
			return nil
		}
		return []any{t}
	case map[string]any:
		return []any{t}
	default:
		return []any{v}
	}
}

// toSQL renders a prepared query. Union members are appended after the
// first statement; their arguments follow its arguments.
func (q *Query) toSQL() (string, []any, error) {
	cols := q.selectCols
	if len(cols) == 0 {
		cols = []string{"*"}
	}
	b := sq.Select(cols...).PlaceholderFormat(sq.Question)
	if q.distinct {
		b = b.Distinct()
	}

	fromExpr := sqlutil.QuoteIdentifier(q.from)
	if q.fromAlias != "" {
		fromExpr += " " + sqlutil.QuoteIdentifier(q.fromAlias)
	}
	b = b.From(fromExpr)

	for _, j := range q.joins {
		ref := sqlutil.QuoteIdentifier(j.table)
		if j.alias != "" {
			ref += " " + sqlutil.QuoteIdentifier(j.alias)
		}
		if j.on != nil {
			onSQL, onArgs, err := j.on.ToSql()
			if err != nil {
				return "", nil, fmt.Errorf("failed to render join condition: %w", err)
			}
			b = b.JoinClause(sq.Expr(fmt.Sprintf("%s %s ON %s", j.joinType, ref, onSQL), onArgs...))
		} else {
			b = b.JoinClause(j.joinType + " " + ref)
		}
	}

	if q.where != nil {
		b = b.Where(q.where)
	}
	if len(q.groupBy) > 0 {
		b = b.GroupBy(q.groupBy...)
	}
	if q.having != nil {
		b = b.Having(q.having)
	}
	if len(q.orderBy) > 0 {
		b = b.OrderBy(q.orderBy...)
	}
	if q.limit >= 0 {
		b = b.Limit(uint64(q.limit))
	}
	if q.offset > 0 {
		b = b.Offset(uint64(q.offset))
	}

	sqlStr, args, err := b.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build statement: %w", err)
	}
	for _, u := range q.unions {
		memberSQL, memberArgs, err := u.query.toSQL()
		if err != nil {
			return "", nil, err
		}
		kw := " UNION "
		if u.all {
			kw = " UNION ALL "
		}
		sqlStr += kw + "(" + memberSQL + ")"
		args = append(args, memberArgs...)
	}
	return sqlStr, args, nil
}

// BuildSQL resolves pending joins and returns the statement and arguments
// the query would execute, without executing it.
func (q *Query) BuildSQL(ctx context.Context) (string, []any, error) {
	qc, err := q.prepare(ctx)
	if err != nil {
		return "", nil, err
	}
	return qc.toSQL()
}
