package activerecord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/darkdef/active-record/internal/observability"
)

func (q *Query) queryKind() string {
	if q.primaryRecord != nil || len(q.link) > 0 {
		return observability.QueryKindEager
	}
	return observability.QueryKindRoot
}

func (q *Query) metricsTable() string {
	if q.from != "" {
		return q.from
	}
	if t, err := q.recordType(); err == nil {
		return t.Table
	}
	return q.typeName
}

// fetchRows builds and executes the query, returning raw scanned rows. A
// raw-SQL query bypasses generation entirely.
func (q *Query) fetchRows(ctx context.Context, limitOne bool, kind string) ([]map[string]any, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.sqlText != "" {
		return q.conn.queryAll(ctx, q.metricsTable(), observability.QueryKindRaw, q.sqlText, q.sqlArgs)
	}
	qc, err := q.prepare(ctx)
	if err != nil {
		return nil, err
	}
	if limitOne && len(qc.unions) == 0 && qc.limit < 0 {
		qc.limit = 1
	}
	sqlStr, args, err := qc.toSQL()
	if err != nil {
		return nil, err
	}
	return q.conn.queryAll(ctx, qc.metricsTable(), kind, sqlStr, args)
}

func (q *Query) allModels(ctx context.Context) ([]any, error) {
	rows, err := q.fetchRows(ctx, false, q.queryKind())
	if err != nil {
		return nil, err
	}
	return q.populateAll(ctx, rows)
}

func (q *Query) oneModel(ctx context.Context) (any, error) {
	rows, err := q.fetchRows(ctx, true, q.queryKind())
	if err != nil {
		return nil, err
	}
	models, err := q.populateAll(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return models[0], nil
}

// Rows executes the query and returns raw rows without population. Eager
// loading and deduplication do not apply.
func (q *Query) Rows(ctx context.Context) ([]map[string]any, error) {
	return q.fetchRows(ctx, false, q.queryKind())
}

// Row executes the query and returns the first raw row, or nil.
func (q *Query) Row(ctx context.Context) (map[string]any, error) {
	rows, err := q.fetchRows(ctx, true, q.queryKind())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All executes the query and returns populated records: join rows
// deduplicated by primary key, eager relations attached, inverse relations
// back-referenced.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	if q.asArray {
		return nil, fmt.Errorf("query is in array mode: use AllArrays")
	}
	models, err := q.allModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(models))
	for _, m := range models {
		if rec, ok := m.(*Record); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// AllArrays is All in array mode: rows stay attribute maps and eager
// relations are attached as map entries.
func (q *Query) AllArrays(ctx context.Context) ([]map[string]any, error) {
	q.asArray = true
	models, err := q.allModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(models))
	for _, m := range models {
		if row, ok := m.(map[string]any); ok {
			out = append(out, row)
		}
	}
	return out, nil
}

// AllIndexed is All keyed by the IndexBy column or function. With duplicate
// keys the last record wins.
func (q *Query) AllIndexed(ctx context.Context) (map[string]*Record, error) {
	if q.indexColumn == "" && q.indexFunc == nil {
		return nil, fmt.Errorf("AllIndexed requires IndexBy or IndexByFunc")
	}
	records, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Record, len(records))
	for _, rec := range records {
		out[q.indexKey(rec)] = rec
	}
	return out, nil
}

// AllArraysIndexed is AllArrays keyed by the IndexBy column.
func (q *Query) AllArraysIndexed(ctx context.Context) (map[string]map[string]any, error) {
	if q.indexColumn == "" {
		return nil, fmt.Errorf("AllArraysIndexed requires IndexBy")
	}
	rows, err := q.AllArrays(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		out[q.indexKey(row)] = row
	}
	return out, nil
}

// One executes the query and returns the first populated record, or nil
// when nothing matches.
func (q *Query) One(ctx context.Context) (*Record, error) {
	if q.asArray {
		return nil, fmt.Errorf("query is in array mode: use OneArray")
	}
	m, err := q.oneModel(ctx)
	if err != nil || m == nil {
		return nil, err
	}
	rec, _ := m.(*Record)
	return rec, nil
}

// OneArray is One in array mode.
func (q *Query) OneArray(ctx context.Context) (map[string]any, error) {
	q.asArray = true
	m, err := q.oneModel(ctx)
	if err != nil || m == nil {
		return nil, err
	}
	row, _ := m.(map[string]any)
	return row, nil
}

// Count executes SELECT COUNT(*) for the query's conditions. Queries whose
// row set is shaped by DISTINCT, grouping or unions are counted through a
// derived table.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	qc, err := q.prepare(ctx)
	if err != nil {
		return 0, err
	}

	var sqlStr string
	var args []any
	if qc.distinct || len(qc.groupBy) > 0 || qc.having != nil || len(qc.unions) > 0 {
		inner, innerArgs, err := qc.toSQL()
		if err != nil {
			return 0, err
		}
		sqlStr = "SELECT COUNT(*) FROM (" + inner + ") `c`"
		args = innerArgs
	} else {
		cc := qc.clone()
		cc.selectCols = []string{"COUNT(*)"}
		cc.orderBy = nil
		cc.limit = -1
		cc.offset = -1
		sqlStr, args, err = cc.toSQL()
		if err != nil {
			return 0, err
		}
	}

	rows, err := q.conn.queryAll(ctx, qc.metricsTable(), observability.QueryKindCount, sqlStr, args)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		return toInt64(v)
	}
	return 0, nil
}

// Exists reports whether the query matches at least one row.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	qc, err := q.prepare(ctx)
	if err != nil {
		return false, err
	}
	cc := qc.clone()
	cc.selectCols = []string{"1"}
	cc.orderBy = nil
	cc.limit = 1
	cc.offset = -1
	sqlStr, args, err := cc.toSQL()
	if err != nil {
		return false, err
	}
	rows, err := q.conn.queryAll(ctx, qc.metricsTable(), observability.QueryKindCount, sqlStr, args)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unexpected count value %q: %w", n, err)
		}
		return parsed, nil
	case []byte:
		return toInt64(string(n))
	default:
		return 0, fmt.Errorf("unexpected count value of type %T", v)
	}
}
