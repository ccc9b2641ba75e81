package activerecord

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Join types accepted by the JoinWith family.
const (
	InnerJoin = "INNER JOIN"
	LeftJoin  = "LEFT JOIN"
	RightJoin = "RIGHT JOIN"
)

type withSpec struct {
	path  string
	apply func(*Query)
}

type joinClause struct {
	joinType string
	table    string
	alias    string
	on       sq.Sqlizer
}

type unionClause struct {
	query *Query
	all   bool
}

// WithSpec names one relation path to load or join, with an optional
// callback refining the relation query at the final path segment.
type WithSpec struct {
	Path  string
	Apply func(*Query)
}

// JoinWithRequest is the full form of JoinWith. The zero value of each
// field falls back to eager loading with inner joins.
type JoinWithRequest struct {
	Relations []WithSpec

	// Eager controls whether the joined relations are also populated onto
	// the result records. Nil means true.
	Eager *bool

	// EagerOnly, when non-nil, overrides Eager and lists the relation
	// paths to populate.
	EagerOnly []string

	// JoinType applies to every relation; JoinTypes overrides it per
	// relation path. Empty means InnerJoin.
	JoinType  string
	JoinTypes map[string]string
}

func (r JoinWithRequest) eager(path string) bool {
	if r.EagerOnly != nil {
		for _, p := range r.EagerOnly {
			if p == path {
				return true
			}
		}
		return false
	}
	return r.Eager == nil || *r.Eager
}

func (r JoinWithRequest) joinTypeFor(path string) string {
	if t, ok := r.JoinTypes[path]; ok {
		return t
	}
	if r.JoinType != "" {
		return r.JoinType
	}
	return InnerJoin
}

// Query is a relational query under construction. It doubles as a relation
// declaration: HasOne and HasMany return a Query carrying the link columns,
// multiplicity and owning record of the relation.
type Query struct {
	conn     *Conn
	typeName string

	// err defers construction mistakes until execution so the fluent
	// builder chain stays unbroken.
	err error

	sqlText string
	sqlArgs []any

	selectCols []string
	distinct   bool
	from       string
	fromAlias  string
	where      sq.Sqlizer
	having     sq.Sqlizer
	orderBy    []string
	groupBy    []string
	limit      int64
	offset     int64
	joins      []joinClause
	unions     []unionClause

	indexColumn string
	indexFunc   func(*Record) string
	asArray     bool

	withSpecs    []withSpec
	joinRequests []JoinWithRequest

	// Relation state, set by HasOne/HasMany and the relation builders.
	primaryRecord *Record
	link          Link
	multiple      bool
	via           *viaSpec
	on            sq.Sqlizer
	inverseOf     string
}

func newQuery(conn *Conn, typeName string) *Query {
	return &Query{
		conn:     conn,
		typeName: typeName,
		limit:    -1,
		offset:   -1,
	}
}

// clone returns a copy safe to mutate without affecting q. Condition trees
// are shared; slices are copied.
func (q *Query) clone() *Query {
	c := *q
	c.selectCols = append([]string(nil), q.selectCols...)
	c.orderBy = append([]string(nil), q.orderBy...)
	c.groupBy = append([]string(nil), q.groupBy...)
	c.joins = append([]joinClause(nil), q.joins...)
	c.unions = append([]unionClause(nil), q.unions...)
	c.withSpecs = append([]withSpec(nil), q.withSpecs...)
	c.joinRequests = append([]JoinWithRequest(nil), q.joinRequests...)
	c.sqlArgs = append([]any(nil), q.sqlArgs...)
	return &c
}

// Select replaces the selected columns. Callers are responsible for
// quoting; expressions are passed through as written.
func (q *Query) Select(cols ...string) *Query {
	q.selectCols = cols
	return q
}

// AddSelect appends to the selected columns.
func (q *Query) AddSelect(cols ...string) *Query {
	q.selectCols = append(q.selectCols, cols...)
	return q
}

// Distinct marks the query SELECT DISTINCT.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// From overrides the table the query selects from. The default is the
// record type's table.
func (q *Query) From(table string) *Query {
	q.from = table
	return q
}

// Alias assigns a table alias. Link conditions, join conditions and the
// default column selection are qualified with it.
func (q *Query) Alias(alias string) *Query {
	q.fromAlias = alias
	return q
}

// Where replaces the query condition.
func (q *Query) Where(cond sq.Sqlizer) *Query {
	q.where = cond
	return q
}

// AndWhere conjoins cond with the current condition.
func (q *Query) AndWhere(cond sq.Sqlizer) *Query {
	q.where = andCond(q.where, cond)
	return q
}

// OrWhere disjoins cond with the current condition.
func (q *Query) OrWhere(cond sq.Sqlizer) *Query {
	if q.where == nil {
		q.where = cond
	} else {
		q.where = sq.Or{q.where, cond}
	}
	return q
}

// OrderBy replaces the ordering expressions.
func (q *Query) OrderBy(exprs ...string) *Query {
	q.orderBy = exprs
	return q
}

// AddOrderBy appends ordering expressions.
func (q *Query) AddOrderBy(exprs ...string) *Query {
	q.orderBy = append(q.orderBy, exprs...)
	return q
}

// GroupBy replaces the grouping expressions.
func (q *Query) GroupBy(exprs ...string) *Query {
	q.groupBy = exprs
	return q
}

// Having sets the HAVING condition.
func (q *Query) Having(cond sq.Sqlizer) *Query {
	q.having = cond
	return q
}

// Limit caps the number of rows. Negative means no limit.
func (q *Query) Limit(n int64) *Query {
	q.limit = n
	return q
}

// Offset skips rows. Negative means no offset.
func (q *Query) Offset(n int64) *Query {
	q.offset = n
	return q
}

// Join appends a raw join clause. Joins added this way survive JoinWith
// resolution: generated joins targeting the same table yield to them.
func (q *Query) Join(joinType, table, alias string, on sq.Sqlizer) *Query {
	q.joins = append(q.joins, joinClause{joinType: joinType, table: table, alias: alias, on: on})
	return q
}

// Union appends other as a UNION member.
func (q *Query) Union(other *Query) *Query {
	q.unions = append(q.unions, unionClause{query: other})
	return q
}

// UnionAll appends other as a UNION ALL member.
func (q *Query) UnionAll(other *Query) *Query {
	q.unions = append(q.unions, unionClause{query: other, all: true})
	return q
}

// IndexBy keys result collections by the given column instead of position.
// With duplicate keys the last row wins.
func (q *Query) IndexBy(column string) *Query {
	q.indexColumn = column
	q.indexFunc = nil
	return q
}

// IndexByFunc keys result collections by a computed value. It applies to
// record results only.
func (q *Query) IndexByFunc(fn func(*Record) string) *Query {
	q.indexFunc = fn
	q.indexColumn = ""
	return q
}

// AsArray returns raw attribute maps instead of Records. Eager loading
// still applies; related values are attached as map entries.
func (q *Query) AsArray() *Query {
	q.asArray = true
	return q
}

// With requests eager loading of the named relation paths. Dotted paths
// load nested relations; "orders.items" loads orders onto the results and
// items onto each order. Each path costs one additional query regardless
// of the number of result records.
func (q *Query) With(paths ...string) *Query {
	for _, p := range paths {
		q.addWithSpec(withSpec{path: p})
	}
	return q
}

// WithQuery is With plus a callback refining the relation query at the
// final path segment.
func (q *Query) WithQuery(path string, apply func(*Query)) *Query {
	q.addWithSpec(withSpec{path: path, apply: apply})
	return q
}

func (q *Query) addWithSpec(spec withSpec) {
	for i, existing := range q.withSpecs {
		if existing.path == spec.path {
			if spec.apply != nil {
				q.withSpecs[i].apply = spec.apply
			}
			return
		}
	}
	q.withSpecs = append(q.withSpecs, spec)
}

// JoinWith joins the named relation paths with inner joins and eager-loads
// them. Resolution is deferred until the query is built, so conditions
// referring to joined tables may be added before or after this call.
func (q *Query) JoinWith(paths ...string) *Query {
	return q.joinWithPaths(InnerJoin, paths)
}

// InnerJoinWith is JoinWith spelled out.
func (q *Query) InnerJoinWith(paths ...string) *Query {
	return q.joinWithPaths(InnerJoin, paths)
}

// LeftJoinWith joins the named relation paths with left joins and
// eager-loads them.
func (q *Query) LeftJoinWith(paths ...string) *Query {
	return q.joinWithPaths(LeftJoin, paths)
}

// JoinWithQuery joins one relation path with a callback refining the
// relation query at the final segment.
func (q *Query) JoinWithQuery(path, joinType string, apply func(*Query)) *Query {
	return q.JoinWithRequest(JoinWithRequest{
		Relations: []WithSpec{{Path: path, Apply: apply}},
		JoinType:  joinType,
	})
}

// JoinWithRequest queues the full form of a join-with request.
func (q *Query) JoinWithRequest(req JoinWithRequest) *Query {
	q.joinRequests = append(q.joinRequests, req)
	return q
}

func (q *Query) joinWithPaths(joinType string, paths []string) *Query {
	specs := make([]WithSpec, len(paths))
	for i, p := range paths {
		specs[i] = WithSpec{Path: p}
	}
	return q.JoinWithRequest(JoinWithRequest{Relations: specs, JoinType: joinType})
}

func (q *Query) recordType() (*RecordType, error) {
	return q.conn.registry.Type(q.typeName)
}

// resolvedTable returns the table the query reads from.
func (q *Query) resolvedTable() (string, error) {
	if q.from != "" {
		return q.from, nil
	}
	t, err := q.recordType()
	if err != nil {
		return "", err
	}
	return t.Table, nil
}

// resolvedAlias returns the name other SQL fragments qualify columns with:
// the explicit alias when set, the table name otherwise.
func (q *Query) resolvedAlias() (string, error) {
	if q.fromAlias != "" {
		return q.fromAlias, nil
	}
	return q.resolvedTable()
}

func andCond(base, extra sq.Sqlizer) sq.Sqlizer {
	switch {
	case extra == nil:
		return base
	case base == nil:
		return extra
	default:
		return sq.And{base, extra}
	}
}

func splitPath(path string) []string {
	return strings.Split(path, ".")
}
