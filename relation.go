package activerecord

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/darkdef/active-record/internal/naming"
)

// LinkPair equates one target-table column with one source-table column.
// For `order.HasMany("OrderItem", Link{{"order_id", "id"}})` the target
// column order_item.order_id matches the source column order.id.
type LinkPair struct {
	Target string
	Source string
}

// Link is the ordered column mapping of a relation. Multiple pairs form a
// composite link; pair order is preserved in generated SQL.
type Link []LinkPair

func (l Link) targets() []string {
	cols := make([]string, len(l))
	for i, p := range l {
		cols[i] = p.Target
	}
	return cols
}

func (l Link) sources() []string {
	cols := make([]string, len(l))
	for i, p := range l {
		cols[i] = p.Source
	}
	return cols
}

type viaSpec struct {
	name         string // empty for ViaTable
	query        *Query
	callbackUsed bool
}

// Via routes this relation through another relation declared on the same
// record type. The via relation's rows provide the source values the link
// filters on. An optional callback refines the via query; using one
// disables caching of the intermediate rows on the owner record.
func (q *Query) Via(name string, apply ...func(*Query)) *Query {
	if q.err != nil {
		return q
	}
	if q.primaryRecord == nil {
		q.err = fmt.Errorf("%w: via %q outside a relation declaration", ErrUnknownRelation, name)
		return q
	}
	via, err := q.primaryRecord.RelationQuery(name)
	if err != nil {
		q.err = err
		return q
	}
	callbackUsed := false
	for _, fn := range apply {
		if fn != nil {
			fn(via)
			callbackUsed = true
		}
	}
	q.via = &viaSpec{name: name, query: via, callbackUsed: callbackUsed}
	return q
}

// ViaTable routes this relation through a junction table that is not mapped
// to a record type. Each link pair equates a junction column with a source
// column of the owning record; the relation's own link then matches target
// columns against junction columns. An empty table name derives the
// conventional junction name from the two type names ("item_order").
func (q *Query) ViaTable(table string, link Link, apply ...func(*Query)) *Query {
	if q.err != nil {
		return q
	}
	if table == "" && q.primaryRecord != nil {
		table = naming.JunctionTableName(q.primaryRecord.TypeName(), q.typeName)
	}
	via := &Query{
		conn:          q.conn,
		from:          table,
		link:          link,
		multiple:      true,
		asArray:       true,
		primaryRecord: q.primaryRecord,
		limit:         -1,
		offset:        -1,
	}
	callbackUsed := false
	for _, fn := range apply {
		if fn != nil {
			fn(via)
			callbackUsed = true
		}
	}
	q.via = &viaSpec{query: via, callbackUsed: callbackUsed}
	return q
}

// OnCondition sets an extra condition for this relation. It is rendered
// into the join's ON clause when the relation is joined and appended to the
// WHERE clause when the relation runs as its own query.
func (q *Query) OnCondition(cond sq.Sqlizer) *Query {
	q.on = cond
	return q
}

// AndOnCondition conjoins cond with the current ON condition.
func (q *Query) AndOnCondition(cond sq.Sqlizer) *Query {
	if q.on == nil {
		q.on = cond
	} else {
		q.on = sq.And{q.on, cond}
	}
	return q
}

// OrOnCondition disjoins cond with the current ON condition.
func (q *Query) OrOnCondition(cond sq.Sqlizer) *Query {
	if q.on == nil {
		q.on = cond
	} else {
		q.on = sq.Or{q.on, cond}
	}
	return q
}

// InverseOf names the relation on the target type that points back at this
// relation's owner. Population then attaches the owner to each related
// record instead of issuing the reverse query later. An empty name derives
// the conventional singular relation name from the owning type ("Customer"
// becomes "customer"); the derived relation must still be declared on the
// target type.
func (q *Query) InverseOf(name string) *Query {
	if name == "" && q.primaryRecord != nil {
		name = naming.RelationName(q.primaryRecord.TypeName(), false)
	}
	q.inverseOf = name
	return q
}
