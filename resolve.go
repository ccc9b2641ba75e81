package activerecord

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/darkdef/active-record/internal/sqlutil"
)

// buildJoinWith turns the queued join-with requests into concrete join
// clauses. Relation paths sharing a prefix share the joins for that prefix.
// Joins present on the query before the first JoinWith call survive: the
// generated joins are deduplicated against them and they are re-appended
// after the generated ones.
func (q *Query) buildJoinWith(ctx context.Context) error {
	existing := q.joins
	q.joins = nil

	t, err := q.recordType()
	if err != nil {
		return err
	}
	template, err := q.conn.factory.New(t.Name, "", q.conn)
	if err != nil {
		return fmt.Errorf("failed to instantiate %s: %w", t.Name, err)
	}

	resolved := make(map[string]*Query)
	requests := q.joinRequests
	q.joinRequests = nil
	for _, req := range requests {
		for _, spec := range req.Relations {
			if err := q.joinWithPath(ctx, template, spec, req, resolved); err != nil {
				return err
			}
		}
		for _, spec := range req.Relations {
			if req.eager(spec.Path) {
				q.addWithSpec(withSpec{path: spec.Path, apply: spec.Apply})
			}
		}
	}

	joins, err := dedupJoins(q.joins, existing)
	if err != nil {
		return err
	}
	q.joins = append(joins, existing...)
	return nil
}

// joinWithPath walks one dotted relation path, emitting a join per segment
// not already resolved for a previous path.
func (q *Query) joinWithPath(ctx context.Context, template *Record, spec WithSpec, req JoinWithRequest, resolved map[string]*Query) error {
	segments := splitPath(spec.Path)
	if len(segments) > maxRelationDepth {
		return fmt.Errorf("%w: %q", ErrRelationDepth, spec.Path)
	}

	parent := q
	parentRec := template
	prefix := ""
	for i, name := range segments {
		fullPath := prefix + name
		last := i == len(segments)-1

		child, ok := resolved[fullPath]
		if !ok {
			rel, err := parentRec.RelationQuery(name)
			if err != nil {
				return err
			}
			if last && spec.Apply != nil {
				spec.Apply(rel)
			}
			if rel.err != nil {
				return rel.err
			}
			if len(rel.joinRequests) > 0 {
				if err := rel.buildJoinWith(ctx); err != nil {
					return err
				}
			}
			if err := q.joinWithRelation(parent, rel, req.joinTypeFor(fullPath), 0); err != nil {
				return fmt.Errorf("failed to join relation %q: %w", fullPath, err)
			}
			// Hoist joins the relation resolved for itself.
			q.joins = append(q.joins, rel.joins...)
			rel.joins = nil
			resolved[fullPath] = rel
			child = rel
		}

		if !last {
			childRec, err := q.conn.factory.New(child.typeName, "", q.conn)
			if err != nil {
				return fmt.Errorf("failed to instantiate %s: %w", child.typeName, err)
			}
			parent = child
			parentRec = childRec
			prefix = fullPath + "."
		}
	}
	return nil
}

// joinWithRelation emits the join clause linking child to parent. A via
// relation becomes two joins chained through the junction.
func (q *Query) joinWithRelation(parent, child *Query, joinType string, depth int) error {
	if depth > maxRelationDepth {
		return ErrRelationDepth
	}
	if child.err != nil {
		return child.err
	}
	if child.via != nil {
		junction := child.via.query
		if err := q.joinWithRelation(parent, junction, joinType, depth+1); err != nil {
			return err
		}
		via := child.via
		child.via = nil
		err := q.joinWithRelation(junction, child, joinType, depth+1)
		child.via = via
		return err
	}

	if len(child.link) == 0 && child.on == nil {
		return fmt.Errorf("%w: joining %s", ErrMissingLink, child.typeName)
	}

	childTable, err := child.resolvedTable()
	if err != nil {
		return err
	}
	childAlias, err := child.resolvedAlias()
	if err != nil {
		return err
	}
	parentAlias, err := parent.resolvedAlias()
	if err != nil {
		return err
	}

	var on sq.And
	for _, p := range child.link {
		on = append(on, sq.Expr(
			sqlutil.Qualify(childAlias, p.Target)+" = "+sqlutil.Qualify(parentAlias, p.Source)))
	}
	if child.on != nil {
		on = append(on, child.on)
	}

	q.joins = append(q.joins, joinClause{
		joinType: joinType,
		table:    childTable,
		alias:    child.fromAlias,
		on:       on,
	})

	// The relation query's own refinements move onto the primary query.
	if child.where != nil {
		q.where = andCond(q.where, child.where)
	}
	q.orderBy = append(q.orderBy, child.orderBy...)
	q.groupBy = append(q.groupBy, child.groupBy...)
	return nil
}

// dedupJoins removes structurally identical generated joins, keeps at most
// one generated join per target table or alias, then drops generated joins
// whose target is already joined by the caller's own join clauses.
func dedupJoins(generated, existing []joinClause) ([]joinClause, error) {
	seen := make(map[string]bool, len(generated))
	out := generated[:0]
	for _, j := range generated {
		sig, err := joinSignature(j)
		if err != nil {
			return nil, err
		}
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, j)
	}

	// Two structurally different joins against one unaliased table would be
	// a non-unique table reference; the first one wins.
	targets := make(map[string]bool, len(out))
	byTarget := out[:0]
	for _, j := range out {
		tgt := joinTarget(j)
		if targets[tgt] {
			continue
		}
		targets[tgt] = true
		byTarget = append(byTarget, j)
	}
	out = byTarget

	if len(existing) == 0 {
		return out, nil
	}
	taken := make(map[string]bool, len(existing))
	for _, j := range existing {
		taken[joinTarget(j)] = true
	}
	filtered := out[:0]
	for _, j := range out {
		if taken[joinTarget(j)] {
			continue
		}
		filtered = append(filtered, j)
	}
	return filtered, nil
}

func joinSignature(j joinClause) (string, error) {
	var b strings.Builder
	b.WriteString(j.joinType)
	b.WriteByte('|')
	b.WriteString(j.table)
	b.WriteByte('|')
	b.WriteString(j.alias)
	b.WriteByte('|')
	if j.on != nil {
		onSQL, onArgs, err := j.on.ToSql()
		if err != nil {
			return "", fmt.Errorf("failed to render join condition: %w", err)
		}
		b.WriteString(onSQL)
		for _, a := range onArgs {
			fmt.Fprintf(&b, "|%v", a)
		}
	}
	return b.String(), nil
}

func joinTarget(j joinClause) string {
	if j.alias != "" {
		return j.alias
	}
	return j.table
}
