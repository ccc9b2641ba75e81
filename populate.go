package activerecord

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/darkdef/active-record/internal/observability"
)

// populateAll turns scanned rows into models and runs the post-processing
// pipeline: join-row deduplication, eager relation loading and inverse
// back-references.
func (q *Query) populateAll(ctx context.Context, rows []map[string]any) ([]any, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	models, err := q.createModels(rows)
	if err != nil {
		return nil, err
	}
	if len(q.joins) > 0 && q.indexColumn == "" && q.indexFunc == nil {
		models, err = q.dedupByPrimaryKey(ctx, models)
		if err != nil {
			return nil, err
		}
	}
	if len(q.withSpecs) > 0 {
		if err := q.findWith(ctx, q.withSpecs, models); err != nil {
			return nil, err
		}
	}
	if q.inverseOf != "" && q.primaryRecord != nil {
		multiple, err := q.inverseMultiple()
		if err != nil {
			return nil, err
		}
		setInverseValue(models, q.inverseOf, q.primaryRecord, multiple)
	}
	return models, nil
}

func (q *Query) createModels(rows []map[string]any) ([]any, error) {
	models := make([]any, len(rows))
	if q.asArray {
		for i, row := range rows {
			models[i] = row
		}
		return models, nil
	}
	for i, row := range rows {
		rec, err := q.conn.factory.New(q.typeName, q.from, q.conn)
		if err != nil {
			return nil, err
		}
		rec.setAttributes(row)
		models[i] = rec
	}
	return models, nil
}

// dedupByPrimaryKey drops rows repeating a primary key value, which joins
// against to-many relations produce. Rows missing any key column are kept;
// they cannot be told apart.
func (q *Query) dedupByPrimaryKey(ctx context.Context, models []any) ([]any, error) {
	t, err := q.recordType()
	if err != nil {
		return nil, err
	}
	if len(t.PrimaryKey) == 0 {
		return nil, fmt.Errorf("%w: %s needs one to deduplicate joined rows", ErrNoPrimaryKey, t.Name)
	}
	seen := make(map[string]struct{}, len(models))
	out := make([]any, 0, len(models))
	for _, m := range models {
		key, ok := modelKey(m, t.PrimaryKey)
		if !ok {
			out = append(out, m)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	q.conn.metrics.RecordDeduplicated(ctx, t.Table, int64(len(models)-len(out)))
	return out, nil
}

type withNode struct {
	name     string
	apply    func(*Query)
	children []withSpec
}

// groupWithSpecs splits dotted paths at the first segment so each relation
// loads once, carrying deeper segments as nested specs.
func groupWithSpecs(specs []withSpec) []*withNode {
	var nodes []*withNode
	index := make(map[string]*withNode)
	for _, spec := range specs {
		name, rest, _ := strings.Cut(spec.path, ".")
		node, ok := index[name]
		if !ok {
			node = &withNode{name: name}
			index[name] = node
			nodes = append(nodes, node)
		}
		if rest == "" {
			if spec.apply != nil {
				node.apply = spec.apply
			}
		} else {
			node.children = append(node.children, withSpec{path: rest, apply: spec.apply})
		}
	}
	return nodes
}

// findWith eager-loads the requested relations onto models. Each relation
// costs one query no matter how many models there are.
func (q *Query) findWith(ctx context.Context, specs []withSpec, models []any) error {
	template, err := q.conn.factory.New(q.typeName, "", q.conn)
	if err != nil {
		return err
	}
	for _, node := range groupWithSpecs(specs) {
		rel, err := template.RelationQuery(node.name)
		if err != nil {
			return err
		}
		if node.apply != nil {
			node.apply(rel)
		}
		if rel.err != nil {
			return rel.err
		}
		if q.asArray {
			rel.asArray = true
		}
		for _, child := range node.children {
			rel.addWithSpec(child)
		}
		if _, err := rel.populateRelation(ctx, node.name, models, 0); err != nil {
			return err
		}
	}
	return nil
}

// populateRelation loads this relation for every owner in one query and
// attaches the results. Via relations resolve their junction rows first,
// also in one query across all owners.
func (rel *Query) populateRelation(ctx context.Context, name string, owners []any, depth int) (related []any, err error) {
	if depth > maxRelationDepth {
		return nil, fmt.Errorf("%w: relation %q", ErrRelationDepth, name)
	}
	if rel.err != nil {
		return nil, rel.err
	}
	ctx, span := observability.StartSpan(ctx, "query.eager_load",
		attribute.String("relation", name),
		attribute.Int("owners", len(owners)),
	)
	defer func() { observability.EndSpan(span, err) }()

	var viaModels []any
	var viaQuery *Query
	switch {
	case rel.via != nil && rel.via.name == "":
		viaQuery = rel.via.query
		viaModels, err = viaQuery.findJunctionRows(ctx, owners)
		if err != nil {
			return nil, err
		}
	case rel.via != nil:
		viaRunner := rel.via.query.clone()
		viaRunner.primaryRecord = nil
		if rel.asArray {
			viaRunner.asArray = true
		}
		viaModels, err = viaRunner.populateRelation(ctx, rel.via.name, owners, depth+1)
		if err != nil {
			return nil, err
		}
		viaQuery = viaRunner
	}

	filterSource := owners
	if rel.via != nil {
		filterSource = viaModels
	}
	cond, err := rel.linkFilter(filterSource)
	if err != nil {
		return nil, err
	}

	runner := rel.clone()
	runner.primaryRecord = nil
	runner.via = nil
	runner.where = andCond(runner.where, cond)

	if !rel.multiple && len(owners) == 1 {
		model, err := runner.oneModel(ctx)
		if err != nil {
			return nil, err
		}
		modelSetRelated(owners[0], name, model)
		if model == nil {
			return nil, nil
		}
		if rel.inverseOf != "" {
			multiple, err := rel.inverseMultiple()
			if err != nil {
				return nil, err
			}
			setInverseValue([]any{model}, rel.inverseOf, owners[0], multiple)
		}
		return []any{model}, nil
	}

	// Indexing is delayed until buckets exist so link values stay reachable
	// by position.
	runner.indexColumn, runner.indexFunc = "", nil
	related, err = runner.allModels(ctx)
	if err != nil {
		return nil, err
	}
	rel.conn.metrics.RecordEagerLoad(ctx, name, int64(len(owners)))

	buckets := rel.buildBuckets(related, viaQuery, viaModels)
	ownerCols := rel.ownerKeyColumns()

	inverseMultiple := false
	if rel.inverseOf != "" {
		inverseMultiple, err = rel.inverseMultiple()
		if err != nil {
			return nil, err
		}
	}

	for _, owner := range owners {
		var items []any
		if key, ok := modelKey(owner, ownerCols); ok {
			items = buckets[key]
		}
		modelSetRelated(owner, name, rel.finalizeBucket(items))
		if rel.inverseOf != "" {
			setInverseValue(items, rel.inverseOf, owner, inverseMultiple)
		}
	}
	return related, nil
}

// buildBuckets groups related models by their link key. With junction rows
// the groups are re-keyed to owner keys; a repeated owner/related pairing
// in the junction contributes once.
func (rel *Query) buildBuckets(related []any, viaQuery *Query, viaModels []any) map[string][]any {
	buckets := make(map[string][]any)
	targets := rel.link.targets()

	if viaModels == nil {
		for _, m := range related {
			if key, ok := modelKey(m, targets); ok {
				buckets[key] = append(buckets[key], m)
			}
		}
		return buckets
	}

	ownersByItem := make(map[string]map[string]bool, len(viaModels))
	viaTargets := viaQuery.link.targets()
	relSources := rel.link.sources()
	for _, vm := range viaModels {
		ownerKey, ok1 := modelKey(vm, viaTargets)
		itemKey, ok2 := modelKey(vm, relSources)
		if !ok1 || !ok2 {
			continue
		}
		set := ownersByItem[itemKey]
		if set == nil {
			set = make(map[string]bool)
			ownersByItem[itemKey] = set
		}
		set[ownerKey] = true
	}
	// Iterating related models, not the junction map, keeps each owner's
	// bucket in query order.
	for _, m := range related {
		key, ok := modelKey(m, targets)
		if !ok {
			continue
		}
		for ownerKey := range ownersByItem[key] {
			buckets[ownerKey] = append(buckets[ownerKey], m)
		}
	}
	return buckets
}

// ownerKeyColumns returns the owner-side columns whose values address the
// buckets: the relation's source columns, or the deepest via link's source
// columns when the relation goes through a via chain.
func (rel *Query) ownerKeyColumns() []string {
	if rel.via == nil {
		return rel.link.sources()
	}
	deepest := rel.via.query
	for deepest.via != nil {
		deepest = deepest.via.query
	}
	return deepest.link.sources()
}

// finalizeBucket converts bucket items into the value attached to an
// owner: the first item for to-one relations, a typed slice or an indexed
// map for to-many.
func (rel *Query) finalizeBucket(items []any) any {
	if !rel.multiple {
		if len(items) == 0 {
			return nil
		}
		return items[0]
	}
	if rel.indexColumn != "" || rel.indexFunc != nil {
		return rel.indexModels(items)
	}
	if rel.asArray {
		out := make([]map[string]any, 0, len(items))
		for _, m := range items {
			if row, ok := m.(map[string]any); ok {
				out = append(out, row)
			}
		}
		return out
	}
	out := make([]*Record, 0, len(items))
	for _, m := range items {
		if rec, ok := m.(*Record); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (rel *Query) indexModels(items []any) any {
	if rel.asArray {
		out := make(map[string]map[string]any, len(items))
		for _, m := range items {
			if row, ok := m.(map[string]any); ok {
				out[rel.indexKey(m)] = row
			}
		}
		return out
	}
	out := make(map[string]*Record, len(items))
	for _, m := range items {
		if rec, ok := m.(*Record); ok {
			out[rel.indexKey(m)] = rec
		}
	}
	return out
}

func (q *Query) indexKey(m any) string {
	if q.indexFunc != nil {
		if rec, ok := m.(*Record); ok {
			return q.indexFunc(rec)
		}
	}
	return fmt.Sprint(modelValue(m, q.indexColumn))
}

// inverseMultiple resolves whether the back-reference named by InverseOf is
// a to-many relation on the target type.
func (rel *Query) inverseMultiple() (bool, error) {
	template, err := rel.conn.factory.New(rel.typeName, "", rel.conn)
	if err != nil {
		return false, err
	}
	inv, err := template.RelationQuery(rel.inverseOf)
	if err != nil {
		return false, fmt.Errorf("failed to resolve inverse relation: %w", err)
	}
	return inv.multiple, nil
}

// setInverseValue attaches owner to every related model under the inverse
// relation name, wrapped in a slice when the inverse is to-many.
func setInverseValue(related []any, inverseName string, owner any, multiple bool) {
	value := owner
	if multiple {
		switch o := owner.(type) {
		case *Record:
			value = []*Record{o}
		case map[string]any:
			value = []map[string]any{o}
		}
	}
	for _, m := range related {
		modelSetRelated(m, inverseName, value)
	}
}
