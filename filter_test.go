package activerecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTupleInConditionSingleColumn(t *testing.T) {
	sqlStr, args, err := buildTupleInCondition(
		[]string{"`order`.`customer_id`"},
		[]linkTuple{{values: []any{1}}, {values: []any{2}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "`order`.`customer_id` IN (?,?)", sqlStr)
	assert.Equal(t, []any{1, 2}, args)
}

func TestBuildTupleInConditionComposite(t *testing.T) {
	sqlStr, args, err := buildTupleInCondition(
		[]string{"`oi`.`order_id`", "`oi`.`item_id`"},
		[]linkTuple{{values: []any{1, 10}}, {values: []any{2, 20}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "(`oi`.`order_id`, `oi`.`item_id`) IN ((?,?), (?,?))", sqlStr)
	assert.Equal(t, []any{1, 10, 2, 20}, args)
}

func TestBuildTupleInConditionWidthMismatch(t *testing.T) {
	_, _, err := buildTupleInCondition(
		[]string{"`a`", "`b`"},
		[]linkTuple{{values: []any{1}}},
	)
	require.Error(t, err)
}

func TestUniqueLinkTuples(t *testing.T) {
	models := []any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
		map[string]any{"id": 1},
		map[string]any{"id": nil},
		map[string]any{"other": 3},
	}

	tuples := uniqueLinkTuples(models, []string{"id"})
	require.Len(t, tuples, 2)
	assert.Equal(t, []any{1}, tuples[0].values)
	assert.Equal(t, []any{2}, tuples[1].values)
}

func TestUniqueLinkTuplesComposite(t *testing.T) {
	models := []any{
		map[string]any{"a": 1, "b": 1},
		map[string]any{"a": 1, "b": 2},
		map[string]any{"a": 1, "b": 1},
	}

	tuples := uniqueLinkTuples(models, []string{"a", "b"})
	assert.Len(t, tuples, 2)
}

func TestModelKey(t *testing.T) {
	conn, _ := newTestConn(t)
	rec, err := conn.factory.New("OrderItem", "", conn)
	require.NoError(t, err)
	rec.setAttributes(map[string]any{"order_id": int64(1), "item_id": int64(10)})

	key, ok := modelKey(rec, []string{"order_id", "item_id"})
	require.True(t, ok)

	row := map[string]any{"order_id": int64(1), "item_id": int64(10)}
	mapKey, ok := modelKey(row, []string{"order_id", "item_id"})
	require.True(t, ok)
	assert.Equal(t, key, mapKey)

	_, ok = modelKey(row, []string{"order_id", "missing"})
	assert.False(t, ok)
}

func TestTupleKeyDistinguishesComposites(t *testing.T) {
	a := tupleKey([]any{"1", "23"})
	b := tupleKey([]any{"12", "3"})
	assert.NotEqual(t, a, b)
}

func TestLinkFilterEmptyValues(t *testing.T) {
	conn, _ := newTestConn(t)

	rec, err := conn.factory.New("Customer", "", conn)
	require.NoError(t, err)
	// No id attribute: the relation can match nothing.
	rel, err := rec.RelationQuery("orders")
	require.NoError(t, err)

	cond, err := rel.linkFilter([]any{rec})
	require.NoError(t, err)
	sqlStr, _, err := cond.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "0=1", sqlStr)
}
