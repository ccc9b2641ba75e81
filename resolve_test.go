package activerecord

import (
	"context"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinWithSingleRelation(t *testing.T) {
	conn, _ := newTestConn(t)

	sqlStr, args, err := conn.Find("Customer").JoinWith("orders").BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `customer`.* FROM `customer` INNER JOIN `order` ON (`order`.`customer_id` = `customer`.`id`)",
		sqlStr)
	assert.Empty(t, args)
}

func TestJoinWithLeftJoin(t *testing.T) {
	conn, _ := newTestConn(t)

	sqlStr, _, err := conn.Find("Customer").LeftJoinWith("orders").BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `customer`.* FROM `customer` LEFT JOIN `order` ON (`order`.`customer_id` = `customer`.`id`)",
		sqlStr)
}

func TestJoinWithDottedPathSharesPrefix(t *testing.T) {
	conn, _ := newTestConn(t)

	// Both paths go through orders; the order join must appear once.
	sqlStr, _, err := conn.Find("Customer").
		JoinWith("orders", "orders.orderItems").
		BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `customer`.* FROM `customer`"+
			" INNER JOIN `order` ON (`order`.`customer_id` = `customer`.`id`)"+
			" INNER JOIN `order_item` ON (`order_item`.`order_id` = `order`.`id`)",
		sqlStr)
}

func TestJoinWithRepeatedRelationDeduplicates(t *testing.T) {
	conn, _ := newTestConn(t)

	sqlStr, _, err := conn.Find("Customer").
		JoinWith("orders").
		JoinWith("orders").
		BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `customer`.* FROM `customer` INNER JOIN `order` ON (`order`.`customer_id` = `customer`.`id`)",
		sqlStr)
}

func TestJoinWithSameTargetTableKeepsFirstJoin(t *testing.T) {
	conn, _ := newTestConn(t)

	// Two relations resolve to the unaliased order table; a second join
	// against it would be a non-unique table reference.
	registry := testRegistry()
	registry.Register(&RecordType{
		Name:       "Customer",
		PrimaryKey: []string{"id"},
		Relations: map[string]RelationFunc{
			"orders": func(r *Record) *Query {
				return r.HasMany("Order", Link{{"customer_id", "id"}})
			},
			"openOrders": func(r *Record) *Query {
				return r.HasMany("Order", Link{{"customer_id", "id"}}).
					OnCondition(sq.Eq{"`order`.`status`": "open"})
			},
		},
	})
	conn2 := OpenDB(conn.DB(), registry)

	sqlStr, args, err := conn2.Find("Customer").
		JoinWith("orders", "openOrders").
		BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `customer`.* FROM `customer` INNER JOIN `order` ON (`order`.`customer_id` = `customer`.`id`)",
		sqlStr)
	assert.Empty(t, args)
}

func TestJoinWithViaJunction(t *testing.T) {
	conn, _ := newTestConn(t)

	sqlStr, _, err := conn.Find("Order").JoinWith("items").BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `order`.* FROM `order`"+
			" INNER JOIN `order_item` ON (`order_item`.`order_id` = `order`.`id`)"+
			" INNER JOIN `item` ON (`item`.`id` = `order_item`.`item_id`)",
		sqlStr)
}

func TestJoinWithKeepsExistingJoin(t *testing.T) {
	conn, _ := newTestConn(t)

	// The caller already joined the order table; the generated join for the
	// same table must yield and the caller's clause must stay.
	sqlStr, _, err := conn.Find("Customer").
		Join(LeftJoin, "order", "", sq.Expr("`order`.`customer_id` = `customer`.`id` AND `order`.`status` = ?", "open")).
		JoinWith("orders").
		BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `customer`.* FROM `customer`"+
			" LEFT JOIN `order` ON `order`.`customer_id` = `customer`.`id` AND `order`.`status` = ?",
		sqlStr)
}

func TestJoinWithAppliesCallbackAndMergesState(t *testing.T) {
	conn, _ := newTestConn(t)

	sqlStr, args, err := conn.Find("Customer").
		JoinWithQuery("orders", InnerJoin, func(q *Query) {
			q.AndWhere(sq.Eq{"`order`.`status`": "open"}).AddOrderBy("`order`.`id`")
		}).
		BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `customer`.* FROM `customer`"+
			" INNER JOIN `order` ON (`order`.`customer_id` = `customer`.`id`)"+
			" WHERE `order`.`status` = ? ORDER BY `order`.`id`",
		sqlStr)
	assert.Equal(t, []any{"open"}, args)
}

func TestJoinWithRelationOnCondition(t *testing.T) {
	conn, _ := newTestConn(t)

	registry := testRegistry()
	registry.Register(&RecordType{
		Name:       "Shipment",
		PrimaryKey: []string{"id"},
		Relations: map[string]RelationFunc{
			"activeOrder": func(r *Record) *Query {
				return r.HasOne("Order", Link{{"id", "order_id"}}).
					OnCondition(sq.Eq{"`order`.`status`": "active"})
			},
		},
	})
	conn2 := OpenDB(conn.DB(), registry)

	sqlStr, args, err := conn2.Find("Shipment").JoinWith("activeOrder").BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `shipment`.* FROM `shipment`"+
			" INNER JOIN `order` ON (`order`.`id` = `shipment`.`order_id` AND `order`.`status` = ?)",
		sqlStr)
	assert.Equal(t, []any{"active"}, args)
}

func TestJoinWithUnknownRelation(t *testing.T) {
	conn, _ := newTestConn(t)

	_, _, err := conn.Find("Customer").JoinWith("bogus").BuildSQL(context.Background())
	require.ErrorIs(t, err, ErrUnknownRelation)
	assert.Contains(t, err.Error(), "Customer.bogus")
}

func TestBuildSQLIdempotent(t *testing.T) {
	conn, _ := newTestConn(t)

	q := conn.Find("Customer").JoinWith("orders").Where(sq.Eq{"`customer`.`status`": "active"})

	first, firstArgs, err := q.BuildSQL(context.Background())
	require.NoError(t, err)
	second, secondArgs, err := q.BuildSQL(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstArgs, secondArgs)
	assert.Empty(t, q.joinRequests)
}

func TestViaTableDefaultJunctionName(t *testing.T) {
	conn, _ := newTestConn(t)

	registry := testRegistry()
	registry.Register(&RecordType{
		Name:       "Tag",
		PrimaryKey: []string{"id"},
		Relations: map[string]RelationFunc{
			"items": func(r *Record) *Query {
				return r.HasMany("Item", Link{{"id", "item_id"}}).
					ViaTable("", Link{{"tag_id", "id"}})
			},
		},
	})
	conn2 := OpenDB(conn.DB(), registry)

	sqlStr, _, err := conn2.Find("Tag").JoinWith("items").BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `tag`.* FROM `tag`"+
			" INNER JOIN `item_tag` ON (`item_tag`.`tag_id` = `tag`.`id`)"+
			" INNER JOIN `item` ON (`item`.`id` = `item_tag`.`item_id`)",
		sqlStr)
}

func TestJoinWithAlias(t *testing.T) {
	conn, _ := newTestConn(t)

	sqlStr, _, err := conn.Find("Customer").
		Alias("c").
		JoinWith("orders").
		BuildSQL(context.Background())
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `c`.* FROM `customer` `c` INNER JOIN `order` ON (`order`.`customer_id` = `c`.`id`)",
		sqlStr)
}
