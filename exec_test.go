package activerecord

import (
	"context"
	"database/sql/driver"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	conn, mock := newTestConn(t)

	expectQuery(t, mock, "SELECT COUNT(*) FROM `customer` WHERE status = ?",
		[]driver.Value{"active"},
		sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(42))

	n, err := conn.Find("Customer").Where(sq.Eq{"status": "active"}).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestCountDistinctUsesDerivedTable(t *testing.T) {
	conn, mock := newTestConn(t)

	expectQuery(t, mock,
		"SELECT COUNT(*) FROM (SELECT DISTINCT customer_id FROM `order`) `c`", nil,
		sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(7))

	n, err := conn.Find("Order").Select("customer_id").Distinct().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestCountAfterJoinWithIsStable(t *testing.T) {
	conn, mock := newTestConn(t)
	ctx := context.Background()

	q := conn.Find("Customer").JoinWith("orders")

	countSQL := "SELECT COUNT(*) FROM `customer` INNER JOIN `order` ON (`order`.`customer_id` = `customer`.`id`)"
	expectQuery(t, mock, countSQL, nil, sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(3))
	expectQuery(t, mock, countSQL, nil, sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(3))

	first, err := q.Count(ctx)
	require.NoError(t, err)
	// Counting again must not re-resolve the join request into a second
	// join clause.
	second, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExists(t *testing.T) {
	conn, mock := newTestConn(t)

	expectQuery(t, mock, "SELECT 1 FROM `customer` WHERE status = ? LIMIT 1",
		[]driver.Value{"active"},
		sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := conn.Find("Customer").Where(sq.Eq{"status": "active"}).Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExistsFalse(t *testing.T) {
	conn, mock := newTestConn(t)

	expectQuery(t, mock, "SELECT 1 FROM `customer` LIMIT 1", nil,
		sqlmock.NewRows([]string{"1"}))

	ok, err := conn.Find("Customer").Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindBySQLPopulates(t *testing.T) {
	conn, mock := newTestConn(t)
	ctx := context.Background()

	expectQuery(t, mock, "SELECT * FROM customer WHERE id > ?",
		[]driver.Value{5},
		sqlmock.NewRows([]string{"id"}).AddRow(6))
	expectQuery(t, mock, "SELECT * FROM `order` WHERE `order`.`customer_id` IN (?)",
		[]driver.Value{6},
		sqlmock.NewRows([]string{"id", "customer_id"}).AddRow(10, 6))

	customers, err := conn.FindBySQL("Customer", "SELECT * FROM customer WHERE id > ?", 5).
		With("orders").
		All(ctx)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, customers, 1)

	orders, ok := customers[0].Related("orders")
	require.True(t, ok)
	assert.Len(t, orders.([]*Record), 1)
}

func TestQueryRowsNormalizesBytes(t *testing.T) {
	conn, mock := newTestConn(t)

	expectQuery(t, mock, "SELECT id, name FROM customer", nil,
		sqlmock.NewRows([]string{"id", "name"}).AddRow(1, []byte("Ann")))

	rows, err := conn.QueryRows(context.Background(), "SELECT id, name FROM customer")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ann", rows[0]["name"])
}

func TestRowsSkipsPopulation(t *testing.T) {
	conn, mock := newTestConn(t)

	expectQuery(t, mock, "SELECT * FROM `customer`", nil,
		sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(1))

	rows, err := conn.Find("Customer").Rows(context.Background())
	require.NoError(t, err)
	// No dedup, no eager loading on raw rows.
	assert.Len(t, rows, 2)
}

func TestQueryExecutionError(t *testing.T) {
	conn, mock := newTestConn(t)

	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	_, err := conn.Find("Customer").All(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}
