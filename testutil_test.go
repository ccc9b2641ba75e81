package activerecord

import (
	"database/sql/driver"
	"log/slog"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// testRegistry declares a small shop schema: customers own orders, orders
// reach items through the order_item junction both directly and through
// the mapped OrderItem type.
func testRegistry() *Registry {
	return NewRegistry().Register(
		&RecordType{
			Name:       "Customer",
			PrimaryKey: []string{"id"},
			Relations: map[string]RelationFunc{
				"orders": func(r *Record) *Query {
					return r.HasMany("Order", Link{{"customer_id", "id"}}).InverseOf("customer")
				},
				"profile": func(r *Record) *Query {
					return r.HasOne("Profile", Link{{"id", "profile_id"}})
				},
			},
		},
		&RecordType{
			Name:       "Order",
			PrimaryKey: []string{"id"},
			Relations: map[string]RelationFunc{
				"customer": func(r *Record) *Query {
					return r.HasOne("Customer", Link{{"id", "customer_id"}})
				},
				"orderItems": func(r *Record) *Query {
					return r.HasMany("OrderItem", Link{{"order_id", "id"}})
				},
				"items": func(r *Record) *Query {
					return r.HasMany("Item", Link{{"id", "item_id"}}).
						ViaTable("order_item", Link{{"order_id", "id"}})
				},
				"itemsVia": func(r *Record) *Query {
					return r.HasMany("Item", Link{{"id", "item_id"}}).Via("orderItems")
				},
			},
		},
		&RecordType{Name: "OrderItem", Table: "order_item", PrimaryKey: []string{"order_id", "item_id"}},
		&RecordType{Name: "Item", PrimaryKey: []string{"id"}},
		&RecordType{
			Name:       "Profile",
			PrimaryKey: []string{"id"},
			Columns:    []string{"id", "bio"},
		},
		&RecordType{Name: "AuditLog"},
	)
}

func newTestConn(t *testing.T) (*Conn, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn := OpenDB(db, testRegistry(), WithLogger(slog.New(slog.DiscardHandler)))
	return conn, mock
}

func expectQuery(t *testing.T, mock sqlmock.Sqlmock, sqlText string, args []driver.Value, rows *sqlmock.Rows) {
	t.Helper()

	expectation := mock.ExpectQuery(regexp.QuoteMeta(sqlText))
	if args != nil {
		expectation.WithArgs(args...)
	}
	expectation.WillReturnRows(rows)
}
