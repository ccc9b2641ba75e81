package activerecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDerivesTableNames(t *testing.T) {
	registry := NewRegistry().Register(
		&RecordType{Name: "OrderItem"},
		&RecordType{Name: "Customer", Table: "customers"},
	)

	tests := []struct {
		typeName string
		table    string
	}{
		{"OrderItem", "order_item"},
		{"Customer", "customers"},
	}
	for _, tc := range tests {
		typ, err := registry.Type(tc.typeName)
		require.NoError(t, err)
		assert.Equal(t, tc.table, typ.Table)
	}
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := NewRegistry().Type("Nope")
	require.ErrorIs(t, err, ErrUnknownRecordType)
	assert.Contains(t, err.Error(), "Nope")
}

func TestRecordAccessors(t *testing.T) {
	conn, _ := newTestConn(t)

	rec, err := conn.factory.New("Customer", "", conn)
	require.NoError(t, err)
	rec.setAttributes(map[string]any{"id": int64(1), "name": "Ann"})

	assert.Equal(t, "Customer", rec.TypeName())
	assert.Equal(t, "customer", rec.TableName())
	assert.Equal(t, "Ann", rec.Get("name"))
	assert.Nil(t, rec.Get("missing"))

	_, ok := rec.Related("orders")
	assert.False(t, ok)
	rec.SetRelated("orders", []*Record{})
	v, ok := rec.Related("orders")
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestRecordUnknownRelation(t *testing.T) {
	conn, _ := newTestConn(t)

	rec, err := conn.factory.New("Customer", "", conn)
	require.NoError(t, err)

	_, err = rec.RelationQuery("bogus")
	require.ErrorIs(t, err, ErrUnknownRelation)
	assert.Contains(t, err.Error(), "Customer.bogus")
}

func TestRecordTableOverride(t *testing.T) {
	conn, _ := newTestConn(t)

	rec, err := conn.factory.New("Customer", "customer_archive", conn)
	require.NoError(t, err)
	assert.Equal(t, "customer_archive", rec.TableName())
}
