package activerecord

import (
	"fmt"
	"sync"

	"github.com/darkdef/active-record/internal/naming"
)

// RelationFunc declares a named relation. It receives the record the
// relation is being resolved for and returns the relation query, typically
// built with Record.HasOne or Record.HasMany.
type RelationFunc func(r *Record) *Query

// RecordType describes one mapped table: its name, primary key and the
// relations that can be resolved from its records.
type RecordType struct {
	// Name identifies the type in the registry, e.g. "Order".
	Name string

	// Table is the table name. When empty it is derived from Name
	// ("OrderItem" becomes "order_item").
	Table string

	// PrimaryKey lists the primary key columns in order. Required for
	// scalar find conditions and for join-row deduplication.
	PrimaryKey []string

	// Columns optionally restricts the keys accepted in structured find
	// conditions. Empty means any syntactically valid column name.
	Columns []string

	// Relations maps relation names to their declarations.
	Relations map[string]RelationFunc
}

func (t *RecordType) columnAllowed(name string) bool {
	if len(t.Columns) == 0 {
		return true
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Registry holds the record types known to a connection. It is safe for
// concurrent use once populated; registration is expected at startup.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*RecordType
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*RecordType)}
}

// Register adds record types, filling in default table names. Registering a
// name twice replaces the earlier descriptor.
func (g *Registry) Register(types ...*RecordType) *Registry {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range types {
		if t.Table == "" {
			t.Table = naming.TableName(t.Name)
		}
		g.types[t.Name] = t
	}
	return g
}

// Type looks up a record type by name.
func (g *Registry) Type(name string) (*RecordType, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordType, name)
	}
	return t, nil
}
