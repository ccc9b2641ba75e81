package activerecord

import "fmt"

// Record is one populated row of a record type plus its resolved relations.
// Attribute values hold whatever the database driver produced for each
// column; byte slices are normalized to strings during scanning.
type Record struct {
	typ           *RecordType
	conn          *Conn
	tableOverride string
	attrs         map[string]any
	related       map[string]any
}

// Factory instantiates records during population. The default factory
// creates plain Records from the connection's registry; callers embed their
// own to hook instantiation.
type Factory interface {
	New(typeName, tableOverride string, conn *Conn) (*Record, error)
}

type registryFactory struct{}

func (registryFactory) New(typeName, tableOverride string, conn *Conn) (*Record, error) {
	typ, err := conn.registry.Type(typeName)
	if err != nil {
		return nil, err
	}
	return &Record{
		typ:           typ,
		conn:          conn,
		tableOverride: tableOverride,
		attrs:         make(map[string]any),
		related:       make(map[string]any),
	}, nil
}

// TypeName returns the record's type name.
func (r *Record) TypeName() string { return r.typ.Name }

// TableName returns the table the record was read from.
func (r *Record) TableName() string {
	if r.tableOverride != "" {
		return r.tableOverride
	}
	return r.typ.Table
}

// Get returns the value of an attribute, or nil when the column was not
// selected.
func (r *Record) Get(column string) any { return r.attrs[column] }

// Attributes returns the record's attribute map. The map is shared, not
// copied.
func (r *Record) Attributes() map[string]any { return r.attrs }

func (r *Record) setAttributes(row map[string]any) {
	for k, v := range row {
		r.attrs[k] = v
	}
}

// Related returns a previously resolved relation value and whether one has
// been attached under that name.
func (r *Record) Related(name string) (any, bool) {
	v, ok := r.related[name]
	return v, ok
}

// SetRelated attaches a resolved relation value. Population uses this to
// store eager-loaded records; callers may also prime relations manually.
func (r *Record) SetRelated(name string, value any) {
	r.related[name] = value
}

// RelationQuery resolves a declared relation into its query. The returned
// query carries this record as its relational context, so All or One on it
// fetch the related rows for this record only.
func (r *Record) RelationQuery(name string) (*Query, error) {
	fn, ok := r.typ.Relations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, r.typ.Name, name)
	}
	q := fn(r)
	if q == nil {
		return nil, fmt.Errorf("%w: %s.%s returned no query", ErrUnknownRelation, r.typ.Name, name)
	}
	return q, nil
}

// HasOne declares a to-one relation to typeName. Each link pair equates a
// target-table column with a column of this record.
func (r *Record) HasOne(typeName string, link Link) *Query {
	return r.relationQuery(typeName, link, false)
}

// HasMany declares a to-many relation to typeName.
func (r *Record) HasMany(typeName string, link Link) *Query {
	return r.relationQuery(typeName, link, true)
}

func (r *Record) relationQuery(typeName string, link Link, multiple bool) *Query {
	q := r.conn.Find(typeName)
	q.link = link
	q.multiple = multiple
	q.primaryRecord = r
	return q
}
