package activerecord

import "errors"

// Sentinel errors returned by the engine. They signal programming or
// declaration mistakes rather than database failures and are wrapped with
// context identifying the record type or relation involved.
var (
	// ErrUnknownRecordType is returned when a type name has not been
	// registered.
	ErrUnknownRecordType = errors.New("unknown record type")

	// ErrUnknownRelation is returned when a relation name is not declared
	// on the record type it is requested from.
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrNoPrimaryKey is returned when an operation requires a primary key
	// the record type does not declare.
	ErrNoPrimaryKey = errors.New("record type declares no primary key")

	// ErrMissingLink is returned when a relation declares neither link
	// columns nor an ON condition, leaving nothing to join or filter on.
	ErrMissingLink = errors.New("relation declares no link columns")

	// ErrInvalidConditionKey is returned when a structured condition uses a
	// key that is not a plain column reference or is outside the record
	// type's declared columns.
	ErrInvalidConditionKey = errors.New("invalid condition key")

	// ErrRelationDepth is returned when relation resolution recurses past
	// maxRelationDepth, which indicates a relation cycle.
	ErrRelationDepth = errors.New("relation nesting too deep")
)

// maxRelationDepth bounds dotted relation paths and via chains.
const maxRelationDepth = 16
