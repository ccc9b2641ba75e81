// Package activerecord implements relational query resolution over SQL
// databases: record types declare named relations through column links and
// optional junction tables, and queries resolve those relations either as
// SQL joins or as batched secondary queries whose results are attached to
// the owning records.
//
// A Registry holds RecordType descriptors. A Conn binds a registry to a
// database handle. Queries start from Conn.Find and are refined with the
// fluent builder methods before one of the terminal methods (All, One,
// Count, Exists, Batch) executes them.
package activerecord
