// Package pg wires PostgreSQL access for the platform: pooled connections
// with startup retry, goose migrations from an embedded filesystem, and
// error helpers that classify the SQLSTATE conditions the business layer
// cares about (duplicate key, foreign key violation, no rows).
package pg
