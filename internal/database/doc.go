// Package database provides the PostgreSQL connection pool for status history.
//
// Persistence is optional: when no database host is configured the
// reference client runs without one and summaries are only logged.
package database
