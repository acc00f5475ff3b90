// Package model defines shared data types used across syncwatch.
//
// All types mirror the status_history table created by the database package.
//
// Conventions:
//   - Timestamps and durations: int64 microseconds
//   - IDs: uuid.UUID
//   - Optional measurements are pointers; nil is stored as NULL
package model
