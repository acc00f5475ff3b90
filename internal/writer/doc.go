// Package writer implements the batch writer for status history.
//
// The StatusWriter is a status.Notifier: every emitted health summary is
// queued without blocking the engine and written to status_history in
// batches with pgx.Batch.
//
// Writes are append-only (never update, only insert). A full queue drops the
// summary and counts it rather than applying backpressure to the engine.
package writer
