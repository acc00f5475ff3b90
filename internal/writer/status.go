package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/syncwatch/internal/model"
	"github.com/rickgao/syncwatch/internal/status"
)

// WriterConfig configures a StatusWriter.
type WriterConfig struct {
	InstanceID    string        // Stored with every record
	BatchSize     int           // Rows per flush
	FlushInterval time.Duration // Maximum time a row waits before flushing
	BufferSize    int           // Queue capacity
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		BufferSize:    1000,
	}
}

// WriterMetrics tracks writer activity.
type WriterMetrics struct {
	Queued    int64
	Dropped   int64
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// DB is the subset of *pgxpool.Pool used by the writer.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// StatusWriter persists health summaries to the status_history table.
type StatusWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the status reporter
	input chan model.StatusRecord

	// Database
	db DB

	// Batching
	batch       []model.StatusRecord
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewStatusWriter creates a new StatusWriter.
func NewStatusWriter(cfg WriterConfig, db DB, logger *slog.Logger) *StatusWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultWriterConfig().BufferSize
	}
	return &StatusWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan model.StatusRecord, cfg.BufferSize),
		batch:  make([]model.StatusRecord, 0, cfg.BatchSize),
	}
}

// Start begins consuming summaries and writing to the database.
func (w *StatusWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("status writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes what is queued.
func (w *StatusWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping status writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("status writer stopped")
	case <-ctx.Done():
		w.logger.Warn("status writer stop timed out")
	}

	// Drain anything still queued, then final flush
	w.drain()
	w.flushCtx(ctx)

	return nil
}

// Notify implements status.Notifier. It never blocks.
func (w *StatusWriter) Notify(s status.Summary) {
	rec := w.transform(s)

	select {
	case w.input <- rec:
		w.batchMu.Lock()
		w.metrics.Queued++
		w.batchMu.Unlock()
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("status queue full, dropping summary", "tier", s.Tier)
	}
}

// Stats returns current metrics.
func (w *StatusWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *StatusWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case rec := <-w.input:
			w.handleRecord(rec)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *StatusWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// drain moves queued records into the batch without blocking.
func (w *StatusWriter) drain() {
	for {
		select {
		case rec := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, rec)
			w.batchMu.Unlock()
		default:
			return
		}
	}
}

// handleRecord adds a record to the batch.
func (w *StatusWriter) handleRecord(rec model.StatusRecord) {
	w.batchMu.Lock()
	w.batch = append(w.batch, rec)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a Summary to a StatusRecord.
func (w *StatusWriter) transform(s status.Summary) model.StatusRecord {
	rec := model.StatusRecord{
		ID:           uuid.New(),
		InstanceID:   w.cfg.InstanceID,
		Tier:         s.Tier.String(),
		State:        s.State,
		NetworkLabel: s.NetworkLabel,
		Text:         s.Text,
		RecordedAt:   s.GeneratedAt.UnixMicro(),
	}
	if s.LastRoundTrip != nil {
		us := s.LastRoundTrip.Microseconds()
		rec.RoundTripMicros = &us
	}
	if s.TimeSinceLastSync != nil {
		us := s.TimeSinceLastSync.Microseconds()
		rec.SinceSyncMicros = &us
	}
	return rec
}

// flush writes the current batch to the database.
func (w *StatusWriter) flush() {
	w.flushCtx(w.ctx)
}

func (w *StatusWriter) flushCtx(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]model.StatusRecord, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if w.db == nil {
		return
	}

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed status history",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *StatusWriter) batchInsert(ctx context.Context, rows []model.StatusRecord) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO status_history (id, instance_id, tier, state, round_trip_us, since_sync_us, network_label, summary, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.InstanceID, r.Tier, r.State, r.RoundTripMicros, r.SinceSyncMicros, r.NetworkLabel, r.Text, r.RecordedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
