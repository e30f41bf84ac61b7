package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/webmcp/relay/internal/protocol"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS webmcp_tool_calls (
	request_id       String,
	session_id       String,
	timestamp        DateTime64(3, 'UTC'),
	tool_name        LowCardinality(String),
	side_effect      LowCardinality(String),
	argument_summary Map(String, String),
	result_summary   String,
	outcome          LowCardinality(String),
	error_code       LowCardinality(String),
	latency_ms       Float64
) ENGINE = MergeTree
ORDER BY (tool_name, timestamp)`

const insertSQL = `
INSERT INTO webmcp_tool_calls (
	request_id, session_id, timestamp, tool_name, side_effect,
	argument_summary, result_summary, outcome, error_code, latency_ms
)`

// insertFunc writes one batch. It is the only part of the writer that talks
// to ClickHouse.
type insertFunc func(ctx context.Context, entries []*protocol.AuditEntry) error

// ClickHouseWriter writes audit entries to ClickHouse asynchronously.
// Write() is non-blocking: entries are buffered and batch-inserted in a
// background goroutine.
type ClickHouseWriter struct {
	insert  insertFunc
	closeFn func() error
	buffer  chan *protocol.AuditEntry
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// NewClickHouseWriter connects, creates the table if needed and starts the
// background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	// ClickHouse Cloud listens on TLS only.
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.Exec(ctx, createTableSQL); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return newBatchWriter(batchInserter(conn), conn.Close, logger), nil
}

func newBatchWriter(insert insertFunc, closeFn func() error, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		insert:  insert,
		closeFn: closeFn,
		buffer:  make(chan *protocol.AuditEntry, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

// Write queues an entry for async insertion.
// Non-blocking: drops the entry if the buffer is full.
func (w *ClickHouseWriter) Write(entry *protocol.AuditEntry) {
	select {
	case w.buffer <- entry:
	default:
		w.logger.Warn("clickhouse buffer full, dropping audit entry",
			zap.String("request_id", entry.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining entries, waits for it to
// finish (up to drainTimeout), then closes the connection. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if w.closeFn != nil {
		if err := w.closeFn(); err != nil {
			w.logger.Warn("clickhouse close failed", zap.Error(err))
		}
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*protocol.AuditEntry, 0, flushBatch)

	for {
		select {
		case entry := <-w.buffer:
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case entry := <-w.buffer:
					batch = append(batch, entry)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(entries []*protocol.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.insert(ctx, entries); err != nil {
		w.logger.Error("clickhouse batch insert failed",
			zap.Int("batch_size", len(entries)),
			zap.Error(err),
		)
	}
}

func batchInserter(conn driver.Conn) insertFunc {
	return func(ctx context.Context, entries []*protocol.AuditEntry) error {
		batch, err := conn.PrepareBatch(ctx, insertSQL)
		if err != nil {
			return err
		}
		for _, e := range entries {
			args := e.ArgumentSummary
			if args == nil {
				args = map[string]string{}
			}
			if err := batch.Append(
				e.RequestID,
				e.SessionID,
				e.Timestamp,
				e.ToolName,
				string(e.SideEffect),
				args,
				e.ResultSummary,
				string(e.Outcome),
				e.ErrorCode,
				e.LatencyMs,
			); err != nil {
				_ = batch.Abort()
				return err
			}
		}
		return batch.Send()
	}
}

// LogWriter is a fallback EventWriter for local development.
// It logs entries as structured JSON via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs entries to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(entry *protocol.AuditEntry) {
	w.logger.Info("tool_call",
		zap.String("request_id", entry.RequestID),
		zap.String("session_id", entry.SessionID),
		zap.String("tool_name", entry.ToolName),
		zap.String("side_effect", string(entry.SideEffect)),
		zap.String("outcome", string(entry.Outcome)),
		zap.String("error_code", entry.ErrorCode),
		zap.Float64("latency_ms", entry.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
