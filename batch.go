package activerecord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/darkdef/active-record/internal/observability"
)

const defaultBatchSize = 100

// Batch streams a query's results in fixed-size batches, running the
// population pipeline (dedup, eager loading, inverse attachment) per batch.
// Eager relations thus cost one extra query per batch rather than per row.
type Batch struct {
	query *Query
	size  int
	rows  Rows
	cols  []string
	done  bool
}

// Batch returns a batched iterator over the query. Sizes below one fall
// back to the default of 100.
func (q *Query) Batch(size int) *Batch {
	if size < 1 {
		size = defaultBatchSize
	}
	return &Batch{query: q, size: size}
}

// Next returns the next batch of populated records, or nil when the result
// set is exhausted.
func (b *Batch) Next(ctx context.Context) ([]*Record, error) {
	if b.query.asArray {
		return nil, fmt.Errorf("query is in array mode: use NextArrays")
	}
	models, err := b.nextModels(ctx)
	if err != nil || models == nil {
		return nil, err
	}
	out := make([]*Record, 0, len(models))
	for _, m := range models {
		if rec, ok := m.(*Record); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// NextArrays is Next in array mode.
func (b *Batch) NextArrays(ctx context.Context) ([]map[string]any, error) {
	models, err := b.nextModels(ctx)
	if err != nil || models == nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(models))
	for _, m := range models {
		if row, ok := m.(map[string]any); ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (b *Batch) nextModels(ctx context.Context) ([]any, error) {
	if b.done {
		return nil, nil
	}
	if b.rows == nil {
		if err := b.start(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var rows []map[string]any
	for len(rows) < b.size && b.rows.Next() {
		row, err := b.scanRow()
		if err != nil {
			b.Close()
			return nil, err
		}
		rows = append(rows, row)
	}
	if len(rows) < b.size {
		err := b.rows.Err()
		b.Close()
		if err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	b.query.conn.metrics.RecordQuery(ctx, b.query.metricsTable(), observability.QueryKindRoot,
		time.Since(start), int64(len(rows)))
	return b.query.populateAll(ctx, rows)
}

func (b *Batch) start(ctx context.Context) error {
	q := b.query
	if q.err != nil {
		return q.err
	}

	sqlStr, args := q.sqlText, q.sqlArgs
	if sqlStr == "" {
		qc, err := q.prepare(ctx)
		if err != nil {
			return err
		}
		sqlStr, args, err = qc.toSQL()
		if err != nil {
			return err
		}
	}

	q.conn.logger.DebugContext(ctx, "starting batched query",
		slog.String("sql", sqlStr),
		slog.Int("batch_size", b.size),
	)
	rows, err := q.conn.exec.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("statement execution failed: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return err
	}
	b.rows = rows
	b.cols = cols
	return nil
}

func (b *Batch) scanRow() (map[string]any, error) {
	vals := make([]any, len(b.cols))
	ptrs := make([]any, len(b.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := b.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(map[string]any, len(b.cols))
	for i, col := range b.cols {
		row[col] = normalizeValue(vals[i])
	}
	return row, nil
}

// Close releases the underlying rows. Safe to call more than once; Next
// closes automatically at exhaustion.
func (b *Batch) Close() error {
	b.done = true
	if b.rows == nil {
		return nil
	}
	rows := b.rows
	b.rows = nil
	return rows.Close()
}
