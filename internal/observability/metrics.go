package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query kinds reported with query metrics.
const (
	QueryKindRoot     = "root"
	QueryKindEager    = "eager"
	QueryKindJunction = "junction"
	QueryKindCount    = "count"
	QueryKindRaw      = "raw"
)

// QueryMetrics holds instruments for statement execution and eager loading.
// A nil *QueryMetrics is valid and records nothing.
type QueryMetrics struct {
	queryCounter     metric.Int64Counter
	queryDuration    metric.Float64Histogram
	resultRows       metric.Int64Histogram
	eagerParentCount metric.Int64Histogram
	queriesSaved     metric.Int64Counter
	dedupDropped     metric.Int64Counter
}

// InitQueryMetrics initializes engine metrics on the global meter provider.
func InitQueryMetrics() (*QueryMetrics, error) {
	meter := otel.Meter(tracerName)

	queryCounter, err := meter.Int64Counter(
		"activerecord.queries.total",
		metric.WithDescription("Total number of SQL statements executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram(
		"activerecord.query.duration",
		metric.WithDescription("Duration of SQL statement execution in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"activerecord.query.result_rows",
		metric.WithDescription("Number of rows returned per statement"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	eagerParentCount, err := meter.Int64Histogram(
		"activerecord.eager.parent_count",
		metric.WithDescription("Number of owner records covered by one eager-load query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create eager parent count histogram: %w", err)
	}

	queriesSaved, err := meter.Int64Counter(
		"activerecord.eager.queries_saved",
		metric.WithDescription("Number of per-row queries avoided by batched eager loading"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queries saved counter: %w", err)
	}

	dedupDropped, err := meter.Int64Counter(
		"activerecord.populate.rows_deduplicated",
		metric.WithDescription("Number of duplicate join rows dropped during population"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup counter: %w", err)
	}

	return &QueryMetrics{
		queryCounter:     queryCounter,
		queryDuration:    queryDuration,
		resultRows:       resultRows,
		eagerParentCount: eagerParentCount,
		queriesSaved:     queriesSaved,
		dedupDropped:     dedupDropped,
	}, nil
}

// RecordQuery reports one executed statement.
func (m *QueryMetrics) RecordQuery(ctx context.Context, table, kind string, elapsed time.Duration, rows int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("db.table", table),
		attribute.String("query.kind", kind),
	)
	m.queryCounter.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	m.resultRows.Record(ctx, rows, attrs)
}

// RecordEagerLoad reports one batched relation load covering parentCount owners.
func (m *QueryMetrics) RecordEagerLoad(ctx context.Context, relation string, parentCount int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("relation", relation))
	m.eagerParentCount.Record(ctx, parentCount, attrs)
	// One batched query replaces one query per owner.
	if saved := parentCount - 1; saved > 0 {
		m.queriesSaved.Add(ctx, saved, attrs)
	}
}

// RecordDeduplicated reports duplicate join rows dropped for a table.
func (m *QueryMetrics) RecordDeduplicated(ctx context.Context, table string, dropped int64) {
	if m == nil || dropped <= 0 {
		return
	}
	m.dedupDropped.Add(ctx, dropped, metric.WithAttributes(attribute.String("db.table", table)))
}
