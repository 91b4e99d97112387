package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/store"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "closuretree_operations_total",
		Help: "Engine operations by operation and result",
	}, []string{"op", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "closuretree_operation_duration_seconds",
		Help:    "Duration of engine operations, including the transaction",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"op"})

	closureRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "closuretree_closure_rows_total",
		Help: "Closure rows written by committed mutations",
	}, []string{"change"})
)

// resultLabel maps an error to the "result" metric label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := ir.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

func logAttrs(attrs []attribute.KeyValue) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, kv := range attrs {
		out = append(out, slog.Any(string(kv.Key), kv.Value.AsInterface()))
	}
	return out
}

// observe runs fn under a span, a duration timer and the operations
// counter.
func (e *Engine) observe(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "closuretree."+op, trace.WithAttributes(attrs...))
	defer span.End()

	timer := prometheus.NewTimer(operationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	err := fn(ctx)
	operationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// observeRead is observe for operations that return a value.
func observeRead[T any](ctx context.Context, e *Engine, op string, attrs []attribute.KeyValue, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.observe(ctx, op, attrs, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// mutate runs fn inside one transaction and records what it wrote.
func (e *Engine) mutate(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, t *txn) error) error {
	return e.observe(ctx, op, attrs, func(ctx context.Context) error {
		var t *txn
		err := e.store.WithTransaction(ctx, func(tx *store.Tx) error {
			t = &txn{e: e, q: tx}
			return fn(ctx, t)
		})

		logged := logAttrs(attrs)
		if err != nil {
			logged = append(logged, slog.Any("error", err))
			e.logger.LogAttrs(ctx, slog.LevelWarn, op+" failed", logged...)
			return err
		}

		closureRowsTotal.WithLabelValues("inserted").Add(float64(t.inserted))
		closureRowsTotal.WithLabelValues("deleted").Add(float64(t.deleted))
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int64("rows_inserted", t.inserted),
			attribute.Int64("rows_deleted", t.deleted),
		)
		logged = append(logged,
			slog.Int64("rows_inserted", t.inserted),
			slog.Int64("rows_deleted", t.deleted),
		)
		e.logger.LogAttrs(ctx, slog.LevelDebug, op, logged...)
		return nil
	})
}

func nodeAttr(key string, id ir.NodeID) attribute.KeyValue {
	return attribute.String(key, string(id))
}
