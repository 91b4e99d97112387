package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/planner"
	"github.com/roach88/closuretree/internal/position"
	"github.com/roach88/closuretree/internal/queryir"
	"github.com/roach88/closuretree/internal/store"
)

// NodeStore persists node records on behalf of the engine. Every call
// receives the engine's open transaction.
type NodeStore interface {
	// Save inserts or updates the node record, including its position.
	Save(ctx context.Context, q store.Querier, n ir.Node) error

	// SetPositions rewrites the position of each listed node.
	SetPositions(ctx context.Context, q store.Querier, changes []position.Change) error

	// Remove soft- or hard-deletes the node records for ids.
	Remove(ctx context.Context, q store.Querier, ids []ir.NodeID, hard bool) error
}

// Engine maintains one closure-table hierarchy.
type Engine struct {
	store   *store.Store
	nodes   NodeStore
	planner *planner.Planner
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets the tracer. Default: the global provider's
// "closuretree/engine" tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// New creates an Engine over st, persisting node records through nodes.
// The planner is built from the store's schema.
func New(st *store.Store, nodes NodeStore, opts ...Option) (*Engine, error) {
	if st == nil || nodes == nil {
		return nil, ir.NewInvalidArgument("engine.new", "store and node store are required")
	}
	p, err := planner.New(st.Schema())
	if err != nil {
		return nil, fmt.Errorf("build planner: %w", err)
	}

	e := &Engine{
		store:   st,
		nodes:   nodes,
		planner: p,
		logger:  slog.Default(),
		tracer:  otel.Tracer("closuretree/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Planner returns the engine's query planner.
func (e *Engine) Planner() *planner.Planner {
	return e.planner
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// txn is the state of one mutation: the open transaction and the closure
// row counts it wrote.
type txn struct {
	e        *Engine
	q        store.Querier
	inserted int64
	deleted  int64
}

func (t *txn) closure() store.ClosureTable {
	return store.Closure(t.q)
}

func (t *txn) insertRows(ctx context.Context, rows []ir.ClosureRow) error {
	if err := t.closure().Insert(ctx, rows); err != nil {
		return err
	}
	t.inserted += int64(len(rows))
	return nil
}

func (t *txn) deleteRows(ctx context.Context, pred queryir.Predicate) error {
	n, err := t.closure().Delete(ctx, pred)
	if err != nil {
		return err
	}
	t.deleted += n
	return nil
}

// exists reports whether id has a self row.
func (t *txn) exists(ctx context.Context, id ir.NodeID) (bool, error) {
	return t.closure().Exists(ctx, t.e.planner.SelfRow(id))
}

// parentOf returns id's parent, or ir.NoParent for a root.
func (t *txn) parentOf(ctx context.Context, id ir.NodeID) (ir.NodeID, error) {
	rows, err := t.closure().Select(ctx, t.e.planner.ParentLink(id))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return ir.NoParent, nil
	}
	return rows[0].Ancestor, nil
}

// positionOf returns the stored position of id's node record.
func (t *txn) positionOf(ctx context.Context, op string, id ir.NodeID) (int, error) {
	recs, err := t.records(ctx, t.e.planner.Node(id))
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, ir.NewNotFound(op, id)
	}
	return recs[0].Position, nil
}

func (t *txn) records(ctx context.Context, q queryir.Select) ([]ir.NodeRecord, error) {
	return runRecords(ctx, t.q, t.e.planner, q)
}

// siblings returns the children of parent (the roots for ir.NoParent),
// leaving out the ids in skip.
func (t *txn) siblings(ctx context.Context, parent ir.NodeID, skip ...ir.NodeID) ([]position.Sibling, error) {
	q := t.e.planner.Roots()
	if parent != ir.NoParent {
		q = t.e.planner.Children(parent)
	}
	recs, err := t.records(ctx, q)
	if err != nil {
		return nil, err
	}
	sibs := make([]position.Sibling, 0, len(recs))
	for _, r := range recs {
		if slices.Contains(skip, r.ID) {
			continue
		}
		sibs = append(sibs, position.Sibling{ID: r.ID, Position: r.Position})
	}
	return sibs, nil
}

func (t *txn) setPositions(ctx context.Context, changes []position.Change) error {
	if len(changes) == 0 {
		return nil
	}
	return t.e.nodes.SetPositions(ctx, t.q, changes)
}

func runRecords(ctx context.Context, q store.Querier, p *planner.Planner, sel queryir.Select) ([]ir.NodeRecord, error) {
	rows, err := q.Query(ctx, sel)
	if err != nil {
		return nil, err
	}
	recs, err := p.Records(rows)
	if err != nil {
		return nil, ir.NewStorageError("decode", err, false)
	}
	return recs, nil
}
