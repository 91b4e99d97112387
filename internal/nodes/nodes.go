// Package nodes is a SQL-backed node layer for closuretree.
//
// It owns the node table (identity, label, sibling position, soft-delete
// marker) and implements the record side of a hierarchy: the engine
// decides positions and closure rows, this package persists node records
// inside the engine's transaction.
package nodes

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"text/template"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/position"
	"github.com/roach88/closuretree/internal/queryir"
	"github.com/roach88/closuretree/internal/store"
)

// Columns the repository owns besides the schema's id and position.
const (
	LabelColumn     = "label"
	DeletedAtColumn = "deleted_at"
)

// removeBatchSize bounds the ids per IN list in Remove.
const removeBatchSize = 500

//go:embed nodes.sql.tmpl
var tableTemplateText string

var tableTemplate = template.Must(template.New("nodes").Parse(tableTemplateText))

// Node is one node record.
type Node struct {
	id        ir.NodeID
	position  int
	exists    bool
	Label     string
	DeletedAt string
}

// New returns an unsaved node with a fresh time-ordered id.
func New(label string) *Node {
	return &Node{id: NewID(), Label: label}
}

// WithID returns an unsaved node with a caller-chosen id.
func WithID(id ir.NodeID, label string) *Node {
	return &Node{id: id, Label: label}
}

// NewID returns a UUIDv7 node id. v7 ids sort by creation time.
func NewID() ir.NodeID {
	return ir.NodeID(uuid.Must(uuid.NewV7()).String())
}

func (n *Node) ID() ir.NodeID       { return n.id }
func (n *Node) Position() int       { return n.position }
func (n *Node) SetPosition(pos int) { n.position = pos }
func (n *Node) Exists() bool        { return n.exists }

// Deleted reports whether the node was soft-deleted.
func (n *Node) Deleted() bool { return n.DeletedAt != "" }

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the clock used for soft-delete timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// Repository reads and writes node records through a store.Querier, so
// every call joins whatever transaction the caller holds.
type Repository struct {
	schema ir.Schema
	now    func() time.Time
}

// NewRepository returns a repository for the node table named by schema.
func NewRepository(schema ir.Schema, opts ...Option) (*Repository, error) {
	schema = schema.WithDefaults()
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	r := &Repository{schema: schema, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Schema returns the repository's table configuration.
func (r *Repository) Schema() ir.Schema {
	return r.schema
}

// CreateTable creates the node table if it does not exist.
func (r *Repository) CreateTable(ctx context.Context, st *store.Store) error {
	if err := st.ApplyDDL(ctx, tableTemplate, r.schema); err != nil {
		return fmt.Errorf("create node table: %w", err)
	}
	return nil
}

func (r *Repository) idIs(id ir.NodeID) queryir.Predicate {
	return queryir.Equals{Column: queryir.Column{Name: r.schema.IDColumn}, Value: ir.IRString(id)}
}

// Save inserts or updates the node record. Saving a soft-deleted node
// restores it. Labels are stored NFC-normalised.
func (r *Repository) Save(ctx context.Context, q store.Querier, n ir.Node) error {
	ins := queryir.Insert{
		Table:    r.schema.NodeTable,
		Columns:  []string{r.schema.IDColumn, r.schema.PositionColumn},
		Rows:     [][]ir.IRValue{{ir.IRString(n.ID()), ir.IRInt(n.Position())}},
		Conflict: &queryir.Conflict{Columns: []string{r.schema.IDColumn}, Update: []string{r.schema.PositionColumn}},
	}
	rec, isRecord := n.(*Node)
	if isRecord {
		rec.Label = norm.NFC.String(rec.Label)
		ins.Columns = append(ins.Columns, LabelColumn, DeletedAtColumn)
		ins.Rows[0] = append(ins.Rows[0], ir.IRString(rec.Label), ir.IRNull{})
		ins.Conflict.Update = append(ins.Conflict.Update, LabelColumn, DeletedAtColumn)
	}

	if _, err := q.Exec(ctx, ins); err != nil {
		return fmt.Errorf("save node %s: %w", n.ID(), err)
	}
	if isRecord {
		rec.exists = true
		rec.DeletedAt = ""
	}
	return nil
}

// SetPositions writes each change's new position.
func (r *Repository) SetPositions(ctx context.Context, q store.Querier, changes []position.Change) error {
	for _, c := range changes {
		_, err := q.Exec(ctx, queryir.Update{
			Table:  r.schema.NodeTable,
			Set:    []queryir.Assignment{{Column: r.schema.PositionColumn, Value: ir.IRInt(c.To)}},
			Filter: r.idIs(c.ID),
		})
		if err != nil {
			return fmt.Errorf("set position of %s: %w", c.ID, err)
		}
	}
	return nil
}

// Remove soft-deletes (stamps deleted_at) or hard-deletes the given nodes.
// An empty id list is a no-op.
func (r *Repository) Remove(ctx context.Context, q store.Querier, ids []ir.NodeID, hard bool) error {
	if len(ids) == 0 {
		return nil
	}
	deletedAt := ir.IRString(r.now().UTC().Format(time.RFC3339Nano))

	// One bound parameter per id: batch so large subtrees stay under the
	// driver's variable limit.
	for batch := range slices.Chunk(ids, removeBatchSize) {
		in := queryir.In{Column: queryir.Column{Name: r.schema.IDColumn}, Values: ir.IDs(batch)}

		var query queryir.Query = queryir.Update{
			Table:  r.schema.NodeTable,
			Set:    []queryir.Assignment{{Column: DeletedAtColumn, Value: deletedAt}},
			Filter: in,
		}
		if hard {
			query = queryir.Delete{Table: r.schema.NodeTable, Filter: in}
		}
		if _, err := q.Exec(ctx, query); err != nil {
			return fmt.Errorf("remove %d nodes: %w", len(ids), err)
		}
	}
	return nil
}

// Get loads one node record, soft-deleted or not.
func (r *Repository) Get(ctx context.Context, q store.Querier, id ir.NodeID) (*Node, error) {
	rows, err := q.Query(ctx, queryir.Select{
		From: queryir.Table{Name: r.schema.NodeTable},
		Columns: []queryir.Column{
			{Name: r.schema.IDColumn, As: "id"},
			{Name: LabelColumn},
			{Name: r.schema.PositionColumn, As: "position"},
			{Name: DeletedAtColumn},
		},
		Filter: r.idIs(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ir.NewNotFound("nodes.get", id)
	}
	row := rows[0]
	pos, _ := row.Int("position")
	return &Node{
		id:        ir.NodeID(row.String("id")),
		position:  int(pos),
		exists:    true,
		Label:     row.String(LabelColumn),
		DeletedAt: row.String(DeletedAtColumn),
	}, nil
}
