package ir

import (
	"fmt"
	"regexp"
)

// ClosureSuffix is appended to the node table name to derive the closure
// table name when ClosureTable is not set explicitly.
const ClosureSuffix = "_closure"

// Schema names the tables and columns the engine reads and writes.
//
// Names are configurable; semantics are fixed. Identifiers are interpolated
// into SQL, so Validate must pass before a Schema is used.
type Schema struct {
	// NodeTable is the external layer's node table.
	NodeTable string `toml:"node_table"`

	// IDColumn and PositionColumn live on NodeTable.
	IDColumn       string `toml:"id_column"`
	PositionColumn string `toml:"position_column"`

	// Attributes are extra NodeTable columns copied into NodeRecord.Attributes.
	Attributes []string `toml:"attributes"`

	// ClosureTable holds the closure rows. Defaults to NodeTable + ClosureSuffix.
	ClosureTable string `toml:"closure_table"`

	AncestorColumn   string `toml:"ancestor_column"`
	DescendantColumn string `toml:"descendant_column"`
	DepthColumn      string `toml:"depth_column"`
}

// DefaultSchema returns the schema for a node table using default column names.
func DefaultSchema(nodeTable string) Schema {
	return Schema{NodeTable: nodeTable}.WithDefaults()
}

// WithDefaults returns a copy with every blank name filled in.
func (s Schema) WithDefaults() Schema {
	if s.NodeTable == "" {
		s.NodeTable = "nodes"
	}
	if s.IDColumn == "" {
		s.IDColumn = "id"
	}
	if s.PositionColumn == "" {
		s.PositionColumn = "position"
	}
	if s.ClosureTable == "" {
		s.ClosureTable = s.NodeTable + ClosureSuffix
	}
	if s.AncestorColumn == "" {
		s.AncestorColumn = "ancestor"
	}
	if s.DescendantColumn == "" {
		s.DescendantColumn = "descendant"
	}
	if s.DepthColumn == "" {
		s.DepthColumn = "depth"
	}
	return s
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate into SQL.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Validate checks every configured identifier.
func (s Schema) Validate() error {
	names := map[string]string{
		"node_table":        s.NodeTable,
		"id_column":         s.IDColumn,
		"position_column":   s.PositionColumn,
		"closure_table":     s.ClosureTable,
		"ancestor_column":   s.AncestorColumn,
		"descendant_column": s.DescendantColumn,
		"depth_column":      s.DepthColumn,
	}
	for _, field := range []string{"node_table", "id_column", "position_column", "closure_table", "ancestor_column", "descendant_column", "depth_column"} {
		if !ValidIdentifier(names[field]) {
			return NewInvalidArgument("schema", fmt.Sprintf("%s %q is not a valid identifier", field, names[field]))
		}
	}
	for _, attr := range s.Attributes {
		if !ValidIdentifier(attr) {
			return NewInvalidArgument("schema", fmt.Sprintf("attribute %q is not a valid identifier", attr))
		}
	}
	if s.NodeTable == s.ClosureTable {
		return NewInvalidArgument("schema", "closure_table must differ from node_table")
	}
	return nil
}
