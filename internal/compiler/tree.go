// Package compiler loads tree definition files (YAML or CUE) into the
// nested node specs that bulk creation consumes.
//
// CUE files are unified with a closed schema before they are read, so a
// misspelled field or a missing label fails with a source position:
//
//	tree: [
//		{id: "docs", label: "Docs", children: [
//			{label: "Intro"},
//		]},
//		{label: "Blog"},
//	]
package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// NodeSpec is one node of a tree definition. An empty ID asks the
// repository to generate one.
type NodeSpec struct {
	ID       string     `yaml:"id" json:"id,omitempty"`
	Label    string     `yaml:"label" json:"label"`
	Children []NodeSpec `yaml:"children" json:"children,omitempty"`
}

// schema constrains CUE tree definitions. Definitions are closed, so
// unknown fields are rejected.
const schema = `
#Node: {
	id?:       string & !=""
	label:     string
	children?: [...#Node]
}

tree: [...#Node]
`

// Load reads a tree definition, choosing the format by extension:
// .cue is compiled as CUE, anything else is decoded as YAML.
func Load(path string) ([]NodeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".cue" {
		return CompileCUE(path, data)
	}
	return DecodeYAML(bytes.NewReader(data))
}

// DecodeYAML reads a YAML list of nodes. Unknown keys are rejected.
func DecodeYAML(r io.Reader) ([]NodeSpec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var specs []NodeSpec
	if err := dec.Decode(&specs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty tree definition")
		}
		return nil, fmt.Errorf("decode tree definition: %w", err)
	}
	return specs, nil
}

// CompileCUE compiles CUE source whose top-level tree field lists the
// root nodes. filename is only used in error positions.
func CompileCUE(filename string, src []byte) ([]NodeSpec, error) {
	ctx := cuecontext.New()
	s := ctx.CompileString(schema, cue.Filename("schema.cue"))
	if err := s.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.LookupPath(cue.ParsePath("tree")).Exists() {
		return nil, &CompileError{Field: "tree", Message: "tree is required", Pos: v.Pos()}
	}

	v = s.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileTree(v.LookupPath(cue.ParsePath("tree")))
}

// CompileTree reads a validated list of #Node values.
func CompileTree(v cue.Value) ([]NodeSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	specs := []NodeSpec{}
	for iter.Next() {
		node, err := compileNode(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, node)
	}
	return specs, nil
}

func compileNode(v cue.Value) (NodeSpec, error) {
	var node NodeSpec

	// Unset optional fields (id, children) are not iterated.
	iter, err := v.Fields()
	if err != nil {
		return node, formatCUEError(err)
	}
	for iter.Next() {
		field := iter.Value()
		switch iter.Label() {
		case "id":
			node.ID, err = field.String()
		case "label":
			node.Label, err = field.String()
		case "children":
			if node.Children, err = CompileTree(field); err != nil {
				return node, err
			}
		}
		if err != nil {
			return node, formatCUEError(err)
		}
	}
	return node, nil
}

// Count returns the number of nodes in specs, children included.
func Count(specs []NodeSpec) int {
	n := len(specs)
	for _, s := range specs {
		n += Count(s.Children)
	}
	return n
}
