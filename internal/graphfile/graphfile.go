// Package graphfile reads TOML graph descriptions:
//
//	[graph]
//	name = "mlp"
//	outputs = ["y"]
//
//	[[node]]
//	id = "x"
//	op = "parameter"
//	shape = "f32[2,3]"
//
//	[[node]]
//	id = "y"
//	op = "add"
//	operands = ["x", "x"]
//	scope = "layer1"
//
// Operands and outputs name a node by id, or one output of a multi-output
// node as "id:index".
package graphfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"graphir/internal/ops"
	"graphir/internal/shape"
)

var (
	ErrMissingGraph = errors.New("missing [graph]")
	ErrNoOutputs    = errors.New("missing [graph].outputs")
	ErrNoNodes      = errors.New("no [[node]] entries")
)

// File is a decoded graph description.
type File struct {
	Path  string     `toml:"-"`
	Graph Graph      `toml:"graph"`
	Nodes []NodeSpec `toml:"node"`
}

// Graph is the [graph] table.
type Graph struct {
	Name    string   `toml:"name"`
	Outputs []string `toml:"outputs"`
}

// NodeSpec is one [[node]] entry. Only the attributes of its op are read.
type NodeSpec struct {
	ID       string   `toml:"id"`
	Op       string   `toml:"op"`
	Shape    string   `toml:"shape"`
	Operands []string `toml:"operands"`
	Scope    string   `toml:"scope"`
	Value    float64  `toml:"value"`
	Dims     []int64  `toml:"dims"`
	Axes     []int    `toml:"axes"`
	Parts    int      `toml:"parts"`
}

// Ref names one output of a node.
type Ref struct {
	ID    string
	Index int
}

func (r Ref) String() string {
	if r.Index == 0 {
		return r.ID
	}
	return r.ID + ":" + strconv.Itoa(r.Index)
}

// ParseRef parses "id" or "id:index".
func ParseRef(s string) (Ref, error) {
	id, idx, found := strings.Cut(strings.TrimSpace(s), ":")
	if id == "" {
		return Ref{}, fmt.Errorf("empty reference %q", s)
	}
	if !found {
		return Ref{ID: id}, nil
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return Ref{}, fmt.Errorf("bad output index in %q", s)
	}
	return Ref{ID: id, Index: n}, nil
}

// Load reads and validates the graph file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse decodes data; path is used for messages and as the default graph
// name.
func Parse(data []byte, path string) (*File, error) {
	f := &File{Path: path}
	meta, err := toml.Decode(string(data), f)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if err := f.validate(&meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks a File built in memory.
func (f *File) Validate() error {
	return f.validate(nil)
}

func (f *File) validate(meta *toml.MetaData) error {
	var errs []error
	if meta != nil {
		if !meta.IsDefined("graph") {
			return ErrMissingGraph
		}
		for _, key := range meta.Undecoded() {
			errs = append(errs, fmt.Errorf("unknown key %s", key))
		}
	}
	if strings.TrimSpace(f.Graph.Name) == "" {
		f.Graph.Name = strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
	}
	if len(f.Graph.Outputs) == 0 {
		errs = append(errs, ErrNoOutputs)
	}
	if len(f.Nodes) == 0 {
		errs = append(errs, ErrNoNodes)
	}

	outputs := make(map[string]int, len(f.Nodes))
	for i := range f.Nodes {
		n := &f.Nodes[i]
		where := fmt.Sprintf("node %d", i)
		if n.ID != "" {
			where = fmt.Sprintf("node %q", n.ID)
		}
		if n.ID == "" {
			errs = append(errs, fmt.Errorf("%s: missing id", where))
		} else if strings.ContainsAny(n.ID, ": ") {
			errs = append(errs, fmt.Errorf("%s: id must not contain ':' or spaces", where))
		} else if _, dup := outputs[n.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate id", where))
		}
		want, err := checkOp(n)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		} else if want >= 0 && len(n.Operands) != want {
			errs = append(errs, fmt.Errorf("%s: %s takes %d operands, got %d", where, n.Op, want, len(n.Operands)))
		}
		for _, raw := range n.Operands {
			if err := checkRef(raw, outputs); err != nil {
				errs = append(errs, fmt.Errorf("%s: operand %w", where, err))
			}
		}
		if n.ID != "" {
			outputs[n.ID] = numOutputs(n)
		}
	}
	for _, raw := range f.Graph.Outputs {
		if err := checkRef(raw, outputs); err != nil {
			errs = append(errs, fmt.Errorf("[graph].outputs: %w", err))
		}
	}
	return errors.Join(errs...)
}

// checkOp validates op specific attributes and returns the operand count
// the op takes, -1 for any.
func checkOp(n *NodeSpec) (int, error) {
	switch op := n.Op; {
	case op == "":
		return 0, errors.New("missing op")
	case op == "parameter", op == "constant":
		if n.Shape == "" {
			return 0, fmt.Errorf("%s needs a shape", op)
		}
		if _, err := shape.Parse(n.Shape); err != nil {
			return 0, err
		}
		return 0, nil
	case ops.IsUnary(op):
		return 1, nil
	case ops.IsBinary(op):
		return 2, nil
	case op == "reshape", op == "broadcast":
		return 1, nil
	case strings.HasPrefix(op, "reduce_") && ops.IsReduce(strings.TrimPrefix(op, "reduce_")):
		if len(n.Axes) == 0 {
			return 0, fmt.Errorf("%s needs axes", op)
		}
		return 1, nil
	case op == "split":
		if n.Parts < 2 {
			return 0, errors.New("split needs parts >= 2")
		}
		return 1, nil
	}
	return 0, fmt.Errorf("unknown op %q", n.Op)
}

func numOutputs(n *NodeSpec) int {
	if n.Op == "split" {
		return max(1, n.Parts)
	}
	return 1
}

func checkRef(raw string, outputs map[string]int) error {
	ref, err := ParseRef(raw)
	if err != nil {
		return err
	}
	count, ok := outputs[ref.ID]
	if !ok {
		return fmt.Errorf("%q is not defined before use", ref.ID)
	}
	if ref.Index >= count {
		return fmt.Errorf("%q has %d outputs", raw, count)
	}
	return nil
}
