package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteText writes one line per node reachable from roots, in post order:
//
//	%2 = xla::add f32[2], operands=(%0, %1), scope=layer1
func WriteText(w io.Writer, roots ...Node) error {
	order, err := ComputePostOrder(roots...)
	if err != nil {
		return err
	}
	ids := numberNodes(order)
	isRoot := make(map[Node]bool, len(roots))
	for _, r := range roots {
		isRoot[r] = true
	}
	var sb strings.Builder
	for _, n := range order {
		if isRoot[n] {
			sb.WriteString("ROOT ")
		}
		fmt.Fprintf(&sb, "%%%d = %s %s", ids[n], n.Op(), n.Shape())
		if n.NumOutputs() > 1 {
			fmt.Fprintf(&sb, ", num_outputs=%d", n.NumOutputs())
		}
		if ops := n.Operands(); len(ops) > 0 {
			sb.WriteString(", operands=(")
			for i, o := range ops {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(outputRef(ids, o))
			}
			sb.WriteByte(')')
		}
		md := n.Metadata()
		if md.Scope != "" {
			fmt.Fprintf(&sb, ", scope=%s", md.Scope)
		}
		if md.User != nil {
			fmt.Fprintf(&sb, ", user=%s", md.User)
		}
		sb.WriteByte('\n')
	}
	_, err = io.WriteString(w, sb.String())
	return err
}

// ToText returns the WriteText form as a string.
func ToText(roots ...Node) (string, error) {
	var sb strings.Builder
	if err := WriteText(&sb, roots...); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// WriteDot writes the graph reachable from roots in Graphviz dot syntax.
// Edges point from operand to user and are labelled with the output index
// for multi-output producers.
func WriteDot(w io.Writer, name string, roots ...Node) error {
	order, err := ComputePostOrder(roots...)
	if err != nil {
		return err
	}
	ids := numberNodes(order)
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %s {\n", strconv.Quote(name))
	for _, r := range roots {
		fmt.Fprintf(&sb, "  n%d [shape=doublecircle];\n", ids[r])
	}
	for _, n := range order {
		label := n.Op().String() + "\n" + n.Shape().String()
		if scope := n.Metadata().Scope; scope != "" {
			label += "\n" + scope
		}
		fmt.Fprintf(&sb, "  n%d [label=%s];\n", ids[n], strconv.Quote(label))
		for i, o := range n.Operands() {
			if o.Node.NumOutputs() > 1 {
				fmt.Fprintf(&sb, "  n%d -> n%d [label=\"%d:%d\"];\n", ids[o.Node], ids[n], o.Index, i)
				continue
			}
			fmt.Fprintf(&sb, "  n%d -> n%d [label=\"%d\"];\n", ids[o.Node], ids[n], i)
		}
	}
	sb.WriteString("}\n")
	_, err = io.WriteString(w, sb.String())
	return err
}

// ToDot returns the WriteDot form as a string.
func ToDot(name string, roots ...Node) (string, error) {
	var sb strings.Builder
	if err := WriteDot(&sb, name, roots...); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func numberNodes(order []Node) map[Node]int {
	ids := make(map[Node]int, len(order))
	for i, n := range order {
		ids[n] = i
	}
	return ids
}

func outputRef(ids map[Node]int, o Output) string {
	if o.Node.NumOutputs() > 1 {
		return fmt.Sprintf("%%%d:%d", ids[o.Node], o.Index)
	}
	return "%" + strconv.Itoa(ids[o.Node])
}
