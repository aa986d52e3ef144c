package hlo

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/vmihailenco/msgpack/v5"

	"graphir/internal/shape"
)

// Computation is a sealed list of instructions with a designated root.
type Computation struct {
	Name         string        `msgpack:"name"`
	Instructions []Instruction `msgpack:"instrs"`
	Root         int           `msgpack:"root"`
}

// RootShape returns the shape of the root instruction.
func (c *Computation) RootShape() shape.Shape {
	if c == nil || c.Root < 0 || c.Root >= len(c.Instructions) {
		return shape.Shape{}
	}
	return c.Instructions[c.Root].Shape
}

// ParameterShapes returns the parameter shapes ordered by parameter number.
func (c *Computation) ParameterShapes() []shape.Shape {
	byNumber := make(map[int]shape.Shape)
	maxNumber := -1
	for i := range c.Instructions {
		in := &c.Instructions[i]
		if in.Opcode != OpParameter {
			continue
		}
		n, err := strconv.Atoi(in.attr("number"))
		if err != nil {
			continue
		}
		byNumber[n] = in.Shape
		maxNumber = max(maxNumber, n)
	}
	out := make([]shape.Shape, maxNumber+1)
	for n, s := range byNumber {
		out[n] = s
	}
	return out
}

// Count returns how many instructions use the given opcode.
func (c *Computation) Count(code Opcode) int {
	n := 0
	for i := range c.Instructions {
		if c.Instructions[i].Opcode == code {
			n++
		}
	}
	return n
}

func (in *Instruction) attr(key string) string {
	for _, a := range in.Attrs {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// String renders the computation as HLO text.
func (c *Computation) String() string {
	var buf bytes.Buffer
	_ = c.WriteText(&buf)
	return buf.String()
}

// WriteText writes the HLO text form to w.
func (c *Computation) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}
	lines := make([]string, len(c.Instructions))
	width := 0
	for i := range c.Instructions {
		lines[i] = c.instructionText(i)
		width = max(width, runewidth.StringWidth(lines[i]))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "HloModule %s\n\nENTRY %s {\n", c.Name, c.Name)
	for i := range c.Instructions {
		in := &c.Instructions[i]
		sb.WriteString("  ")
		sb.WriteString(lines[i])
		if md := formatMetadata(in.Metadata); md != "" {
			sb.WriteString(strings.Repeat(" ", width-runewidth.StringWidth(lines[i])+2))
			sb.WriteString(md)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func (c *Computation) instructionText(i int) string {
	in := &c.Instructions[i]
	var sb strings.Builder
	if i == c.Root {
		sb.WriteString("ROOT ")
	}
	fmt.Fprintf(&sb, "%s = %s %s(", in.Ref(), in.Shape, in.Opcode)
	switch in.Opcode {
	case OpParameter:
		sb.WriteString(in.attr("number"))
	case OpConstant:
		sb.WriteString(formatLiteral(in.Literal))
	default:
		for j, id := range in.Operands {
			if j > 0 {
				sb.WriteString(", ")
			}
			if id >= 0 && id < len(c.Instructions) {
				sb.WriteString(c.Instructions[id].Ref())
			} else {
				fmt.Fprintf(&sb, "%%?%d", id)
			}
		}
	}
	sb.WriteByte(')')
	for _, a := range in.Attrs {
		if a.Key == "number" {
			continue
		}
		if a.Key == "name" {
			fmt.Fprintf(&sb, ", name=%q", a.Value)
			continue
		}
		fmt.Fprintf(&sb, ", %s=%s", a.Key, a.Value)
	}
	return sb.String()
}

func formatLiteral(values []float64) string {
	if len(values) == 1 {
		return strconv.FormatFloat(values[0], 'g', -1, 64)
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatMetadata(md OpMetadata) string {
	if md.Empty() {
		return ""
	}
	var parts []string
	if md.OpType != "" {
		parts = append(parts, fmt.Sprintf("op_type=%q", md.OpType))
	}
	if md.OpName != "" {
		parts = append(parts, fmt.Sprintf("op_name=%q", md.OpName))
	}
	if md.SourceFile != "" {
		parts = append(parts, fmt.Sprintf("source_file=%q", md.SourceFile))
		parts = append(parts, fmt.Sprintf("source_line=%d", md.SourceLine))
	}
	return "metadata={" + strings.Join(parts, " ") + "}"
}

// Encode writes the msgpack form of the computation.
func (c *Computation) Encode(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(c)
}

// Decode reads a computation written by Encode.
func Decode(r io.Reader) (*Computation, error) {
	var c Computation
	if err := msgpack.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode computation: %w", err)
	}
	if c.Root < 0 || c.Root >= len(c.Instructions) {
		return nil, fmt.Errorf("decode computation %q: root %d out of range", c.Name, c.Root)
	}
	return &c, nil
}
