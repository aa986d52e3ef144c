package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"graphir/internal/graphfile"
	"graphir/internal/ir"
	"graphir/internal/lower"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [flags] <file>",
	Short: "Print the IR graph of a graph file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		tr, err := traceFile(cmd, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch format {
		case "text":
			text, err := ir.ToText(tr.Roots()...)
			if err != nil {
				return err
			}
			writeColoredText(out, text)
		case "dot":
			dot, err := ir.ToDot(tr.Name, tr.Roots()...)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, dot)
			return err
		case "hlo":
			lc := lower.NewContext(tr.Name)
			if err := lc.LowerRoots(cmd.Context(), tr.Roots()...); err != nil {
				return err
			}
			comp, err := lc.BuildOutputs(tr.Outputs...)
			if err != nil {
				return err
			}
			return comp.WriteText(out)
		default:
			return fmt.Errorf("unsupported format %q (must be text, dot or hlo)", format)
		}
		return nil
	},
}

func init() {
	dumpCmd.Flags().String("format", "text", "output format (text|dot|hlo)")
}

// traceFile loads and traces one graph file, recording both phases.
func traceFile(cmd *cobra.Command, path string) (*graphfile.Traced, error) {
	idx := env.timer.Begin("parse")
	f, err := graphfile.Load(path)
	env.timer.End(idx, path)
	if err != nil {
		return nil, err
	}
	idx = env.timer.Begin("trace")
	tr, err := graphfile.Trace(cmd.Context(), f)
	if err != nil {
		env.timer.End(idx, "")
		return nil, err
	}
	env.timer.End(idx, fmt.Sprintf("%d nodes", len(tr.Nodes)))
	return tr, nil
}

func writeColoredText(w io.Writer, text string) {
	root := color.New(color.FgGreen, color.Bold)
	faint := color.New(color.Faint)
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "ROOT "); ok {
			fmt.Fprint(w, root.Sprint("ROOT "))
			line = rest
		}
		if head, tail, ok := strings.Cut(line, ", "); ok {
			fmt.Fprint(w, head, faint.Sprint(", "+tail))
			continue
		}
		fmt.Fprint(w, line)
	}
}
