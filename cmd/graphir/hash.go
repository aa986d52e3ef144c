package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash <file>...",
	Short: "Print the structural hash of graph files",
	Long: `Hash prints one line per file: the structural hash of the graph outputs,
the graph name and the file. Equal hashes mean the graphs lower identically.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			tr, err := traceFile(cmd, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", tr.Hash, tr.Name, path)
		}
		return nil
	},
}
