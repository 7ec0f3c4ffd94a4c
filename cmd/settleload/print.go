package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"settleload/internal/action"
	"settleload/internal/scenario"
)

func printCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print <scenario>",
		Short: "Pretty-print every action of a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			return printActions(cmd.OutOrStdout(), store.Actions())
		},
	}
}

// printActions writes one indented JSON document per action. Transfers
// are indented wider so they stand out from the matrix traffic.
func printActions(w io.Writer, actions []action.Action) error {
	for _, a := range actions {
		indent := "  "
		if a.Type == action.Transfer || a.Type == action.TransferRaw {
			indent = "    "
		}
		data, err := json.MarshalIndent(a, "", indent)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return err
		}
	}
	return nil
}
