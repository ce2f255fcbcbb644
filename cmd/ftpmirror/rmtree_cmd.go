package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rmtree <server> <remote-dir>",
		Short: "Delete a directory tree on a server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeEngine, err := a.newEngine(false)
			if err != nil {
				return err
			}
			defer closeEngine()

			count, err := engine.RemoveTree(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d deleted\n", cyan.Render(args[0]), count)
			return nil
		},
	}
}
