package main

import (
	"fmt"

	"github.com/openmined/ftpmirror/internal/mirror"
	"github.com/spf13/cobra"
)

type remoteFile struct {
	Path     string           `json:"path"`
	Modified mirror.Timestamp `json:"modified"`
}

func newListCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ls <server> [remote-dir]",
		Short: "List files on a server with their timestamps",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 2 {
				dir = args[1]
			}

			engine, closeEngine, err := a.newEngine(false)
			if err != nil {
				return err
			}
			defer closeEngine()

			files, err := engine.ListRemote(cmd.Context(), args[0], dir)
			if err != nil {
				return err
			}

			paths := mirror.SortPaths(files.Keys().ToSlice())
			if asJSON {
				list := make([]remoteFile, 0, len(paths))
				for _, p := range paths {
					list = append(list, remoteFile{Path: p, Modified: files[p]})
				}
				return writeJSON(cmd.OutOrStdout(), list)
			}

			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", gray.Render(string(files[p])), p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
