package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/openmined/ftpmirror/internal/mirror"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		runID  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history [server]",
		Short: "Show recent mirror runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := mirror.OpenJournal(a.cfg.JournalPath(), a.logger)
			if err != nil {
				return err
			}
			defer journal.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				ops, err := journal.Ops(runID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, ops)
				}
				for _, op := range ops {
					fmt.Fprintf(out, "%s %-8s %s %s\n",
						gray.Render(op.At.Local().Format("2006-01-02 15:04:05")), op.Op, op.Path,
						gray.Render(humanize.Bytes(uint64(op.Bytes))))
				}
				return nil
			}

			server := ""
			if len(args) == 1 {
				server = args[0]
			}
			runs, err := journal.Runs(server, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, runs)
			}
			for _, r := range runs {
				state := green.Render(r.State)
				if r.Error != "" {
					state = red.Render(r.State)
				}
				fmt.Fprintf(out, "%s %s %s %s up %d down %d del %d %s\n",
					gray.Render(r.Started.Local().Format("2006-01-02 15:04:05")),
					cyan.Render(r.Server), r.LocalDir, state,
					r.Uploaded, r.Downloaded, r.Deleted,
					gray.Render(r.RunID))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show, 0 for all")
	cmd.Flags().StringVar(&runID, "run", "", "show the operations of one run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
