package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/ftpmirror/internal/config"
	"github.com/openmined/ftpmirror/internal/mirror"
	"github.com/openmined/ftpmirror/internal/utils"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newMirrorCmd(a *app) *cobra.Command {
	var (
		remoteOnly string
		remoteDir  string
		asJSON     bool
		noJournal  bool
	)

	cmd := &cobra.Command{
		Use:   "mirror <local-dir> <server>...",
		Short: "Mirror a local directory to one or more servers",
		Long: `Upload new and changed files, download files that are newer on the server and
handle files that only exist on the server according to --remote-only.

The remote directory defaults to <local-dir> below the server root; an absolute
<local-dir> maps to its base name.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := mirror.ParsePolicy(remoteOnly)
			if err != nil {
				return err
			}

			localDir, err := utils.ResolvePath(args[0])
			if err != nil {
				return err
			}
			if !utils.DirExists(localDir) {
				return fmt.Errorf("local directory %s does not exist", localDir)
			}
			if remoteDir == "" {
				remoteDir = defaultRemoteDir(args[0])
			}

			engine, closeEngine, err := a.newEngine(!noJournal)
			if err != nil {
				return err
			}
			defer closeEngine()

			servers := dedupe(args[1:])
			reports := make([]*mirror.Report, len(servers))
			errs := make([]error, len(servers))

			var g errgroup.Group
			g.SetLimit(a.cfg.Parallel)
			for i, server := range servers {
				i := i
				req := mirror.Request{
					Server:      server,
					LocalDir:    localDir,
					RemoteDir:   remoteDir,
					Policy:      policy,
					IgnoreFiles: ignoreFiles(a.cfg.SharedIgnore, localDir),
				}
				g.Go(func() error {
					reports[i], errs[i] = engine.Run(cmd.Context(), req)
					return nil
				})
			}
			g.Wait()

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					printReport(out, r)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVarP(&remoteOnly, "remote-only", "r", "keep", "what to do with files only on the server: keep, download or delete")
	cmd.Flags().StringVar(&remoteDir, "remote-dir", "", "remote directory relative to the server root")
	cmd.Flags().Int("parallel", config.DefaultParallel, "number of servers mirrored at once")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print run reports as JSON")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record the run in the journal")
	return cmd
}

// defaultRemoteDir maps the local directory argument to a path below the server root.
func defaultRemoteDir(localArg string) string {
	clean := filepath.Clean(localArg)
	if filepath.IsAbs(clean) {
		return filepath.Base(clean)
	}
	rel := filepath.ToSlash(clean)
	for strings.HasPrefix(rel, "../") {
		rel = strings.TrimPrefix(rel, "../")
	}
	if rel == ".." {
		rel = "."
	}
	return rel
}

// ignoreFiles lists the shared ignore file (if any) followed by the tree's own.
func ignoreFiles(shared, localDir string) []string {
	files := make([]string, 0, 2)
	if shared != "" {
		files = append(files, shared)
	}
	return append(files, filepath.Join(localDir, mirror.IgnoreFileName))
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func printReport(w io.Writer, r *mirror.Report) {
	if r == nil {
		return
	}

	status := green.Render(r.State)
	if r.Error != "" {
		status = red.Render(r.State)
	}
	fmt.Fprintf(w, "%s %s %s\n", cyan.Render(r.Server), gray.Render(r.LocalDir+" -> "+r.RemoteDir), status)
	fmt.Fprintf(w, "  same %d  uploaded %d (%s)  downloaded %d (%s)  deleted %d  kept %d\n",
		r.Same,
		len(r.Uploaded), humanize.Bytes(uint64(r.BytesUploaded)),
		len(r.Downloaded), humanize.Bytes(uint64(r.BytesDownloaded)),
		len(r.Deleted), len(r.Kept),
	)
	for _, p := range r.Kept {
		fmt.Fprintf(w, "  %s %s\n", gray.Render("remote only"), p)
	}
	if r.Cautions > 0 {
		fmt.Fprintf(w, "  %s %d\n", yellow.Render("cautions"), r.Cautions)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", red.Render("error"), r.Error)
	}
}
