package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type serverInfo struct {
	Name    string `json:"name"`
	Addr    string `json:"addr"`
	User    string `json:"user"`
	Root    string `json:"root"`
	Variant string `json:"variant"`
}

func newServersCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List the servers in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry()
			if err != nil {
				return err
			}

			rules := a.variantRules()
			infos := make([]serverInfo, 0, len(reg.Names()))
			for _, name := range reg.Names() {
				cfg, err := reg.Lookup(name)
				if err != nil {
					return err
				}
				infos = append(infos, serverInfo{
					Name:    name,
					Addr:    cfg.Addr(),
					User:    cfg.User,
					Root:    cfg.Root,
					Variant: rules.Classify(cfg.Host).String(),
				})
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			for _, s := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", cyan.Render(s.Name), s.User+"@"+s.Addr+s.Root, gray.Render(s.Variant))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
