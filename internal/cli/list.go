package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func listCmd(load loader) *cobra.Command {
	var runs bool

	c := &cobra.Command{
		Use:   "list",
		Short: "List catalog groups, or recent runs with --runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()

			if runs {
				rs, total, err := a.store.ListRuns(cmd.Context(), 20, 0)
				if err != nil {
					return err
				}
				if total == 0 {
					fmt.Fprintln(out, "(no runs recorded)")
					return nil
				}
				for _, r := range rs {
					fmt.Fprintf(out, "%s  %-9s  %d/%d  %s\n",
						r.ID, r.Status, r.Completed, r.Total, humanize.Time(r.CreatedAt))
				}
				return nil
			}

			groups := a.catalog.Groups()
			if len(groups) == 0 {
				fmt.Fprintln(out, "(no benchmark groups)")
				return nil
			}
			for _, g := range groups {
				var on []string
				for _, b := range g.Benchmarks {
					if b.Enabled {
						on = append(on, b.ID)
					}
				}
				fmt.Fprintf(out, "%s  (%s enabled)  %s\n", g.Name,
					humanize.Comma(int64(len(on))), g.Target)
				for _, b := range g.Benchmarks {
					mark := " "
					if b.Enabled {
						mark = "x"
					}
					fmt.Fprintf(out, "  [%s] %s  %s\n", mark, b.ID, strings.TrimSpace(b.Name))
				}
			}
			return nil
		},
	}

	c.Flags().BoolVar(&runs, "runs", false, "list recent runs instead of catalog groups")
	return c
}
