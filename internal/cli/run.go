package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/seantiz/benchrun/internal/device"
	"github.com/seantiz/benchrun/internal/model"
)

func runCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every enabled benchmark group once, one at a time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if err := a.engine.Recover(ctx); err != nil {
				return err
			}
			stop := runEngine(ctx, a)
			defer stop()

			out := cmd.OutOrStdout()
			printHost(out, device.Collect(ctx))

			run, err := a.actions.StartAll(ctx)
			if err != nil {
				return err
			}
			if err := a.engine.WaitIdle(ctx); err != nil {
				return fmt.Errorf("wait for run: %w", err)
			}

			execs, err := a.store.ListExecutions(ctx, run.ID)
			if err != nil {
				return err
			}
			printExecutions(out, execs)

			failed := 0
			for _, e := range execs {
				if e.Status != model.StatusCompleted {
					failed++
				}
			}
			fmt.Fprintf(out, "\n%d of %d group(s) completed, started %s\n",
				len(execs)-failed, len(execs), humanize.Time(run.CreatedAt))
			if failed > 0 {
				return fmt.Errorf("run %s: %d group(s) did not complete", run.ID, failed)
			}
			return nil
		},
	}
}

func printHost(w io.Writer, info device.Info) {
	fmt.Fprintf(w, "Host: %s (%s/%s, %d CPUs, %s)\n\n",
		info.Hostname, info.OS, info.Arch, info.LogicalCPUs, humanize.IBytes(info.TotalMemory))
}

func printExecutions(w io.Writer, execs []*model.Execution) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tSTATUS\tRESULT\tEXIT\tDURATION")
	for _, e := range execs {
		exit := "-"
		if e.ExitCode != nil {
			exit = fmt.Sprint(*e.ExitCode)
		}
		dur := "-"
		if e.DurationMS != nil {
			dur = (time.Duration(*e.DurationMS) * time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Group, e.Status, e.ResultCode, exit, dur)
	}
	tw.Flush()
}
