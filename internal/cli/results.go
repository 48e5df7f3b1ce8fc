package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func exportCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export finished results to a CSV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			o := <-a.actions.Export(cmd.Context())
			if o.Err != nil {
				return o.Err
			}

			size := ""
			if fi, err := os.Stat(o.Path); err == nil {
				size = " (" + humanize.Bytes(uint64(fi.Size())) + ")"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", o.Path, size)
			return nil
		},
	}
}

func uploadCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload finished results to the results service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if o := <-a.actions.Upload(cmd.Context()); !o.OK {
				return errors.New("upload failed")
			}
			return nil
		},
	}
}

func openCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Open the results website in the system browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			u, err := a.actions.ViewResults()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}
