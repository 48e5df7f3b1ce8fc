// Package cli implements the benchrun command line.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/benchrun/internal/config"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags override the environment configuration.
type globalFlags struct {
	catalog    string
	db         string
	logLevel   string
	exportDir  string
	uploadURL  string
	resultsURL string
}

func (f *globalFlags) apply(cfg config.Config) config.Config {
	if f.catalog != "" {
		cfg.CatalogPath = f.catalog
	}
	if f.db != "" {
		cfg.DBPath = f.db
	}
	if f.logLevel != "" {
		cfg.LogLevel = config.ParseLogLevel(f.logLevel)
	}
	if f.exportDir != "" {
		cfg.ExportDir = f.exportDir
	}
	if f.uploadURL != "" {
		cfg.UploadURL = f.uploadURL
	}
	if f.resultsURL != "" {
		cfg.ResultsURL = f.resultsURL
	}
	return cfg
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:          "benchrun",
		Short:        "benchrun runs benchmark groups one at a time and collects their results",
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	// load builds the app from env config plus flag overrides. Logs go to
	// the command's error stream.
	load := func(c *cobra.Command) (*app, error) {
		cfg := flags.apply(config.Load())
		return newApp(cfg, c.OutOrStdout(), c.ErrOrStderr())
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.catalog, "catalog", "", "benchmark catalog YAML (env BENCHRUN_CATALOG)")
	pf.StringVar(&flags.db, "db", "", "SQLite database path (env BENCHRUN_DB_PATH)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug|info|warn|error (env BENCHRUN_LOG_LEVEL)")
	pf.StringVar(&flags.exportDir, "export-dir", "", "directory for CSV exports (env BENCHRUN_EXPORT_DIR)")
	pf.StringVar(&flags.uploadURL, "upload-url", "", "results service base URL (env BENCHRUN_UPLOAD_URL)")
	pf.StringVar(&flags.resultsURL, "results-url", "", "results website URL (env BENCHRUN_RESULTS_URL)")

	cmd.AddCommand(
		serveCmd(load),
		runCmd(load),
		listCmd(load),
		exportCmd(load),
		uploadCmd(load),
		openCmd(load),
	)
	return cmd
}

type loader func(*cobra.Command) (*app, error)
