// Package cli provides the command-line interface for rhive.
// The CLI writes local tables (CSV, Parquet or a SQL query result) into a
// Hive-compatible warehouse and runs read-side helpers against it.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/adapters/memory"
	"github.com/canonica-labs/rhive/internal/config"
	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/observability"
	"github.com/canonica-labs/rhive/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
	OutputCSV   = "csv"
)

// CLI holds the command-line interface state.
type CLI struct {
	rootCmd *cobra.Command
	cfg     *config.Config

	out    io.Writer
	errOut io.Writer

	logger  *zap.Logger
	journal storage.Journal

	// warehouse backs the memory transport. It lives as long as the CLI so
	// that statements from separate sessions see the same tables.
	warehouse *memory.Client

	// Global flags
	configPath string
	jsonOutput bool
	output     string
	quiet      bool
	debug      bool
	dryRun     bool
}

// New creates a new CLI instance.
func New() *CLI {
	c := &CLI{
		out:       os.Stdout,
		errOut:    os.Stderr,
		logger:    zap.NewNop(),
		warehouse: memory.New(),
	}
	c.rootCmd = c.newRootCmd()
	return c
}

// SetOutput redirects standard and error output.
func (c *CLI) SetOutput(out, errOut io.Writer) {
	c.out = out
	c.errOut = errOut
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(errOut)
}

// SetArgs sets the arguments Execute parses instead of os.Args.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// Warehouse returns the in-process warehouse behind the memory transport.
func (c *CLI) Warehouse() *memory.Client {
	return c.warehouse
}

// Execute runs the CLI and returns the process exit code.
func (c *CLI) Execute(ctx context.Context) int {
	err := c.rootCmd.ExecuteContext(ctx)
	c.close()
	if err != nil {
		c.errorf("Error: %v\n", err)
		return errors.ExitCode(err)
	}
	return 0
}

func (c *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rhive",
		Short: "rhive - write local tables to Hive",
		Long: `rhive writes local tables into a Hive-compatible warehouse.

It provides:
  • Schema translation from Arrow to Hive DDL
  • Conflict resolution with overwrite, append, error_if_exists and ignore modes
  • Inline, delimited-file and Parquet ingestion strategies
  • Query, describe, sample and benchmark helpers

Connection settings come from rhive.yaml, ~/.rhive/config.yaml or --config,
overridden by RHIVE_* and HIVE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig(cmd.Context())
		},
	}

	cmd.Version = Version
	cmd.SetVersionTemplate(GetVersionString() + "\n")

	// Global flags
	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./rhive.yaml or ~/.rhive/config.yaml)")
	cmd.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "machine-readable JSON output (same as --output json)")
	cmd.PersistentFlags().StringVarP(&c.output, "output", "o", OutputTable, "output format: table, json, yaml or csv")
	cmd.PersistentFlags().BoolVar(&c.quiet, "quiet", false, "suppress non-essential output")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "verbose debug logs")
	cmd.PersistentFlags().BoolVar(&c.dryRun, "dry-run", false, "run against an empty in-memory warehouse and print the statements")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.NewInvalidArgument("flags", err.Error())
	})

	cmd.AddCommand(c.newWriteCmd())
	cmd.AddCommand(c.newCreateTableCmd())
	cmd.AddCommand(c.newDropCmd())
	cmd.AddCommand(c.newQueryCmd())
	cmd.AddCommand(c.newTablesCmd())
	cmd.AddCommand(c.newDescribeCmd())
	cmd.AddCommand(c.newSampleCmd())
	cmd.AddCommand(c.newBenchCmd())
	cmd.AddCommand(c.newHistoryCmd())
	cmd.AddCommand(c.newConfigCmd())
	cmd.AddCommand(c.newDoctorCmd())
	cmd.AddCommand(c.newVersionCmd())

	return cmd
}

func (c *CLI) initConfig(ctx context.Context) error {
	if c.jsonOutput {
		c.output = OutputJSON
	}
	switch c.output {
	case OutputTable, OutputJSON, OutputYAML, OutputCSV:
	default:
		return errors.NewInvalidArgument("output", fmt.Sprintf("unknown output format %q; expected table, json, yaml or csv", c.output))
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return errors.NewInvalidArgument("config", err.Error())
	}
	if c.dryRun {
		cfg.Hive.Transport = memory.Name
	}
	c.cfg = cfg

	level, format := cfg.Logging.Level, cfg.Logging.Format
	if c.debug {
		level, format = "debug", "console"
	}
	logger, err := observability.NewLogger(level, format)
	if err != nil {
		return errors.NewInvalidArgument("logging", err.Error())
	}
	c.logger = logger
	c.debugf("config: %s (transport %s)\n", displayPath(cfg.Path), cfg.Hive.Transport)

	return c.openJournal(ctx)
}

// openJournal connects the operation journal. Without a DSN, or in a dry
// run, operations are journaled in memory for the life of the process.
func (c *CLI) openJournal(ctx context.Context) error {
	if c.journal != nil {
		return nil
	}
	if c.cfg.Journal.DSN == "" || c.dryRun {
		c.journal = storage.NewMemoryJournal()
		return nil
	}
	j, err := storage.OpenPostgresJournal(ctx, storage.PostgresConfig{DSN: c.cfg.Journal.DSN})
	if err != nil {
		return errors.NewConnectionFailed("journal", 1, err)
	}
	c.journal = j
	return nil
}

func (c *CLI) close() {
	if closer, ok := c.journal.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("closing journal failed", zap.Error(err))
		}
	}
	_ = c.logger.Sync()
}

// registry returns every transport the CLI can open.
func (c *CLI) registry() *adapters.Registry {
	reg := adapters.NewRegistry()
	registerTransports(reg, c.logger)
	reg.Register(memory.Name, func(context.Context, adapters.ConnectionOptions) (adapters.Client, error) {
		return keepOpen{c.warehouse}, nil
	})
	return reg
}

// keepOpen ignores Close so the in-process warehouse outlives a session.
type keepOpen struct {
	adapters.Client
}

func (keepOpen) Close() error { return nil }

// Helper functions for output

func (c *CLI) printf(format string, args ...interface{}) {
	if !c.quiet {
		fmt.Fprintf(c.out, format, args...)
	}
}

func (c *CLI) println(args ...interface{}) {
	if !c.quiet {
		fmt.Fprintln(c.out, args...)
	}
}

func (c *CLI) errorf(format string, args ...interface{}) {
	fmt.Fprintf(c.errOut, format, args...)
}

func (c *CLI) debugf(format string, args ...interface{}) {
	if c.debug {
		fmt.Fprintf(c.errOut, "[DEBUG] "+format, args...)
	}
}

// exactArgs is cobra.ExactArgs reporting a validation error.
func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.NewInvalidArgument("arguments",
				fmt.Sprintf("%s expects %d argument(s), got %d; usage: %s", cmd.Name(), n, len(args), usage))
		}
		return nil
	}
}

// splitList parses a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults and environment)"
	}
	return p
}
