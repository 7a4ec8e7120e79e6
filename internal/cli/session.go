package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/adapters/hiveserver2"
	"github.com/canonica-labs/rhive/internal/adapters/sqldb"
	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/ingest"
	"github.com/canonica-labs/rhive/internal/observability"
	"github.com/canonica-labs/rhive/pkg/hive"
)

func registerTransports(reg *adapters.Registry, logger *zap.Logger) {
	reg.Register(hiveserver2.Name, hiveserver2.Factory(logger))
	reg.Register(sqldb.Trino, sqldb.TrinoFactory)
	reg.Register(sqldb.DuckDB, sqldb.DuckDBFactory)
	reg.Register(sqldb.Generic, sqldb.GenericFactory)
}

// sessionOptions are the hive options shared by every command.
func (c *CLI) sessionOptions() []hive.Option {
	return []hive.Option{
		hive.WithLogger(c.logger),
		hive.WithRecorder(observability.MultiRecorder{
			observability.NewZapRecorder(c.logger),
			c.journal,
		}),
	}
}

// loader builds the ingestion loader from the writer config. A non-empty
// strategy overrides writer.strategy.
func (c *CLI) loader(strategy string) (*ingest.Loader, error) {
	s, opts, err := c.cfg.IngestOptions()
	if err != nil {
		return nil, err
	}
	if strategy != "" {
		if s, err = ingest.ParseStrategy(strategy); err != nil {
			return nil, err
		}
	}
	opts.Logger = c.logger
	return ingest.NewLoader(s, opts), nil
}

func (c *CLI) validateConfig() error {
	if err := c.cfg.Validate(); err != nil {
		return errors.NewInvalidArgument("config", err.Error())
	}
	return nil
}

// withWriter runs fn inside a connected writer session.
func (c *CLI) withWriter(ctx context.Context, strategy string, fn func(*hive.Writer) error) error {
	if err := c.validateConfig(); err != nil {
		return err
	}
	l, err := c.loader(strategy)
	if err != nil {
		return err
	}
	opts := append(c.sessionOptions(), hive.WithLoader(l))
	err = hive.WithWriter(ctx, c.cfg.HiveConfig(), c.cfg.Factory(c.registry()), fn, opts...)
	c.printDryRun()
	return err
}

// withReader runs fn inside a connected reader session.
func (c *CLI) withReader(ctx context.Context, fn func(*hive.Reader) error) error {
	if err := c.validateConfig(); err != nil {
		return err
	}
	err := hive.WithReader(ctx, c.cfg.HiveConfig(), c.cfg.Factory(c.registry()), fn, c.sessionOptions()...)
	c.printDryRun()
	return err
}

// printDryRun lists the statements the memory warehouse received.
func (c *CLI) printDryRun() {
	if !c.dryRun {
		return
	}
	stmts := c.warehouse.Statements()
	if len(stmts) == 0 {
		return
	}
	c.errorf("-- dry run: %d statement(s)\n", len(stmts))
	for _, s := range stmts {
		c.errorf("%s;\n", s.SQL)
	}
	c.warehouse.ResetLog()
}
