package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/pkg/hive"
)

// DiagnosticCheck represents a single diagnostic check result.
type DiagnosticCheck struct {
	Name    string `json:"name" yaml:"name"`
	Passed  bool   `json:"passed" yaml:"passed"`
	Message string `json:"message" yaml:"message"`
	Details string `json:"details,omitempty" yaml:"details,omitempty"`

	err error
}

func (c *CLI) newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run system diagnostics",
		Long: `Run system diagnostics.

Checks:
  - configuration
  - transport availability
  - warehouse connectivity
  - staging directory
  - operation journal`,
		Args: exactArgs(0, "rhive doctor"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDoctor(cmd.Context())
		},
	}
}

func (c *CLI) runDoctor(ctx context.Context) error {
	checks := []DiagnosticCheck{
		c.checkConfig(),
		c.checkTransport(),
	}
	if checks[0].Passed && checks[1].Passed {
		checks = append(checks, c.checkWarehouse(ctx))
	}
	checks = append(checks, c.checkStaging(), c.checkJournal(ctx))

	var failed error
	for _, check := range checks {
		if !check.Passed && failed == nil {
			failed = check.err
		}
	}

	err := c.renderValue(map[string]any{"checks": checks, "all_passed": failed == nil}, func() {
		c.println("rhive System Diagnostics")
		c.println("========================")
		c.println("")
		for _, check := range checks {
			c.printCheck(check)
		}
		c.println("")
		if failed == nil {
			c.println("✓ All checks passed")
		} else {
			c.println("✗ Some checks failed - see above for details")
		}
	})
	if err != nil {
		return err
	}
	return failed
}

func (c *CLI) printCheck(check DiagnosticCheck) {
	status := "✗"
	if check.Passed {
		status = "✓"
	}
	c.printf("%s %s: %s\n", status, check.Name, check.Message)
	if check.Details != "" && !check.Passed {
		c.printf("  → %s\n", check.Details)
	}
}

func failedCheck(check DiagnosticCheck, err error) DiagnosticCheck {
	check.Passed = false
	check.err = err
	if check.Details == "" {
		check.Details = firstLine(err.Error())
	}
	return check
}

func (c *CLI) checkConfig() DiagnosticCheck {
	check := DiagnosticCheck{Name: "Configuration"}
	if err := c.cfg.Validate(); err != nil {
		check.Message = "Invalid configuration"
		check.Details = strings.ReplaceAll(err.Error(), "\n", "; ")
		return failedCheck(check, errors.NewInvalidArgument("config", err.Error()))
	}
	check.Passed = true
	check.Message = fmt.Sprintf("%s (%s)", displayPath(c.cfg.Path), c.cfg.HiveConfig())
	return check
}

func (c *CLI) checkTransport() DiagnosticCheck {
	check := DiagnosticCheck{Name: "Transport"}
	reg := c.registry()
	if !reg.Has(c.cfg.Hive.Transport) {
		err := errors.NewTransportUnavailable(c.cfg.Hive.Transport, reg.Available())
		check.Message = fmt.Sprintf("%s is not available", c.cfg.Hive.Transport)
		check.Details = "Available: " + strings.Join(reg.Available(), ", ")
		return failedCheck(check, err)
	}
	check.Passed = true
	check.Message = c.cfg.Hive.Transport
	return check
}

func (c *CLI) checkWarehouse(ctx context.Context) DiagnosticCheck {
	check := DiagnosticCheck{Name: "Warehouse Connectivity"}
	start := time.Now()
	r := hive.NewReader(c.cfg.HiveConfig(), c.cfg.Factory(c.registry()), hive.WithLogger(c.logger))
	if err := r.Connect(ctx); err != nil {
		check.Message = fmt.Sprintf("Cannot connect to %s:%d", c.cfg.Hive.Host, c.cfg.Hive.Port)
		return failedCheck(check, err)
	}
	defer r.Disconnect()

	check.Passed = true
	check.Message = fmt.Sprintf("Connected in %s", time.Since(start).Round(time.Millisecond))
	return check
}

func (c *CLI) checkStaging() DiagnosticCheck {
	check := DiagnosticCheck{Name: "Staging Directory"}
	fs := afero.NewOsFs()
	f, err := afero.TempFile(fs, c.cfg.Writer.StagingDir, "rhive-doctor-*")
	if err != nil {
		check.Message = fmt.Sprintf("%s is not writable", c.cfg.Writer.StagingDir)
		return failedCheck(check, errors.NewStagingIO("create", c.cfg.Writer.StagingDir, err))
	}
	f.Close()
	_ = fs.Remove(f.Name())

	check.Passed = true
	check.Message = c.cfg.Writer.StagingDir
	return check
}

func (c *CLI) checkJournal(ctx context.Context) DiagnosticCheck {
	check := DiagnosticCheck{Name: "Operation Journal"}
	if err := c.journal.CheckConnectivity(ctx); err != nil {
		check.Message = "Journal unreachable"
		return failedCheck(check, fmt.Errorf("journal: %w", err))
	}
	check.Passed = true
	if c.cfg.Journal.DSN == "" || c.dryRun {
		check.Message = "In memory (set journal.dsn to persist)"
	} else {
		check.Message = "PostgreSQL"
	}
	return check
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
