// Package planner decides what a write does to the target table before
// any data is loaded.
//
// Rule-based and deterministic: the decision depends only on the write
// mode, whether the table exists and whether table creation was requested.
// The existence check and the actions that follow are not atomic; a
// concurrent external writer can create or drop the table in between.
// That race is accepted and not guarded against.
package planner

import (
	"fmt"
	"strings"

	"github.com/canonica-labs/rhive/internal/errors"
)

// WriteMode selects what happens when the target table already exists.
type WriteMode int

const (
	// ErrorIfExists fails when the table exists. It is the default.
	ErrorIfExists WriteMode = iota
	// Overwrite drops an existing table and recreates it.
	Overwrite
	// Append loads into the table as it is.
	Append
	// Ignore turns the write into a no-op when the table exists.
	Ignore
)

func (m WriteMode) String() string {
	switch m {
	case Overwrite:
		return "overwrite"
	case Append:
		return "append"
	case ErrorIfExists:
		return "error_if_exists"
	case Ignore:
		return "ignore"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// ParseWriteMode accepts the mode names used in configuration and on the
// command line.
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "overwrite":
		return Overwrite, nil
	case "append":
		return Append, nil
	case "error_if_exists", "error-if-exists", "errorifexists", "error", "":
		return ErrorIfExists, nil
	case "ignore":
		return Ignore, nil
	default:
		return ErrorIfExists, errors.NewInvalidArgument("mode",
			fmt.Sprintf("unknown write mode %q; expected overwrite, append, error_if_exists or ignore", s))
	}
}

// PreAction is the decision taken before loading.
type PreAction int

const (
	Proceed PreAction = iota
	Skip
	DropThenCreate
	Fail
)

func (a PreAction) String() string {
	switch a {
	case Proceed:
		return "proceed"
	case Skip:
		return "skip"
	case DropThenCreate:
		return "drop_then_create"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("PreAction(%d)", int(a))
	}
}

// Resolve maps a write mode and the observed table existence to a PreAction.
func Resolve(mode WriteMode, exists bool) PreAction {
	switch mode {
	case ErrorIfExists:
		if exists {
			return Fail
		}
		return Proceed
	case Ignore:
		if exists {
			return Skip
		}
		return Proceed
	case Overwrite:
		if exists {
			return DropThenCreate
		}
		return Proceed
	default:
		return Proceed
	}
}

// StepKind is one warehouse action of a write.
type StepKind string

const (
	StepDrop   StepKind = "drop"
	StepCreate StepKind = "create"
	StepLoad   StepKind = "load"
)

// WritePlan is the ordered list of steps a write executes.
type WritePlan struct {
	// Table is the target table name.
	Table string

	// Mode is the requested write mode.
	Mode WriteMode

	// Exists is the result of the single existence check.
	Exists bool

	// Action is the decision Resolve produced.
	Action PreAction

	// Steps run strictly in order; the first failure aborts the rest.
	Steps []StepKind

	// Skipped is true when the write is a successful no-op.
	Skipped bool
}

// Has reports whether the plan contains the given step.
func (p *WritePlan) Has(kind StepKind) bool {
	for _, s := range p.Steps {
		if s == kind {
			return true
		}
	}
	return false
}

// Plan turns a resolved decision into the ordered steps of a write.
// A Fail decision returns ErrTableAlreadyExists and no plan.
func Plan(table string, mode WriteMode, exists, createTable bool) (*WritePlan, error) {
	plan := &WritePlan{
		Table:  table,
		Mode:   mode,
		Exists: exists,
		Action: Resolve(mode, exists),
	}

	switch plan.Action {
	case Fail:
		return nil, errors.NewTableAlreadyExists(table)
	case Skip:
		plan.Skipped = true
	case DropThenCreate:
		plan.Steps = append(plan.Steps, StepDrop)
		if createTable {
			plan.Steps = append(plan.Steps, StepCreate)
		}
		plan.Steps = append(plan.Steps, StepLoad)
	case Proceed:
		if createTable && (!exists || mode == Overwrite) {
			plan.Steps = append(plan.Steps, StepCreate)
		}
		plan.Steps = append(plan.Steps, StepLoad)
	}

	return plan, nil
}

// Explain returns a human-readable description of the plan.
func (p *WritePlan) Explain() string {
	var b strings.Builder
	b.WriteString("Write Plan:\n")
	fmt.Fprintf(&b, "  Table: %s\n", p.Table)
	fmt.Fprintf(&b, "  Mode: %s\n", p.Mode)
	fmt.Fprintf(&b, "  Table Exists: %t\n", p.Exists)
	fmt.Fprintf(&b, "  Action: %s\n", p.Action)
	if p.Skipped {
		b.WriteString("  Steps: (none, write skipped)\n")
		return b.String()
	}
	steps := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = string(s)
	}
	fmt.Fprintf(&b, "  Steps: %s\n", strings.Join(steps, " -> "))
	return b.String()
}
