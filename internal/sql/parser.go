// Package sql renders the SQL surface rhive sends to a Hive-like
// warehouse: literal formatting, statement templates, identifier checks
// and a first-keyword statement classifier.
//
// No dialect parsing happens here; statements are built from validated
// identifiers and formatted literals only.
package sql

import (
	"regexp"
	"strings"

	"github.com/canonica-labs/rhive/internal/errors"
)

// Operation is the coarse class of a SQL statement.
type Operation string

const (
	OperationQuery   Operation = "QUERY"
	OperationWrite   Operation = "WRITE"
	OperationUnknown Operation = "UNKNOWN"
)

// IsWrite reports whether the operation modifies the warehouse.
func (o Operation) IsWrite() bool {
	return o == OperationWrite
}

var identifierPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*\.)?[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier checks a table or column name. A single db. prefix is
// allowed.
func ValidateIdentifier(name string) error {
	if name == "" {
		return errors.NewInvalidArgument("table", "name is empty")
	}
	if !identifierPattern.MatchString(name) {
		return errors.NewInvalidArgument("table",
			"name "+Quote(name)+" must match [A-Za-z_][A-Za-z0-9_]* with an optional db. prefix")
	}
	return nil
}

// ValidateColumnName checks an unqualified column name.
func ValidateColumnName(name string) error {
	if strings.Contains(name, ".") || !identifierPattern.MatchString(name) {
		return errors.NewInvalidArgument("column",
			"name "+Quote(name)+" must match [A-Za-z_][A-Za-z0-9_]*")
	}
	return nil
}

// Classify determines the operation of stmt from its first keyword.
func Classify(stmt string) Operation {
	fields := strings.Fields(strings.TrimSpace(stmt))
	if len(fields) == 0 {
		return OperationUnknown
	}
	switch strings.ToUpper(strings.TrimLeft(fields[0], "(")) {
	case "SELECT", "SHOW", "DESCRIBE", "DESC", "WITH", "EXPLAIN":
		return OperationQuery
	case "CREATE", "DROP", "INSERT", "LOAD", "ALTER", "TRUNCATE", "MSCK":
		return OperationWrite
	default:
		return OperationUnknown
	}
}
