package sql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ShowTables lists the tables of the current database.
func ShowTables() string {
	return "SHOW TABLES"
}

// ShowTablesLike is the existence probe for table. A qualified name
// db.t is looked up inside db.
func ShowTablesLike(table string) string {
	db, name := SplitQualified(table)
	if db != "" {
		return fmt.Sprintf("SHOW TABLES IN %s LIKE %s", db, Quote(name))
	}
	return fmt.Sprintf("SHOW TABLES LIKE %s", Quote(name))
}

// Describe returns DESCRIBE <table>.
func Describe(table string) string {
	return "DESCRIBE " + table
}

// SelectSample returns SELECT * FROM <table> LIMIT <n>.
func SelectSample(table string, n int) (string, error) {
	if n < 0 {
		n = 0
	}
	query, _, err := sq.Select("*").From(table).Limit(uint64(n)).ToSql()
	if err != nil {
		return "", fmt.Errorf("build sample query: %w", err)
	}
	return query, nil
}

// DropTable returns DROP TABLE [IF EXISTS] <table>.
func DropTable(table string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + table
	}
	return "DROP TABLE " + table
}

// InsertValues renders a multi-row INSERT. Each tuple holds literals that
// were already produced by FormatValue, in column order.
//
//	INSERT INTO t (a, b) VALUES (1, 'x'), (2, NULL)
func InsertValues(table string, columns []string, tuples [][]string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")
	for i, tuple := range tuples {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(strings.Join(tuple, ", "))
		b.WriteByte(')')
	}
	return b.String()
}

// LoadDataLocal returns LOAD DATA LOCAL INPATH '<path>' INTO TABLE <table>.
func LoadDataLocal(path, table string) string {
	return fmt.Sprintf("LOAD DATA LOCAL INPATH %s INTO TABLE %s", Quote(path), table)
}

// SplitQualified splits db.table into its parts; db is empty for an
// unqualified name.
func SplitQualified(name string) (db, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
