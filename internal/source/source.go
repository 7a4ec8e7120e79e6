// Package source loads local tables for the CLI: a CSV file with a header
// row, a Parquet file, or the result of a SQL query against duckdb, sqlite
// or postgres.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/csv"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/spf13/afero"

	"github.com/canonica-labs/rhive/internal/errors"
	"github.com/canonica-labs/rhive/internal/frame"

	_ "github.com/lib/pq"               // postgres driver
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	_ "modernc.org/sqlite"              // sqlite driver
)

// Kind is the type of a source.
type Kind string

const (
	CSV     Kind = "csv"
	Parquet Kind = "parquet"
	SQL     Kind = "sql"
)

// Spec describes where a local table comes from.
type Spec struct {
	// Kind selects the loader. Empty means detect from Path's extension.
	Kind Kind

	// Path is the CSV or Parquet file.
	Path string

	// Delimiter separates CSV fields. Default: ','.
	Delimiter rune

	// Driver is duckdb, sqlite or postgres for SQL sources.
	Driver string

	// DSN is the database/sql data source name for SQL sources.
	DSN string

	// Query is run against the SQL source.
	Query string

	// Fs reads files. Default: the OS filesystem.
	Fs afero.Fs
}

var drivers = map[string]string{
	"duckdb":   "duckdb",
	"sqlite":   "sqlite",
	"sqlite3":  "sqlite",
	"postgres": "postgres",
	"pq":       "postgres",
}

// DetectKind picks a kind from a file extension.
func DetectKind(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return CSV, nil
	case ".parquet", ".pq":
		return Parquet, nil
	default:
		return "", errors.NewInvalidArgument("source", fmt.Sprintf("cannot detect the format of %q; use --format", path))
	}
}

// Load builds a record from spec. The caller releases it.
func Load(ctx context.Context, spec Spec) (arrow.Record, error) {
	if spec.Fs == nil {
		spec.Fs = afero.NewOsFs()
	}
	kind := spec.Kind
	if kind == "" {
		if spec.Query != "" {
			kind = SQL
		} else {
			k, err := DetectKind(spec.Path)
			if err != nil {
				return nil, err
			}
			kind = k
		}
	}

	switch kind {
	case CSV:
		return loadCSV(spec)
	case Parquet:
		return loadParquet(ctx, spec)
	case SQL:
		return loadSQL(ctx, spec)
	default:
		return nil, errors.NewInvalidArgument("source", fmt.Sprintf("unknown source kind %q; expected csv, parquet or sql", kind))
	}
}

func loadCSV(spec Spec) (arrow.Record, error) {
	f, err := spec.Fs.Open(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", spec.Path, err)
	}
	defer f.Close()

	delim := spec.Delimiter
	if delim == 0 {
		delim = ','
		if strings.EqualFold(filepath.Ext(spec.Path), ".tsv") {
			delim = '\t'
		}
	}

	r := csv.NewInferringReader(f,
		csv.WithComma(delim),
		csv.WithHeader(true),
		csv.WithNullReader(true, "", "NULL", `\N`),
		csv.WithChunk(-1),
	)
	defer r.Release()

	var recs []arrow.Record
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("source: read %s: %w", spec.Path, err)
	}

	if len(recs) == 0 {
		if s := r.Schema(); s != nil {
			return frame.Empty(s), nil
		}
		return nil, errors.NewInvalidArgument("source", fmt.Sprintf("%s has no header row", spec.Path))
	}
	return frame.Concat(recs)
}

func loadParquet(ctx context.Context, spec Spec) (arrow.Record, error) {
	f, err := spec.Fs.Open(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", spec.Path, err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f, file.WithReadProps(parquet.NewReaderProperties(memory.DefaultAllocator)))
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", spec.Path, err)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: 64 * 1024}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", spec.Path, err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", spec.Path, err)
	}
	defer tbl.Release()

	return tableToRecord(tbl)
}

// tableToRecord flattens a chunked table into one record.
func tableToRecord(tbl arrow.Table) (arrow.Record, error) {
	cols := make([]arrow.Array, tbl.NumCols())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i := 0; i < int(tbl.NumCols()); i++ {
		chunks := tbl.Column(i).Data().Chunks()
		if len(chunks) == 0 {
			cols[i] = array.MakeArrayOfNull(memory.DefaultAllocator, tbl.Schema().Field(i).Type, 0)
			continue
		}
		col, err := array.Concatenate(chunks, memory.DefaultAllocator)
		if err != nil {
			return nil, fmt.Errorf("source: concatenate column %s: %w", tbl.Schema().Field(i).Name, err)
		}
		cols[i] = col
	}
	return array.NewRecord(tbl.Schema(), cols, tbl.NumRows()), nil
}

func loadSQL(ctx context.Context, spec Spec) (arrow.Record, error) {
	driver, ok := drivers[strings.ToLower(spec.Driver)]
	if !ok {
		return nil, errors.NewInvalidArgument("driver", fmt.Sprintf("unsupported source driver %q; expected duckdb, sqlite or postgres", spec.Driver))
	}
	if spec.Query == "" {
		return nil, errors.NewInvalidArgument("query", "a SQL source needs a query")
	}

	db, err := sql.Open(driver, spec.DSN)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", driver, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, spec.Query)
	if err != nil {
		return nil, fmt.Errorf("source: query %s: %w", driver, err)
	}
	defer rows.Close()

	return frame.FromRows(rows)
}
