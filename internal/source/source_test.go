package source

import (
	"context"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonica-labs/rhive/internal/frame"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		path    string
		want    Kind
		wantErr bool
	}{
		{"data.csv", CSV, false},
		{"data.TSV", CSV, false},
		{"data.parquet", Parquet, false},
		{"data.json", "", true},
		{"data", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectKind(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadCSVInfersTypes(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/people.csv", []byte("id,name,score\n1,ann,1.5\n2,,2.25\n3,NULL,3\n"), 0o644))

	rec, err := Load(context.Background(), Spec{Path: "/in/people.csv", Fs: fs})
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(3), rec.NumRows())
	assert.Equal(t, arrow.PrimitiveTypes.Int64, rec.Schema().Field(0).Type)
	assert.Equal(t, arrow.BinaryTypes.String, rec.Schema().Field(1).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, rec.Schema().Field(2).Type)

	_, rows := frame.Strings(rec)
	assert.Equal(t, [][]string{{"1", "ann", "1.5"}, {"2", "NULL", "2.25"}, {"3", "NULL", "3"}}, rows)
}

func TestLoadTSV(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/in/t.tsv", []byte("a\tb\nx\ty\n"), 0o644))

	rec, err := Load(context.Background(), Spec{Path: "/in/t.tsv", Fs: fs})
	require.NoError(t, err)
	defer rec.Release()

	header, rows := frame.Strings(rec)
	assert.Equal(t, []string{"a", "b"}, header)
	assert.Equal(t, [][]string{{"x", "y"}}, rows)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), Spec{Path: "/nope.csv", Fs: afero.NewMemMapFs()})
	assert.Error(t, err)
}

func TestLoadParquet(t *testing.T) {
	fs := afero.NewMemMapFs()

	s := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "ok", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), s)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{10, 20}, nil)
	b.Field(1).(*array.BooleanBuilder).AppendValues([]bool{true, false}, []bool{true, false})
	in := b.NewRecord()
	defer in.Release()

	f, err := fs.Create("/in/t.parquet")
	require.NoError(t, err)
	w, err := pqarrow.NewFileWriter(s, f, nil, pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	require.NoError(t, w.Write(in))
	require.NoError(t, w.Close())

	rec, err := Load(context.Background(), Spec{Path: "/in/t.parquet", Fs: fs})
	require.NoError(t, err)
	defer rec.Release()

	_, rows := frame.Strings(rec)
	assert.Equal(t, [][]string{{"10", "true"}, {"20", "NULL"}}, rows)
}

func TestLoadSQLFromDuckDB(t *testing.T) {
	rec, err := Load(context.Background(), Spec{
		Kind:   SQL,
		Driver: "duckdb",
		Query:  "SELECT CAST(i AS BIGINT) AS id, 'n' || CAST(i AS VARCHAR) AS name FROM range(3) t(i) ORDER BY i",
	})
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, arrow.PrimitiveTypes.Int64, rec.Schema().Field(0).Type)
	_, rows := frame.Strings(rec)
	assert.Equal(t, [][]string{{"0", "n0"}, {"1", "n1"}, {"2", "n2"}}, rows)
}

func TestLoadSQLValidation(t *testing.T) {
	_, err := Load(context.Background(), Spec{Kind: SQL, Driver: "oracle", Query: "SELECT 1"})
	assert.Error(t, err)

	_, err = Load(context.Background(), Spec{Kind: SQL, Driver: "sqlite"})
	assert.Error(t, err)

	_, err = Load(context.Background(), Spec{Kind: "xml", Path: "x"})
	assert.Error(t, err)
}
