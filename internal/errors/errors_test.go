package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesReasonAndSuggestion(t *testing.T) {
	err := NewTableAlreadyExists("sales")

	msg := err.Error()
	assert.Contains(t, msg, "table already exists: sales")
	assert.Contains(t, msg, "Reason:")
	assert.Contains(t, msg, "Suggestion:")
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("write failed: %w", NewTableAlreadyExists("t"))
	assert.True(t, IsTableAlreadyExists(wrapped))
	assert.False(t, IsNotConnected(wrapped))

	assert.True(t, IsNotConnected(fmt.Errorf("x: %w", NewNotConnected("write"))))
	assert.True(t, IsUnsupportedType(NewUnsupportedType("tags", "list<item: string>")))
}

func TestExecutionFailureKeepsCauseAndStage(t *testing.T) {
	cause := stderrors.New("ParseException line 1:7")
	err := NewExecutionFailure(StageCreate, "CREATE TABLE t (a INT) STORED AS PARQUET", cause)

	stage, ok := IsExecutionFailure(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, StageCreate, stage)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Caused by: ParseException")
}

func TestExecutionFailureTruncatesLongStatements(t *testing.T) {
	long := "INSERT INTO t (a) VALUES "
	for i := 0; i < 100; i++ {
		long += "(1), "
	}
	err := NewExecutionFailure(StageInsert, long, nil)

	assert.Equal(t, long, err.Statement)
	assert.Contains(t, err.Reason, "...")
	assert.Less(t, len(err.Reason), len(long))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "validation", err: NewTableAlreadyExists("t"), want: 1},
		{name: "connection", err: NewNotConnected("query"), want: 2},
		{name: "connect failed", err: NewConnectionFailed("hive:10000", 3, stderrors.New("EOF")), want: 2},
		{name: "warehouse", err: fmt.Errorf("x: %w", NewExecutionFailure(StageLoad, "LOAD", nil)), want: 3},
		{name: "staging", err: NewStagingIO("create", "/tmp/x.csv", nil), want: 4},
		{name: "foreign", err: stderrors.New("boom"), want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestConnectionFailedKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewConnectionFailed("hive.local:10000", 3, cause)

	assert.True(t, IsConnectionFailed(fmt.Errorf("connect: %w", err)))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}
