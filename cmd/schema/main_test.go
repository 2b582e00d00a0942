package main

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitStatements verifies that multi-line statements are joined and comments are dropped.
func TestSplitStatements(t *testing.T) {
	statements, err := splitStatements(strings.NewReader(`
-- first
CREATE TABLE a (
    id INT
);

DROP TABLE b;
INSERT INTO a VALUES (1)
`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE TABLE a ( id INT );",
		"DROP TABLE b;",
		"INSERT INTO a VALUES (1)",
	}, statements)
}

// TestDefaultSchema verifies that the built-in script creates the persons table in one statement.
func TestDefaultSchema(t *testing.T) {
	statements, err := splitStatements(strings.NewReader(defaultSchema))
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.True(t, strings.HasPrefix(statements[0], "CREATE TABLE IF NOT EXISTS persons ("))
	for _, column := range []string{"id", "name", "last_name", "personal_code", "phone_number", "address",
		"additional_info", "disease_or_problem", "status", "emergency_note", "created_at"} {
		assert.Contains(t, statements[0], " "+column+" ")
	}
}

// TestExecuteStopsAtFailure verifies that statements after a failing one are not executed.
func TestExecuteStopsAtFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(sqlDB, "postgres")
	defer db.Close()

	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnError(errors.New("permission denied"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err = execute(db, []string{"CREATE TABLE a (id INT);", "CREATE TABLE b (id INT);", "CREATE TABLE c (id INT);"}, logger)
	require.Error(t, err)
	assert.Equal(t, "statement 2: permission denied", err.Error())
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
