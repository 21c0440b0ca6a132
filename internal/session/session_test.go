package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open(MemoryDSN, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenDefaultsToMemory(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, MemoryDSN, s.DSN())
}

func TestExecuteCell(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	result, err := s.Execute(ctx, `
		CREATE TABLE languages(name, rating, change);
		INSERT INTO languages VALUES('Python', 1, 2);
		INSERT INTO languages VALUES('Go', 2, NULL);
		SELECT * FROM languages ORDER BY rating;
	`)
	require.NoError(t, err)
	require.True(t, result.HasRows())
	assert.Equal(t, []string{"name", "rating", "change"}, result.Columns)
	assert.Equal(t, [][]string{
		{"Python", "1", "2"},
		{"Go", "2", "NULL"},
	}, result.Rows)
	assert.Equal(t, int64(2), result.RowsAffected)
}

func TestExecuteReportsRowsAffected(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE t(x); INSERT INTO t VALUES (1), (2), (3)")
	require.NoError(t, err)

	result, err := s.Execute(ctx, "UPDATE t SET x = x + 1 WHERE x > 1")
	require.NoError(t, err)
	assert.False(t, result.HasRows())
	assert.Equal(t, int64(2), result.RowsAffected)
	assert.Equal(t, "2 row(s) affected", result.PlainText())
	assert.Empty(t, result.HTML())
}

func TestExecuteStopsAtFirstError(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, "CREATE TABLE t(x); SELECT * FROM missing; CREATE TABLE u(y)")
	require.Error(t, err)

	names, err := s.LookupSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "x"}, names)
}

func TestExecuteEmptyCell(t *testing.T) {
	s := newTestSession(t)

	result, err := s.Execute(context.Background(), "  -- nothing here\n")
	require.NoError(t, err)
	assert.False(t, result.HasRows())
}

func TestExecuteTrailingBlockComment(t *testing.T) {
	s := newTestSession(t)

	result, err := s.Execute(context.Background(), "SELECT 1 AS one /* note; here */")
	require.NoError(t, err)
	require.True(t, result.HasRows())
	assert.Equal(t, [][]string{{"1"}}, result.Rows)
}

func TestExecuteTriggerBody(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	_, err := s.Execute(ctx, `
		CREATE TABLE t(x);
		CREATE TRIGGER dup AFTER INSERT ON t WHEN new.x < 2 BEGIN
			INSERT INTO t VALUES (new.x + 1);
		END;
		INSERT INTO t VALUES (1);
	`)
	require.NoError(t, err)

	result, err := s.Execute(ctx, "SELECT x FROM t ORDER BY x")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, result.Rows)
}

func TestLookupSchema(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	names, err := s.LookupSchema(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = s.Execute(ctx, `
		CREATE TABLE users(id INTEGER PRIMARY KEY AUTOINCREMENT, email TEXT);
		CREATE TABLE accounts(owner, balance);
	`)
	require.NoError(t, err)

	names, err = s.LookupSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts", "users", "owner", "balance", "id", "email"}, names)
}

func TestLookupSchemaHonorsContext(t *testing.T) {
	s := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.LookupSchema(ctx)
	assert.Error(t, err)
}
