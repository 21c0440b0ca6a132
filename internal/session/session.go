// Package session holds the live SQLite database a notebook executes against.
// It also answers schema lookups so completions can offer table and column
// names.
package session

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Session is an open database connection.
type Session struct {
	db     *gorm.DB
	dsn    string
	logger *zap.Logger
}

// Result is the outcome of the last statement of a cell.
type Result struct {
	Statement    string
	Columns      []string
	Rows         [][]string
	RowsAffected int64
}

// HasRows reports whether the statement produced a row set.
func (r *Result) HasRows() bool {
	return len(r.Columns) > 0
}

// Open connects to dsn, creating the database file if needed.
func Open(dsn string, logger *zap.Logger) (*Session, error) {
	if dsn == "" {
		dsn = MemoryDSN
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, xerrors.Errorf("could not open database %q: %w", dsn, err)
	}

	// An in-memory database lives as long as its connection.
	if dsn == MemoryDSN {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, xerrors.Errorf("could not access connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	logger = logger.With(zap.String("component", "session"), zap.String("database", dsn))
	logger.Debug("database opened")

	return &Session{db: db, dsn: dsn, logger: logger}, nil
}

// DSN returns the data source the session was opened with.
func (s *Session) DSN() string {
	return s.dsn
}

// Close releases the underlying connection.
func (s *Session) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LookupSchema returns the user table names in alphabetical order followed by
// the column names of each table.
func (s *Session) LookupSchema(ctx context.Context) ([]string, error) {
	db := s.db.WithContext(ctx)

	var tables []string
	err := db.Raw("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name").
		Scan(&tables).Error
	if err != nil {
		return nil, xerrors.Errorf("could not list tables: %w", err)
	}

	names := append([]string(nil), tables...)
	for _, table := range tables {
		var columns []string
		if err := db.Raw("SELECT name FROM pragma_table_info(?) ORDER BY cid", table).Scan(&columns).Error; err != nil {
			return nil, xerrors.Errorf("could not list columns of %s: %w", table, err)
		}
		names = append(names, columns...)
	}

	s.logger.Debug("schema lookup", zap.Int("tables", len(tables)), zap.Int("names", len(names)))
	return names, nil
}

// Execute runs every statement of a cell in order and returns the result of
// the last one. Execution stops at the first failing statement.
func (s *Session) Execute(ctx context.Context, cell string) (*Result, error) {
	statements := SplitStatements(cell)
	if len(statements) == 0 {
		return &Result{}, nil
	}

	var result *Result
	for _, stmt := range statements {
		var err error
		if returnsRows(stmt) {
			result, err = s.query(ctx, stmt)
		} else {
			result, err = s.exec(ctx, stmt)
		}
		if err != nil {
			s.logger.Debug("statement failed", zap.String("statement", stmt), zap.Error(err))
			return nil, err
		}
	}
	return result, nil
}

func (s *Session) exec(ctx context.Context, stmt string) (*Result, error) {
	tx := s.db.WithContext(ctx).Exec(stmt)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Result{Statement: stmt, RowsAffected: tx.RowsAffected}, nil
}

func (s *Session) query(ctx context.Context, stmt string) (*Result, error) {
	rows, err := s.db.WithContext(ctx).Raw(stmt).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Statement: stmt, Columns: columns, Rows: [][]string{}}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, formatRow(values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowsAffected = int64(len(result.Rows))
	return result, nil
}

func formatRow(values []any) []string {
	row := make([]string, len(values))
	for i, v := range values {
		switch v := v.(type) {
		case nil:
			row[i] = "NULL"
		case []byte:
			row[i] = string(v)
		default:
			row[i] = fmt.Sprint(v)
		}
	}
	return row
}

var rowKeywords = []string{"SELECT", "PRAGMA", "WITH", "VALUES", "EXPLAIN"}

func returnsRows(stmt string) bool {
	first := leadingKeyword(stmt)
	for _, kw := range rowKeywords {
		if first == kw {
			return true
		}
	}
	return false
}
