// Package completion implements the completion source for SQL notebook cells.
// Candidates come from a fixed keyword catalog, optionally extended with names
// looked up from a live database session, and are filtered by the token under
// the cursor.
package completion

import (
	"context"

	"golang.org/x/xerrors"
)

// ErrUnavailable is returned when a completion is requested without an editor.
var ErrUnavailable = xerrors.New("No editor")

// Categories attached to catalog entries.
const (
	CategorySQL    = "sql"
	CategorySchema = "schema"
)

// Entry is one candidate completion.
type Entry struct {
	Text     string
	Offset   int
	Category string
}

// Request is the token being completed and where it starts.
type Request struct {
	TokenText   string
	TokenOffset int
}

// Reply holds the matches and the span of text they replace.
type Reply struct {
	Start    int            `json:"cursor_start"`
	End      int            `json:"cursor_end"`
	Matches  []string       `json:"matches"`
	Metadata map[string]any `json:"metadata"`
}

// Result is the single value delivered by FetchAsync.
type Result struct {
	Reply Reply
	Err   error
}

// Position is a cursor location inside an editor.
type Position struct {
	Line   int
	Column int
	Offset int
}

// Token is the text of the token at a position and the offset where it starts.
type Token struct {
	Value  string
	Offset int
}

// Editor exposes the cursor and token lookup of the host editor.
type Editor interface {
	CursorPosition() Position
	TokenForPosition(pos Position) Token
}

// SchemaLookup returns names (tables, columns) known to a live session.
type SchemaLookup interface {
	LookupSchema(ctx context.Context) ([]string, error)
}

var defaultCatalog = []Entry{
	{Text: "SELECT", Category: CategorySQL},
	{Text: "SELECT-ALL", Category: CategorySQL},
	{Text: "FROM", Category: CategorySQL},
	{Text: "CREATE", Category: CategorySQL},
	{Text: "CREATE TABLE", Category: CategorySQL},
	{Text: "CREATE DATABASE", Category: CategorySQL},
	{Text: "INSERT", Category: CategorySQL},
	{Text: "INSERT INTO", Category: CategorySQL},
	{Text: "VALUES", Category: CategorySQL},
}

// DefaultCatalog returns a copy of the built-in SQL keyword catalog.
func DefaultCatalog() []Entry {
	catalog := make([]Entry, len(defaultCatalog))
	copy(catalog, defaultCatalog)
	return catalog
}
