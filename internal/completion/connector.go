package completion

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Connector answers completion requests for one editor.
type Connector struct {
	editor  Editor
	catalog []Entry
	schema  SchemaLookup
	logger  *zap.Logger
}

// Option configures a Connector.
type Option func(*Connector)

// WithEditor sets the editor the connector reads the cursor and token from.
func WithEditor(editor Editor) Option {
	return func(c *Connector) {
		c.editor = editor
	}
}

// WithCatalog replaces the default keyword catalog.
func WithCatalog(catalog []Entry) Option {
	return func(c *Connector) {
		c.catalog = append([]Entry(nil), catalog...)
	}
}

// WithSchemaLookup adds names from a live session after the catalog.
func WithSchemaLookup(schema SchemaLookup) Option {
	return func(c *Connector) {
		c.schema = schema
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connector) {
		c.logger = logger
	}
}

// NewConnector creates a Connector using the default catalog unless overridden.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		catalog: DefaultCatalog(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "completion"))
	return c
}

// Fetch reads the token under the editor's cursor and returns its completions.
// It fails with ErrUnavailable when the connector has no editor.
func (c *Connector) Fetch(ctx context.Context) (Reply, error) {
	if c.editor == nil {
		return Reply{}, ErrUnavailable
	}

	pos := c.editor.CursorPosition()
	token := c.editor.TokenForPosition(pos)

	return c.Complete(ctx, Request{
		TokenText:   token.Value,
		TokenOffset: token.Offset,
	}), nil
}

// FetchAsync runs Fetch in the background. The returned channel yields exactly
// one Result and is then closed.
func (c *Connector) FetchAsync(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	if c.editor == nil {
		out <- Result{Err: ErrUnavailable}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		reply, err := c.Fetch(ctx)
		out <- Result{Reply: reply, Err: err}
	}()
	return out
}

// Complete returns the completions for a request the caller already holds.
func (c *Connector) Complete(ctx context.Context, req Request) Reply {
	reply := Match(c.candidates(ctx), req)
	c.logger.Debug("completion",
		zap.String("token", req.TokenText),
		zap.Int("offset", req.TokenOffset),
		zap.Int("count", len(reply.Matches)),
	)
	return reply
}

func (c *Connector) candidates(ctx context.Context) []Entry {
	if c.schema == nil {
		return c.catalog
	}

	names, err := c.schema.LookupSchema(ctx)
	if err != nil {
		c.logger.Warn("schema lookup failed, using keyword catalog only", zap.Error(err))
		return c.catalog
	}

	entries := make([]Entry, 0, len(c.catalog)+len(names))
	entries = append(entries, c.catalog...)
	for _, name := range names {
		entries = append(entries, Entry{Text: name, Category: CategorySchema})
	}
	return entries
}

// Match filters catalog to the entries with a category whose text starts with
// the request token. Matches keep catalog order and contain no duplicates.
func Match(catalog []Entry, req Request) Reply {
	tagged := lo.Filter(catalog, func(e Entry, _ int) bool {
		return e.Category != ""
	})
	prefixed := lo.Filter(tagged, func(e Entry, _ int) bool {
		return strings.HasPrefix(e.Text, req.TokenText)
	})
	matches := lo.Uniq(lo.Map(prefixed, func(e Entry, _ int) string {
		return e.Text
	}))
	if matches == nil {
		matches = []string{}
	}

	return Reply{
		Start:    req.TokenOffset,
		End:      req.TokenOffset + utf8.RuneCountInString(req.TokenText),
		Matches:  matches,
		Metadata: map[string]any{},
	}
}
