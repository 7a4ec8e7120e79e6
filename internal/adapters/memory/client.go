// Package memory provides an in-process warehouse that understands the
// SQL surface rhive generates. Every statement is recorded, and failures
// can be injected per statement prefix. It backs the test suites and the
// CLI's --dry-run mode.
package memory

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/spf13/afero"

	"github.com/canonica-labs/rhive/internal/adapters"
	"github.com/canonica-labs/rhive/internal/frame"
	"github.com/canonica-labs/rhive/internal/schema"
)

// Name is the transport name this client registers under.
const Name = "memory"

// Column is a declared warehouse column.
type Column struct {
	Name string
	Type string
}

// Table is a warehouse table held in memory.
type Table struct {
	Name       string
	Columns    []Column
	Partitions []Column
	Format     string
	Rows       [][]any
}

// AllColumns returns data columns followed by partition columns.
func (t *Table) AllColumns() []Column {
	out := make([]Column, 0, len(t.Columns)+len(t.Partitions))
	out = append(out, t.Columns...)
	return append(out, t.Partitions...)
}

// StatementKind tells whether a statement came through Exec or Query.
type StatementKind string

const (
	KindExec  StatementKind = "exec"
	KindQuery StatementKind = "query"
)

// Statement is one recorded statement.
type Statement struct {
	Kind StatementKind
	SQL  string
}

type failure struct {
	prefix    string
	err       error
	remaining int
}

// Client is an in-memory warehouse session.
type Client struct {
	mu           sync.Mutex
	tables       map[string]*Table
	database     string
	log          []Statement
	failures     []*failure
	pingFailures []error
	pings        int
	closed       bool

	fs         afero.Fs
	delimiter  rune
	nullMarker string
}

// Option configures a Client.
type Option func(*Client)

// WithFs sets the filesystem LOAD DATA reads from.
func WithFs(fs afero.Fs) Option {
	return func(c *Client) { c.fs = fs }
}

// WithDelimiter sets the field delimiter of loaded text files.
func WithDelimiter(d rune) Option {
	return func(c *Client) { c.delimiter = d }
}

// WithNullMarker sets the null marker of loaded text files.
func WithNullMarker(m string) Option {
	return func(c *Client) { c.nullMarker = m }
}

// WithDatabase sets the current database.
func WithDatabase(db string) Option {
	return func(c *Client) {
		if db != "" {
			c.database = strings.ToLower(db)
		}
	}
}

// New creates an empty warehouse.
func New(opts ...Option) *Client {
	c := &Client{
		tables:     make(map[string]*Table),
		database:   "default",
		fs:         afero.NewOsFs(),
		delimiter:  ',',
		nullMarker: `\N`,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Factory returns an adapters.Factory producing fresh warehouses.
func Factory(opts ...Option) adapters.Factory {
	return func(_ context.Context, co adapters.ConnectionOptions) (adapters.Client, error) {
		return New(append([]Option{WithDatabase(co.Database)}, opts...)...), nil
	}
}

// Name returns the transport name.
func (c *Client) Name() string {
	return Name
}

// FailOn makes every statement starting with prefix fail with err.
func (c *Client) FailOn(prefix string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, &failure{prefix: strings.ToUpper(prefix), err: err})
}

// FailOnce makes the next statement starting with prefix fail with err.
func (c *Client) FailOnce(prefix string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, &failure{prefix: strings.ToUpper(prefix), err: err, remaining: 1})
}

// FailPings makes the next n pings fail with err.
func (c *Client) FailPings(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.pingFailures = append(c.pingFailures, err)
	}
}

// Pings returns the number of Ping calls.
func (c *Client) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// Statements returns every recorded statement in order.
func (c *Client) Statements() []Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Statement(nil), c.log...)
}

// Execs returns the SQL of statements issued through Exec.
func (c *Client) Execs() []string {
	return c.filter(KindExec)
}

// Queries returns the SQL of statements issued through Query.
func (c *Client) Queries() []string {
	return c.filter(KindQuery)
}

func (c *Client) filter(kind StatementKind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, s := range c.log {
		if s.Kind == kind {
			out = append(out, s.SQL)
		}
	}
	return out
}

// ResetLog forgets recorded statements. Tables are kept.
func (c *Client) ResetLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}

// Table returns a copy of the named table.
func (c *Client) Table(name string) (*Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[c.key(name)]
	if !ok {
		return nil, false
	}
	cp := *t
	cp.Rows = append([][]any(nil), t.Rows...)
	return &cp, true
}

// TableNames returns the qualified names of all tables, sorted.
func (c *Client) TableNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for k := range c.tables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Exec runs a statement.
func (c *Client) Exec(ctx context.Context, stmt string) error {
	rec, err := c.run(ctx, KindExec, stmt)
	if rec != nil {
		rec.Release()
	}
	return err
}

// Query runs a statement and returns its result.
func (c *Client) Query(ctx context.Context, stmt string) (arrow.Record, error) {
	return c.run(ctx, KindQuery, stmt)
}

// Ping fails while injected ping failures remain.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	if c.closed {
		return fmt.Errorf("memory: client is closed")
	}
	if len(c.pingFailures) > 0 {
		err := c.pingFailures[0]
		c.pingFailures = c.pingFailures[1:]
		return err
	}
	return nil
}

// Close marks the client closed. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) key(name string) string {
	name = strings.ToLower(name)
	if !strings.Contains(name, ".") {
		return c.database + "." + name
	}
	return name
}

func (c *Client) run(ctx context.Context, kind StatementKind, stmt string) (arrow.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("memory: client is closed")
	}
	c.log = append(c.log, Statement{Kind: kind, SQL: stmt})
	if err := c.injected(stmt); err != nil {
		return nil, err
	}

	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	switch {
	case useRe.MatchString(s):
		db := strings.ToLower(useRe.FindStringSubmatch(s)[1])
		c.database = db
		return nil, nil
	case showRe.MatchString(s):
		m := showRe.FindStringSubmatch(s)
		return c.showTables(m[1], m[2])
	case describeRe.MatchString(s):
		return c.describe(describeRe.FindStringSubmatch(s)[1])
	case createRe.MatchString(s):
		st, err := parseCreate(createRe.FindStringSubmatch(s))
		if err != nil {
			return nil, parseError(err)
		}
		return nil, c.create(st)
	case dropRe.MatchString(s):
		m := dropRe.FindStringSubmatch(s)
		return nil, c.drop(m[2], m[1] != "")
	case insertRe.MatchString(s):
		m := insertRe.FindStringSubmatch(s)
		return nil, c.insert(m[1], m[2], m[3])
	case loadRe.MatchString(s):
		m := loadRe.FindStringSubmatch(s)
		return nil, c.load(unquote(m[1]), m[3], m[2] != "")
	case selectRe.MatchString(s):
		m := selectRe.FindStringSubmatch(s)
		return c.selectFrom(m[2], m[1] != "*", m[3])
	case literalRe.MatchString(s):
		v, _ := strconv.ParseInt(literalRe.FindStringSubmatch(s)[1], 10, 64)
		return frame.FromValues([]frame.ColumnSpec{{Name: "_c0", Type: arrow.PrimitiveTypes.Int32}}, [][]any{{v}})
	default:
		return nil, parseError(fmt.Errorf("cannot recognize input near %q", truncate(s)))
	}
}

func (c *Client) injected(stmt string) error {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	for i, f := range c.failures {
		if !strings.HasPrefix(upper, f.prefix) {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
			if f.remaining == 0 {
				c.failures = append(c.failures[:i], c.failures[i+1:]...)
			}
		}
		return f.err
	}
	return nil
}

// ErrSemantic marks errors the memory warehouse raises for invalid statements.
var ErrSemantic = stderrors.New("memory: semantic error")

func parseError(err error) error {
	return fmt.Errorf("%w: ParseException %v", ErrSemantic, err)
}

func semanticError(format string, args ...any) error {
	return fmt.Errorf("%w: SemanticException "+format, append([]any{ErrSemantic}, args...)...)
}

func (c *Client) showTables(db, pattern string) (arrow.Record, error) {
	if db == "" {
		db = c.database
	}
	db = strings.ToLower(db)

	var match func(string) bool
	if pattern != "" {
		re := likePattern(unquote(pattern))
		match = re.MatchString
	}

	var rows [][]any
	for _, k := range sortedKeys(c.tables) {
		tdb, name, _ := strings.Cut(k, ".")
		if tdb != db {
			continue
		}
		if match != nil && !match(name) {
			continue
		}
		rows = append(rows, []any{name})
	}
	return frame.FromValues([]frame.ColumnSpec{{Name: "tab_name", Type: arrow.BinaryTypes.String}}, rows)
}

func (c *Client) describe(name string) (arrow.Record, error) {
	t, ok := c.tables[c.key(name)]
	if !ok {
		return nil, semanticError("Table not found %s", name)
	}
	var rows [][]any
	for _, col := range t.Columns {
		rows = append(rows, []any{col.Name, strings.ToLower(col.Type), ""})
	}
	for _, col := range t.Partitions {
		rows = append(rows, []any{col.Name, strings.ToLower(col.Type), "partition column"})
	}
	return frame.FromValues([]frame.ColumnSpec{
		{Name: "col_name", Type: arrow.BinaryTypes.String},
		{Name: "data_type", Type: arrow.BinaryTypes.String},
		{Name: "comment", Type: arrow.BinaryTypes.String},
	}, rows)
}

func (c *Client) create(st *createStmt) error {
	k := c.key(st.name)
	if _, exists := c.tables[k]; exists {
		if st.ifNotExists {
			return nil
		}
		return semanticError("Table already exists: %s", st.name)
	}
	if len(st.columns) == 0 {
		return semanticError("table %s has no columns", st.name)
	}
	seen := make(map[string]bool)
	for _, col := range append(append([]Column(nil), st.columns...), st.partitions...) {
		if seen[col.Name] {
			return semanticError("Duplicate column name %s", col.Name)
		}
		seen[col.Name] = true
	}

	_, name, _ := strings.Cut(k, ".")
	c.tables[k] = &Table{
		Name:       name,
		Columns:    st.columns,
		Partitions: st.partitions,
		Format:     st.format,
	}
	return nil
}

func (c *Client) drop(name string, ifExists bool) error {
	k := c.key(name)
	if _, ok := c.tables[k]; !ok {
		if ifExists {
			return nil
		}
		return semanticError("Table not found %s", name)
	}
	delete(c.tables, k)
	return nil
}

func (c *Client) insert(name, columnList, values string) error {
	t, ok := c.tables[c.key(name)]
	if !ok {
		return semanticError("Table not found %s", name)
	}

	all := t.AllColumns()
	index := make(map[string]int, len(all))
	for i, col := range all {
		index[col.Name] = i
	}

	var positions []int
	for _, raw := range strings.Split(columnList, ",") {
		col := strings.ToLower(strings.TrimSpace(raw))
		i, ok := index[col]
		if !ok {
			return semanticError("Invalid column reference %s", col)
		}
		positions = append(positions, i)
	}

	tuples, err := parseTuples(values)
	if err != nil {
		return parseError(err)
	}

	rows := make([][]any, 0, len(tuples))
	for _, tuple := range tuples {
		if len(tuple) != len(positions) {
			return semanticError("expected %d values per row, got %d", len(positions), len(tuple))
		}
		row := make([]any, len(all))
		for i, v := range tuple {
			row[positions[i]] = v
		}
		rows = append(rows, row)
	}
	t.Rows = append(t.Rows, rows...)
	return nil
}

func (c *Client) selectFrom(name string, count bool, limit string) (arrow.Record, error) {
	t, ok := c.tables[c.key(name)]
	if !ok {
		return nil, semanticError("Table not found %s", name)
	}

	if count {
		return frame.FromValues(
			[]frame.ColumnSpec{{Name: "_c0", Type: arrow.PrimitiveTypes.Int64}},
			[][]any{{int64(len(t.Rows))}},
		)
	}

	rows := t.Rows
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return nil, parseError(err)
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	}

	all := t.AllColumns()
	specs := make([]frame.ColumnSpec, len(all))
	for i, col := range all {
		specs[i] = frame.ColumnSpec{Name: col.Name, Type: schema.ArrowType(col.Type)}
	}
	return frame.FromValues(specs, rows)
}

func sortedKeys(m map[string]*Table) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
