// Package querysql compiles row writes and key lookups to parameterized SQL.
//
// Values are always bound as parameters, never interpolated. Identifiers are
// checked and quoted. Column lists are sorted so the same write always
// compiles to the same statement.
package querysql

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/orbit/internal/value"
)

var (
	// ErrInvalidIdentifier is returned for table or column names that are
	// not plain SQL identifiers.
	ErrInvalidIdentifier = errors.New("invalid SQL identifier")

	// ErrNoValues is returned for an update without columns.
	ErrNoValues = errors.New("no values to write")

	// ErrNoScope is returned for an update or delete without a WHERE clause.
	ErrNoScope = errors.New("write without scope")
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect selects placeholder style and optional syntax.
type Dialect int

const (
	// SQLite uses ? placeholders and reads generated keys from the result.
	SQLite Dialect = iota
	// Postgres uses $n placeholders and INSERT ... RETURNING.
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// ParseDialect parses a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return 0, fmt.Errorf("unknown SQL dialect %q", s)
}

// Statement is compiled SQL with its parameters.
type Statement struct {
	SQL  string
	Args []any
	// Returning is set when the statement yields the generated key as a row.
	Returning bool
}

// Compiler builds statements for one dialect.
type Compiler struct {
	dialect Dialect
}

// NewCompiler returns a compiler for d.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Dialect returns the dialect of the compiler.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// builder accumulates parameters and numbers placeholders.
type builder struct {
	dialect Dialect
	args    []any
}

func (b *builder) bind(v any) (string, error) {
	p, err := toParam(v)
	if err != nil {
		return "", err
	}
	b.args = append(b.args, p)
	if b.dialect == Postgres {
		return "$" + strconv.Itoa(len(b.args)), nil
	}
	return "?", nil
}

// Insert compiles an INSERT of values into table. With a primary key on
// Postgres the statement returns the key.
func (c *Compiler) Insert(table string, values map[string]any, pk string) (Statement, error) {
	t, err := quote(table)
	if err != nil {
		return Statement{}, err
	}
	b := &builder{dialect: c.dialect}

	var sql string
	if len(values) == 0 {
		sql = "INSERT INTO " + t + " DEFAULT VALUES"
	} else {
		keys := sortedKeys(values)
		cols := make([]string, len(keys))
		marks := make([]string, len(keys))
		for i, k := range keys {
			if cols[i], err = quote(k); err != nil {
				return Statement{}, err
			}
			if marks[i], err = b.bind(values[k]); err != nil {
				return Statement{}, fmt.Errorf("column %s: %w", k, err)
			}
		}
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t, strings.Join(cols, ", "), strings.Join(marks, ", "))
	}

	st := Statement{SQL: sql, Args: b.args}
	if pk != "" && c.dialect == Postgres {
		q, err := quote(pk)
		if err != nil {
			return Statement{}, err
		}
		st.SQL += " RETURNING " + q
		st.Returning = true
	}
	return st, nil
}

// Update compiles an UPDATE of values on the rows matching scope.
func (c *Compiler) Update(table string, values, scope map[string]any) (Statement, error) {
	if len(values) == 0 {
		return Statement{}, fmt.Errorf("update %s: %w", table, ErrNoValues)
	}
	if len(scope) == 0 {
		return Statement{}, fmt.Errorf("update %s: %w", table, ErrNoScope)
	}
	t, err := quote(table)
	if err != nil {
		return Statement{}, err
	}
	b := &builder{dialect: c.dialect}

	keys := sortedKeys(values)
	sets := make([]string, len(keys))
	for i, k := range keys {
		col, err := quote(k)
		if err != nil {
			return Statement{}, err
		}
		mark, err := b.bind(values[k])
		if err != nil {
			return Statement{}, fmt.Errorf("column %s: %w", k, err)
		}
		sets[i] = col + " = " + mark
	}
	where, err := b.where(scope)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		SQL:  fmt.Sprintf("UPDATE %s SET %s WHERE %s", t, strings.Join(sets, ", "), where),
		Args: b.args,
	}, nil
}

// Delete compiles a DELETE of the rows matching scope.
func (c *Compiler) Delete(table string, scope map[string]any) (Statement, error) {
	if len(scope) == 0 {
		return Statement{}, fmt.Errorf("delete %s: %w", table, ErrNoScope)
	}
	t, err := quote(table)
	if err != nil {
		return Statement{}, err
	}
	b := &builder{dialect: c.dialect}
	where, err := b.where(scope)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: fmt.Sprintf("DELETE FROM %s WHERE %s", t, where), Args: b.args}, nil
}

// Select compiles a lookup of columns (all when empty) on the rows matching
// scope. Results are ordered by orderBy, which every lookup must name so the
// row order is stable.
func (c *Compiler) Select(table string, columns []string, scope map[string]any, orderBy string) (Statement, error) {
	t, err := quote(table)
	if err != nil {
		return Statement{}, err
	}
	list := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, col := range columns {
			if quoted[i], err = quote(col); err != nil {
				return Statement{}, err
			}
		}
		list = strings.Join(quoted, ", ")
	}
	order, err := quote(orderBy)
	if err != nil {
		return Statement{}, fmt.Errorf("order by: %w", err)
	}

	b := &builder{dialect: c.dialect}
	sql := fmt.Sprintf("SELECT %s FROM %s", list, t)
	if len(scope) > 0 {
		where, err := b.where(scope)
		if err != nil {
			return Statement{}, err
		}
		sql += " WHERE " + where
	}
	sql += " ORDER BY " + order + " ASC"
	if c.dialect == SQLite {
		// Deterministic text ordering across SQLite versions
		sql += " COLLATE BINARY"
	}
	return Statement{SQL: sql, Args: b.args}, nil
}

// where compiles a conjunction of equality tests. Null values compile to
// IS NULL without a parameter.
func (b *builder) where(scope map[string]any) (string, error) {
	keys := sortedKeys(scope)
	parts := make([]string, len(keys))
	for i, k := range keys {
		col, err := quote(k)
		if err != nil {
			return "", err
		}
		if value.IsNull(scope[k]) {
			parts[i] = col + " IS NULL"
			continue
		}
		mark, err := b.bind(scope[k])
		if err != nil {
			return "", fmt.Errorf("scope %s: %w", k, err)
		}
		parts[i] = col + " = " + mark
	}
	return strings.Join(parts, " AND "), nil
}

func quote(name string) (string, error) {
	if !identifier.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return `"` + name + `"`, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toParam converts a column value to a driver parameter. Scalars pass
// through; maps and slices are stored as canonical JSON text.
func toParam(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, []byte, bool, time.Time,
		int, int8, int16, int32, int64,
		uint8, uint16, uint32, uint64, uint,
		float32, float64:
		return val, nil
	case map[string]any, []any:
		b, err := value.MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	return nil, fmt.Errorf("unsupported parameter type %T", v)
}

// ErrUnsupportedDialect is returned for statements a dialect cannot build.
var ErrUnsupportedDialect = errors.New("unsupported for dialect")

// CreateTable compiles an idempotent CREATE TABLE for SQLite. Columns are
// left untyped; pk becomes the integer row key.
func (c *Compiler) CreateTable(table, pk string, columns []string) (string, error) {
	if c.dialect != SQLite {
		return "", fmt.Errorf("create table: %w %s", ErrUnsupportedDialect, c.dialect)
	}
	t, err := quote(table)
	if err != nil {
		return "", err
	}
	key, err := quote(pk)
	if err != nil {
		return "", err
	}
	defs := []string{key + " INTEGER PRIMARY KEY"}
	for _, col := range columns {
		if col == pk {
			continue
		}
		q, err := quote(col)
		if err != nil {
			return "", err
		}
		defs = append(defs, q)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t, strings.Join(defs, ", ")), nil
}
