package store

import (
	"context"
	"fmt"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/querysql"
	"github.com/roach88/orbit/internal/value"
)

var _ command.Driver = (*Store)(nil)

// Insert writes one row. When pk is given and values carry no key, the
// generated key is returned.
func (s *Store) Insert(ctx context.Context, table string, values map[string]any, pk string) (any, error) {
	generate := pk != "" && value.IsNull(values[pk])
	if generate {
		values = withoutKey(values, pk)
	} else {
		pk = ""
	}

	st, err := s.compiler.Insert(table, values, pk)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var generated any
	if st.Returning {
		if err := s.execer().QueryRowContext(ctx, st.SQL, st.Args...).Scan(&generated); err != nil {
			return nil, fmt.Errorf("insert into %s: %w", table, err)
		}
	} else {
		res, err := s.execer().ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", table, err)
		}
		if generate {
			id, err := res.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("insert into %s: read generated key: %w", table, err)
			}
			generated = id
		}
	}
	s.observe("insert", table, st)
	return generated, nil
}

func (s *Store) Update(ctx context.Context, table string, values, scope map[string]any) (int64, error) {
	st, err := s.compiler.Update(table, values, scope)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, "update", table, st)
}

func (s *Store) Delete(ctx context.Context, table string, scope map[string]any) (int64, error) {
	st, err := s.compiler.Delete(table, scope)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, "delete", table, st)
}

func (s *Store) exec(ctx context.Context, op, table string, st querysql.Statement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.execer().ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", op, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s %s: rows affected: %w", op, table, err)
	}
	s.observe(op, table, st)
	return n, nil
}

// Begin opens a transaction, or a savepoint inside the open one.
func (s *Store) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
		s.level = 1
		return nil
	}
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+savepoint(s.level)); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	s.level++
	return nil
}

// Commit commits the innermost transaction level.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.tx == nil:
		return ErrNoTransaction
	case s.level == 1:
		err := s.tx.Commit()
		s.tx, s.level = nil, 0
		if err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	}
	s.level--
	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint(s.level)); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Rollback undoes the innermost transaction level.
func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.tx == nil:
		return ErrNoTransaction
	case s.level == 1:
		err := s.tx.Rollback()
		s.tx, s.level = nil, 0
		if err != nil {
			return fmt.Errorf("rollback transaction: %w", err)
		}
		return nil
	}
	s.level--
	name := savepoint(s.level)
	if _, err := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return fmt.Errorf("rollback savepoint: %w", err)
	}
	if _, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// TransactionLevel returns the nesting depth of the open transaction.
func (s *Store) TransactionLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// SelectByKey returns the rows of table matching scope, ordered by orderBy.
// Text stored as bytes is returned as string.
func (s *Store) SelectByKey(ctx context.Context, table string, scope map[string]any, orderBy string) ([]map[string]any, error) {
	st, err := s.compiler.Select(table, nil, scope, orderBy)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.execer().QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	s.observe("select", table, st)
	return out, nil
}

func savepoint(level int) string {
	return fmt.Sprintf("sp_%d", level)
}

func withoutKey(values map[string]any, pk string) map[string]any {
	if _, ok := values[pk]; !ok {
		return values
	}
	out := make(map[string]any, len(values)-1)
	for k, v := range values {
		if k != pk {
			out[k] = v
		}
	}
	return out
}
