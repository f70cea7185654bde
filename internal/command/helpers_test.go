package command

import (
	"context"
	"errors"
)

type statement struct {
	op     string
	table  string
	values map[string]any
	scope  map[string]any
}

// fakeDriver records writes and hands out sequential keys.
type fakeDriver struct {
	statements []statement
	nextID     int
	fail       error
	level      int
}

func (d *fakeDriver) Insert(_ context.Context, table string, values map[string]any, pk string) (any, error) {
	if d.fail != nil {
		return nil, d.fail
	}
	d.statements = append(d.statements, statement{op: "insert", table: table, values: values})
	if _, ok := values[pk]; pk != "" && !ok {
		d.nextID++
		return d.nextID, nil
	}
	return nil, nil
}

func (d *fakeDriver) Update(_ context.Context, table string, values, scope map[string]any) (int64, error) {
	if d.fail != nil {
		return 0, d.fail
	}
	d.statements = append(d.statements, statement{op: "update", table: table, values: values, scope: scope})
	return 1, nil
}

func (d *fakeDriver) Delete(_ context.Context, table string, scope map[string]any) (int64, error) {
	if d.fail != nil {
		return 0, d.fail
	}
	d.statements = append(d.statements, statement{op: "delete", table: table, scope: scope})
	return 1, nil
}

func (d *fakeDriver) Begin(context.Context) error {
	d.level++
	return nil
}

func (d *fakeDriver) Commit(context.Context) error {
	d.level--
	return nil
}

func (d *fakeDriver) Rollback(context.Context) error {
	d.level--
	return nil
}

func (d *fakeDriver) TransactionLevel() int {
	return d.level
}

var errConstraint = errors.New("constraint violation")

// drain executes ready commands until nothing changes, the way the unit of
// work does: strict passes first, one relaxed step when stuck.
func drain(ctx context.Context, root Command, drv Driver) error {
	for {
		progressed := false
		it := NewIterator(root)
		for c, ok := it.Next(); ok; c, ok = it.Next() {
			if c.IsReady() && !HasOptionalContext(c) {
				if err := c.Execute(ctx, drv); err != nil {
					return err
				}
				progressed = true
			}
		}
		if progressed {
			continue
		}
		it = NewIterator(root)
		for c, ok := it.Next(); ok; c, ok = it.Next() {
			if c.IsReady() {
				if err := c.Execute(ctx, drv); err != nil {
					return err
				}
				progressed = true
				break
			}
		}
		if !progressed {
			return nil
		}
	}
}
