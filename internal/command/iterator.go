package command

// Iterator walks a command tree and yields the executable commands that
// still have work to do, in order. Sequences are flattened and conditions
// are evaluated when the iterator reaches them.
type Iterator struct {
	stack []Command
}

// NewIterator returns an iterator over root.
func NewIterator(root Command) *Iterator {
	it := &Iterator{}
	if root != nil {
		it.stack = append(it.stack, root)
	}
	return it
}

// Next returns the next executable command that has not executed yet.
func (it *Iterator) Next() (Executable, bool) {
	for len(it.stack) > 0 {
		c := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		switch c := c.(type) {
		case *Sequence:
			for i := len(c.commands) - 1; i >= 0; i-- {
				it.stack = append(it.stack, c.commands[i])
			}
		case *Condition:
			if c.Holds() {
				it.stack = append(it.stack, c.command)
			}
		case Executable:
			if !c.IsExecuted() {
				return c, true
			}
		}
	}
	return nil, false
}

// Remaining collects every executable command below root that has not
// executed yet.
func Remaining(root Command) []Executable {
	var out []Executable
	it := NewIterator(root)
	for {
		c, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

// Executables returns every executable command of the tree, executed or
// not, including those behind conditions that do not hold. Executables are
// not descended into: a Split, Merge or Wrapped is returned as one command.
func Executables(root Command) []Executable {
	var out []Executable
	var visit func(Command)
	visit = func(c Command) {
		switch c := c.(type) {
		case *Sequence:
			for _, child := range c.commands {
				visit(child)
			}
		case *Condition:
			visit(c.command)
		case Executable:
			out = append(out, c)
		}
	}
	if root != nil {
		visit(root)
	}
	return out
}
