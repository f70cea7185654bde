package command

import "github.com/roach88/orbit/internal/heap"

// Sequence is an ordered group of commands. Dependencies declared on the
// sequence go to its primary command.
type Sequence struct {
	primary  Command
	commands []Command
	err      error
}

// NewSequence returns a sequence of commands; nil commands are skipped.
func NewSequence(commands ...Command) *Sequence {
	s := &Sequence{}
	for _, c := range commands {
		s.AddCommand(c)
	}
	return s
}

// AddCommand appends c.
func (s *Sequence) AddCommand(c Command) {
	if c == nil {
		return
	}
	s.commands = append(s.commands, c)
}

// AddPrimary appends c and makes it the dependency target of the sequence.
func (s *Sequence) AddPrimary(c Command) {
	s.primary = c
	s.AddCommand(c)
}

// Primary returns the primary command.
func (s *Sequence) Primary() (Command, error) {
	if s.primary == nil {
		return nil, &BuildError{Op: "sequence", Err: ErrNoPrimary}
	}
	return s.primary, nil
}

// Commands returns the direct children.
func (s *Sequence) Commands() []Command {
	return s.commands
}

func (s *Sequence) Len() int {
	return len(s.commands)
}

func (s *Sequence) IsReady() bool {
	if s.primary != nil {
		return s.primary.IsReady()
	}
	for _, c := range s.commands {
		if !c.IsReady() {
			return false
		}
	}
	return true
}

func (s *Sequence) IsExecuted() bool {
	for _, c := range s.commands {
		if !c.IsExecuted() {
			return false
		}
	}
	return true
}

func (s *Sequence) WaitContext(key string, required bool, stream heap.Stream) {
	p, err := s.Primary()
	if err != nil {
		s.fail(err)
		return
	}
	p.WaitContext(key, required, stream)
}

func (s *Sequence) Register(key string, v any, fresh bool, stream heap.Stream) {
	p, err := s.Primary()
	if err != nil {
		s.fail(err)
		return
	}
	p.Register(key, v, fresh, stream)
}

// Validate reports a dependency routed to the sequence before it had a
// primary command.
func (s *Sequence) Validate() error {
	return s.err
}

func (s *Sequence) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}
