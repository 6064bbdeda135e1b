package vm

import "fmt"

// Stack records, for each open if-block, whether one of its branches has
// already run.
type Stack struct {
	values []bool
}

func (s *Stack) Push(v bool) {
	s.values = append(s.values, v)
}

func (s *Stack) Pop() (bool, error) {
	if len(s.values) == 0 {
		return false, fmt.Errorf("control-flow stack underflow")
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, nil
}

func (s *Stack) Peek() (bool, error) {
	if len(s.values) == 0 {
		return false, fmt.Errorf("control-flow stack is empty")
	}
	return s.values[len(s.values)-1], nil
}

// Replace overwrites the top entry.
func (s *Stack) Replace(v bool) error {
	if len(s.values) == 0 {
		return fmt.Errorf("control-flow stack is empty")
	}
	s.values[len(s.values)-1] = v
	return nil
}

func (s *Stack) Len() int {
	return len(s.values)
}

// Values returns a copy, bottom first.
func (s *Stack) Values() []bool {
	return append([]bool(nil), s.values...)
}
