// Package scene is a bounded navigation stack of screens.
package scene

import (
	"errors"

	"go.uber.org/zap"
)

type ID int

const (
	// Start is the sentinel at the bottom of every stack.
	Start ID = iota
	Receiver
	ReceiverInfo
	ReceiverConfig
	NeedSaving
	SaveName
	SaveSuccess
	Transmitter
	Exit
)

func (id ID) String() string {
	switch id {
	case Start:
		return "start"
	case Receiver:
		return "receiver"
	case ReceiverInfo:
		return "receiver_info"
	case ReceiverConfig:
		return "receiver_config"
	case NeedSaving:
		return "need_saving"
	case SaveName:
		return "save_name"
	case SaveSuccess:
		return "save_success"
	case Transmitter:
		return "transmitter"
	default:
		return "exit"
	}
}

const DefaultDepth = 16

var ErrEmpty = errors.New("scene stack empty")

// Stack always has Start at the bottom. Pushing past its depth drops the oldest
// entries above Start.
type Stack struct {
	depth  int
	logger *zap.Logger
	ids    []ID
}

func NewStack(depth int, logger *zap.Logger) *Stack {
	if depth < 2 {
		depth = DefaultDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stack{depth: depth, logger: logger, ids: []ID{Start}}
}

func (s *Stack) Current() ID {
	return s.ids[len(s.ids)-1]
}

func (s *Stack) Depth() int {
	return len(s.ids)
}

// Next switches to id.
func (s *Stack) Next(id ID) {
	if len(s.ids) == s.depth {
		s.logger.Debug("Scene stack full, compacting", zap.Stringer("dropped", s.ids[1]))
		copy(s.ids[1:], s.ids[2:])
		s.ids = s.ids[:len(s.ids)-1]
	}
	s.ids = append(s.ids, id)
	s.logger.Debug("Scene", zap.Stringer("next", id))
}

// Previous returns to the scene below the current one.
func (s *Stack) Previous() (ID, error) {
	if len(s.ids) == 1 {
		return Start, ErrEmpty
	}
	s.ids = s.ids[:len(s.ids)-1]
	return s.Current(), nil
}

// SearchAndSwitchToPrevious pops until the current scene is one of targets. It
// stops at Start; if no target is on the stack it returns false and the stack is
// left holding only Start.
func (s *Stack) SearchAndSwitchToPrevious(targets ...ID) bool {
	for i := len(s.ids) - 1; i >= 0; i-- {
		for _, t := range targets {
			if s.ids[i] == t {
				s.ids = s.ids[:i+1]
				return true
			}
		}
	}
	s.ids = s.ids[:1]
	return false
}

// Contains reports whether id is anywhere on the stack.
func (s *Stack) Contains(id ID) bool {
	for _, x := range s.ids {
		if x == id {
			return true
		}
	}
	return false
}
