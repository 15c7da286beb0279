// Package history keeps the keys received during one receiver session.
package history

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/hatstand/subghz/protocol"
	"github.com/hatstand/subghz/telemetry"
)

// DefaultBudget is the number of rendered characters a session may hold.
const DefaultBudget = 4096

var ErrIndex = errors.New("history index out of range")

// Store is an ordered, append-only list of items bounded by the size of their rendered text.
// Indices shift down after a delete; don't hold on to them.
type Store struct {
	budget int
	used   int
	full   bool
	items  []*protocol.Item
}

func New(budget int) *Store {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Store{budget: budget}
}

func cost(item *protocol.Item) int {
	return utf8.RuneCountInString(item.Text)
}

// Add appends item unless its text would exceed the budget. A refusal marks the store full.
func (s *Store) Add(item *protocol.Item) bool {
	c := cost(item)
	if s.used+c > s.budget {
		s.full = true
		telemetry.HistoryRejected.Inc()
		return false
	}
	s.items = append(s.items, item)
	s.used += c
	telemetry.HistoryItems.Set(float64(len(s.items)))
	return true
}

func (s *Store) Delete(i int) error {
	if i < 0 || i >= len(s.items) {
		return ErrIndex
	}
	s.used -= cost(s.items[i])
	copy(s.items[i:], s.items[i+1:])
	s.items[len(s.items)-1] = nil
	s.items = s.items[:len(s.items)-1]
	s.full = false
	telemetry.HistoryItems.Set(float64(len(s.items)))
	return nil
}

func (s *Store) Get(i int) (*protocol.Item, error) {
	if i < 0 || i >= len(s.items) {
		return nil, ErrIndex
	}
	return s.items[i], nil
}

func (s *Store) Len() int {
	return len(s.items)
}

// Items returns a copy of the current list.
func (s *Store) Items() []*protocol.Item {
	out := make([]*protocol.Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Reset() {
	s.items = nil
	s.used = 0
	s.full = false
	telemetry.HistoryItems.Set(0)
}

// Full reports whether the last Add was refused and nothing has been deleted since.
func (s *Store) Full() bool {
	return s.full
}

func (s *Store) Remaining() int {
	return s.budget - s.used
}

// RemainingText is the status bar summary of how much space is left.
func (s *Store) RemainingText() string {
	if s.full {
		return "Memory is FULL"
	}
	return fmt.Sprintf("%02d keys, %d%% free", len(s.items), 100*s.Remaining()/s.budget)
}

// MenuText is the one line label of item i.
func (s *Store) MenuText(i int) string {
	item, err := s.Get(i)
	if err != nil {
		return ""
	}
	return item.Summary()
}

func (s *Store) TimeText(i int) string {
	item, err := s.Get(i)
	if err != nil {
		return ""
	}
	return item.Time.Format("15:04:05")
}
