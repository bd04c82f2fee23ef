package inbox

import (
	"sort"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
)

// idSet is a set of message ids
type idSet map[int64]struct{}

func newIDSet() idSet {
	return make(idSet)
}

func (s idSet) add(id int64) {
	s[id] = struct{}{}
}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// dedupe keeps the first occurrence of every id, preserving order
func dedupe(msgs []core.Message) []core.Message {
	seen := newIDSet()
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if seen.has(m.ID) {
			continue
		}
		seen.add(m.ID)
		out = append(out, m)
	}
	return out
}

func indexOf(msgs []core.Message, id int64) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func remove(msgs []core.Message, id int64) []core.Message {
	i := indexOf(msgs, id)
	if i < 0 {
		return msgs
	}
	return append(msgs[:i:i], msgs[i+1:]...)
}
