package config

import (
	"fmt"
	"slices"
	"strconv"
)

// AllowList is the immutable set of chat user ids allowed to run admin operations.
type AllowList struct {
	ids map[int64]struct{}
}

// ParseAllowList parses a comma-separated list of integer ids. Blank entries are
// skipped; anything that is not an integer is an error.
func ParseAllowList(csv string) (AllowList, error) {
	ids := make(map[int64]struct{})
	for _, p := range splitCSV(csv) {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return AllowList{}, fmt.Errorf("invalid admin id %q", p)
		}
		ids[id] = struct{}{}
	}
	return AllowList{ids: ids}, nil
}

func NewAllowList(ids ...int64) AllowList {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return AllowList{ids: m}
}

func (a AllowList) Contains(id int64) bool {
	_, ok := a.ids[id]
	return ok
}

// IDs returns the members in ascending order.
func (a AllowList) IDs() []int64 {
	out := make([]int64, 0, len(a.ids))
	for id := range a.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (a AllowList) Len() int { return len(a.ids) }
