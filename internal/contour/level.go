package contour

import (
	"math"
	"slices"
	"sort"
)

// level holds the open items of one elevation, sorted by tailX.
type level struct {
	value float64
	items []*item
}

// find returns the index of an item whose tail lies within JoinDist of p,
// or -1. Several items may share a tail x; all of them are checked.
func (l *level) find(p Point) int {
	i := sort.Search(len(l.items), func(i int) bool {
		return l.items[i].tailX > p.X-JoinDist
	})
	for ; i < len(l.items) && l.items[i].tailX < p.X+JoinDist; i++ {
		if math.Abs(l.items[i].tail().Y-p.Y) < JoinDist {
			return i
		}
	}
	return -1
}

func (l *level) insert(it *item) {
	i := sort.Search(len(l.items), func(i int) bool {
		return l.items[i].tailX >= it.tailX
	})
	l.items = slices.Insert(l.items, i, it)
}

func (l *level) remove(i int) {
	l.items = slices.Delete(l.items, i, i+1)
}

// adjust restores the ordering after the tail of items[i] moved. Only one
// entry is out of place, so it is bubbled one step at a time.
func (l *level) adjust(i int) {
	for i > 0 && l.items[i].tailX < l.items[i-1].tailX {
		l.items[i], l.items[i-1] = l.items[i-1], l.items[i]
		i--
	}
	for i < len(l.items)-1 && l.items[i].tailX > l.items[i+1].tailX {
		l.items[i], l.items[i+1] = l.items[i+1], l.items[i]
		i++
	}
}

func (l *level) indexOf(it *item) int {
	i := sort.Search(len(l.items), func(i int) bool {
		return l.items[i].tailX >= it.tailX
	})
	for ; i < len(l.items) && l.items[i].tailX == it.tailX; i++ {
		if l.items[i] == it {
			return i
		}
	}
	return slices.Index(l.items, it)
}

// levelSet keeps levels sorted by value. Lookups are exact.
type levelSet struct {
	levels []*level
}

func (s *levelSet) search(value float64) (int, bool) {
	return slices.BinarySearchFunc(s.levels, value, func(l *level, v float64) int {
		switch {
		case l.value < v:
			return -1
		case l.value > v:
			return 1
		}
		return 0
	})
}

// get returns the level for value, creating it when absent.
func (s *levelSet) get(value float64) *level {
	i, found := s.search(value)
	if found {
		return s.levels[i]
	}
	l := &level{value: value}
	s.levels = slices.Insert(s.levels, i, l)
	return l
}

func (s *levelSet) values() []float64 {
	out := make([]float64, len(s.levels))
	for i, l := range s.levels {
		out[i] = l.value
	}
	return out
}

func (s *levelSet) openItems() int {
	n := 0
	for _, l := range s.levels {
		n += len(l.items)
	}
	return n
}

func (s *levelSet) clearTouched() {
	for _, l := range s.levels {
		for _, it := range l.items {
			it.touched = false
		}
	}
}
