package crdt

import "sort"

// ListItem pairs a Position key with its value, including tombstones.
type ListItem struct {
	Pos   Position
	Value Value
}

// List is an ordered sequence of values keyed by Position, supporting
// concurrent insertion at the same logical index without coordination.
type List struct {
	items []ListItem
}

// NewList returns an empty list.
func NewList() *List { return &List{} }

func (l *List) sort() {
	sort.Slice(l.items, func(i, j int) bool {
		return l.items[i].Pos.Compare(l.items[j].Pos) < 0
	})
}

func (l *List) indexOf(pos Position) int {
	for i, it := range l.items {
		if it.Pos.Compare(pos) == 0 {
			return i
		}
	}
	return -1
}

// Insert places v at pos, replacing any existing item at an identical
// Position (same rational value and UniqueID).
func (l *List) Insert(pos Position, v Value) {
	if i := l.indexOf(pos); i >= 0 {
		l.items[i].Value = v
		return
	}
	l.items = append(l.items, ListItem{Pos: pos, Value: v})
	l.sort()
}

// Append inserts v after the current last item (or at 1/2, midway between
// Beginning() and End(), if empty).
func (l *List) Append(v Value) Position {
	var pos Position
	if len(l.items) == 0 {
		pos = NewPosition(1, 2)
	} else {
		last := l.items[len(l.items)-1].Pos
		pos = Between(last, End())
	}
	l.Insert(pos, v)
	return pos
}

// Delete tombstones the item at pos, if present.
func (l *List) Delete(pos Position) {
	if i := l.indexOf(pos); i >= 0 {
		l.items[i].Value = Deleted()
	}
}

// All returns every item including tombstones, in Position order. Used by
// merge, which must see Deleted markers.
func (l *List) All() []ListItem {
	l.sort()
	out := make([]ListItem, len(l.items))
	copy(out, l.items)
	return out
}

// Live returns only non-deleted items, in Position order.
func (l *List) Live() []ListItem {
	all := l.All()
	out := make([]ListItem, 0, len(all))
	for _, it := range all {
		if !it.Value.IsDeleted() {
			out = append(out, it)
		}
	}
	return out
}

// Len reports the number of live items.
func (l *List) Len() int { return len(l.Live()) }

// Clone returns a deep copy.
func (l *List) Clone() *List {
	out := &List{items: make([]ListItem, len(l.items))}
	for i, it := range l.items {
		out.items[i] = ListItem{Pos: it.Pos, Value: cloneValue(it.Value)}
	}
	return out
}

// Equal compares two lists including tombstones and exact positions.
func (l *List) Equal(other *List) bool {
	if l == nil || other == nil {
		return l == other
	}
	a, b := l.All(), other.All()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Pos.Compare(b[i].Pos) != 0 || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}
