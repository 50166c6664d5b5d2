// Package crdt implements the recursive last-writer-wins CRDT document:
// leaves (Null, Bool, Int, Text, Deleted tombstones) and branches (Node
// maps, List ordered-by-Position values), with a deterministic merge.
//
// Grounded in _examples/original_source/crates/lib/src/crdt/doc/{value,list}.rs.
package crdt

// Kind discriminates which variant a Value holds. Go has no enum with
// payload, so Value carries Kind plus one populated field per variant.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindText
	KindDeleted
	KindNode
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindText:
		return "text"
	case KindDeleted:
		return "deleted"
	case KindNode:
		return "node"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is one node of a CRDT document: a leaf (Null/Bool/Int/Text/Deleted)
// or a branch (Node/List).
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string
	node *Doc
	list *List
}

// Null returns the Null leaf value.
func Null() Value { return Value{kind: KindNull} }

// Deleted returns a tombstone value, used to mark a key or list slot
// removed while preserving it across merges.
func Deleted() Value { return Value{kind: KindDeleted} }

// NewBool wraps a bool leaf.
func NewBool(v bool) Value { return Value{kind: KindBool, b: v} }

// NewInt wraps a 64-bit signed integer leaf.
func NewInt(v int64) Value { return Value{kind: KindInt, i: v} }

// NewText wraps a UTF-8 string leaf.
func NewText(v string) Value { return Value{kind: KindText, s: v} }

// NewNode wraps a nested Doc as a branch value.
func NewNode(d *Doc) Value { return Value{kind: KindNode, node: d} }

// NewListValue wraps a List as a branch value.
func NewListValue(l *List) Value { return Value{kind: KindList, list: l} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsDeleted() bool { return v.kind == KindDeleted }

// Bool returns the wrapped bool and whether v is a Bool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int returns the wrapped int and whether v is an Int.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Text returns the wrapped string and whether v is Text.
func (v Value) Text() (string, bool) { return v.s, v.kind == KindText }

// Node returns the wrapped Doc and whether v is a Node.
func (v Value) Node() (*Doc, bool) { return v.node, v.kind == KindNode }

// List returns the wrapped List and whether v is a List.
func (v Value) List() (*List, bool) { return v.list, v.kind == KindList }

// BoolOr returns the wrapped bool, or fallback if v is not a Bool.
func (v Value) BoolOr(fallback bool) bool {
	if b, ok := v.Bool(); ok {
		return b
	}
	return fallback
}

// IntOr returns the wrapped int, or fallback if v is not an Int.
func (v Value) IntOr(fallback int64) int64 {
	if i, ok := v.Int(); ok {
		return i
	}
	return fallback
}

// TextOr returns the wrapped string, or fallback if v is not Text.
func (v Value) TextOr(fallback string) string {
	if s, ok := v.Text(); ok {
		return s
	}
	return fallback
}

// Equal is a recursive structural comparison (Node and List values compare
// their contents), used by tests; it does not
// attempt to distinguish concurrently-built-but-isomorphic nodes/lists
// beyond value equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindText:
		return v.s == other.s
	case KindNode:
		return v.node.Equal(other.node)
	case KindList:
		return v.list.Equal(other.list)
	default:
		return true
	}
}
