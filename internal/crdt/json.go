package crdt

import (
	"encoding/json"
	"fmt"
)

// wireValue is the tagged-union encoding of a Value, used by MarshalCRDT/
// UnmarshalCRDT. Unlike ToDisplayJSON, this preserves tombstones so that
// deserializing and re-merging a Doc is correct (invariant 2, §8).
type wireValue struct {
	T string          `json:"t"`
	B *bool           `json:"b,omitempty"`
	I *int64          `json:"i,omitempty"`
	S *string         `json:"s,omitempty"`
	N map[string]json.RawMessage `json:"n,omitempty"`
	L []wireListItem  `json:"l,omitempty"`
}

type wireListItem struct {
	Num      int64     `json:"num"`
	Den      int64     `json:"den"`
	UniqueID string    `json:"uid"`
	Value    wireValue `json:"value"`
}

func (v Value) toWire() wireValue {
	switch v.kind {
	case KindBool:
		b := v.b
		return wireValue{T: "bool", B: &b}
	case KindInt:
		i := v.i
		return wireValue{T: "int", I: &i}
	case KindText:
		s := v.s
		return wireValue{T: "text", S: &s}
	case KindDeleted:
		return wireValue{T: "deleted"}
	case KindNode:
		raw := make(map[string]json.RawMessage, len(v.node.fields))
		for k, fv := range v.node.fields {
			b, err := json.Marshal(fv.toWire())
			if err != nil {
				continue
			}
			raw[k] = b
		}
		return wireValue{T: "node", N: raw}
	case KindList:
		items := make([]wireListItem, 0, len(v.list.items))
		for _, it := range v.list.All() {
			items = append(items, wireListItem{
				Num: it.Pos.Num, Den: it.Pos.Den, UniqueID: it.Pos.UniqueID,
				Value: it.Value.toWire(),
			})
		}
		return wireValue{T: "list", L: items}
	default:
		return wireValue{T: "null"}
	}
}

func fromWire(w wireValue) (Value, error) {
	switch w.T {
	case "bool":
		if w.B == nil {
			return Value{}, fmt.Errorf("crdt: bool wire value missing b")
		}
		return NewBool(*w.B), nil
	case "int":
		if w.I == nil {
			return Value{}, fmt.Errorf("crdt: int wire value missing i")
		}
		return NewInt(*w.I), nil
	case "text":
		if w.S == nil {
			return Value{}, fmt.Errorf("crdt: text wire value missing s")
		}
		return NewText(*w.S), nil
	case "deleted":
		return Deleted(), nil
	case "node":
		d := NewDoc()
		for k, raw := range w.N {
			var fw wireValue
			if err := json.Unmarshal(raw, &fw); err != nil {
				return Value{}, fmt.Errorf("crdt: decode field %q: %w", k, err)
			}
			fv, err := fromWire(fw)
			if err != nil {
				return Value{}, err
			}
			d.Set(k, fv)
		}
		return NewNode(d), nil
	case "list":
		l := NewList()
		for _, item := range w.L {
			v, err := fromWire(item.Value)
			if err != nil {
				return Value{}, err
			}
			l.Insert(Position{Num: item.Num, Den: item.Den, UniqueID: item.UniqueID}, v)
		}
		return NewListValue(l), nil
	case "", "null":
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("crdt: unknown wire tag %q", w.T)
	}
}

// MarshalCRDT encodes d in the tombstone-preserving tagged form used for
// sub-store storage and merge-base caching.
func (d *Doc) MarshalCRDT() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(d.fields))
	for k, v := range d.fields {
		b, err := json.Marshal(v.toWire())
		if err != nil {
			return nil, fmt.Errorf("crdt: marshal field %q: %w", k, err)
		}
		raw[k] = b
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("crdt: marshal doc: %w", err)
	}
	return b, nil
}

// UnmarshalCRDT decodes b (as produced by MarshalCRDT) into d, replacing
// its contents.
func (d *Doc) UnmarshalCRDT(b []byte) error {
	var raw map[string]json.RawMessage
	if len(b) == 0 {
		d.fields = make(map[string]Value)
		return nil
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("crdt: unmarshal doc: %w", err)
	}
	fields := make(map[string]Value, len(raw))
	for k, fieldRaw := range raw {
		var w wireValue
		if err := json.Unmarshal(fieldRaw, &w); err != nil {
			return fmt.Errorf("crdt: unmarshal field %q: %w", k, err)
		}
		v, err := fromWire(w)
		if err != nil {
			return err
		}
		fields[k] = v
	}
	d.fields = fields
	return nil
}

// UnmarshalDoc is a convenience constructor wrapping UnmarshalCRDT.
func UnmarshalDoc(b []byte) (*Doc, error) {
	d := NewDoc()
	if err := d.UnmarshalCRDT(b); err != nil {
		return nil, err
	}
	return d, nil
}

// displayValue collapses a Value into the JSON shape a human reading the
// document would expect: tombstones disappear entirely (as if the key or
// list slot had never existed), distinct from MarshalCRDT's lossless form.
func displayValue(v Value) (interface{}, bool) {
	switch v.kind {
	case KindNull:
		return nil, true
	case KindBool:
		return v.b, true
	case KindInt:
		return v.i, true
	case KindText:
		return v.s, true
	case KindDeleted:
		return nil, false
	case KindNode:
		return v.node.displayMap(), true
	case KindList:
		out := []interface{}{}
		for _, it := range v.list.Live() {
			if dv, ok := displayValue(it.Value); ok {
				out = append(out, dv)
			}
		}
		return out, true
	default:
		return nil, true
	}
}

func (d *Doc) displayMap() map[string]interface{} {
	out := map[string]interface{}{}
	for _, k := range d.Keys() {
		v, _ := d.GetRaw(k)
		if dv, ok := displayValue(v); ok {
			out[k] = dv
		}
	}
	return out
}

// ToDisplayJSON renders d as plain JSON with tombstones collapsed away,
// for human-facing output. Use MarshalCRDT for anything that must survive
// a later merge.
func (d *Doc) ToDisplayJSON() (string, error) {
	b, err := json.Marshal(d.displayMap())
	if err != nil {
		return "", fmt.Errorf("crdt: display json: %w", err)
	}
	return string(b), nil
}
