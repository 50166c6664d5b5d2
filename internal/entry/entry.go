// Package entry implements the content-addressed, immutable Entry record
// that every lattice database is built from, along with the signing-key
// identifiers (SigKey) carried in its signature slot.
package entry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// ID is an opaque content hash, always of the form "sha256:<hex>". It is
// treated as an ordered byte string for tie-breaking (height, ID) sorts.
type ID string

// Empty reports whether id is the zero value, used as the "no tree"
// sentinel for root entries and the tree-level-height sentinel store name.
func (id ID) Empty() bool { return id == "" }

func (id ID) String() string { return string(id) }

// Less orders IDs byte-wise, matching the spec's "lexicographic compare of
// IDs (byte-wise)" tie-break rule.
func (id ID) Less(other ID) bool { return id < other }

func idFromHash(sum [32]byte) ID {
	return ID("sha256:" + hex.EncodeToString(sum[:]))
}

// SubtreeData is the per-sub-store slot carried by an Entry: the sub-store
// parents declared at construction time, plus the opaque serialized CRDT
// payload for that sub-store.
type SubtreeData struct {
	Parents []ID   `json:"parents"`
	Data    string `json:"data"`
}

// SigInfo is an Entry's signature slot: the key identifier under which it
// claims to be signed, and the (optional, until commit) signature bytes.
type SigInfo struct {
	Key SigKey `json:"key"`
	Sig string `json:"sig,omitempty"` // base64 ed25519 signature
}

// Entry is an immutable, content-addressed record. See package doc and
// SPEC_FULL.md §1 for the full data model.
type Entry struct {
	Tree     ID                     `json:"tree"`
	Parents  []ID                   `json:"parents"`
	Subtrees map[string]SubtreeData `json:"subtrees"`
	Sig      SigInfo                `json:"sig"`
	Metadata string                 `json:"metadata,omitempty"`
}

// canonical is the subset of Entry fields that feed id(): everything
// except sig.sig. Slices are sorted so content equality implies byte
// equality of the encoded form, independent of construction order.
type canonical struct {
	Tree     ID                     `json:"tree"`
	Parents  []ID                   `json:"parents"`
	Subtrees map[string]SubtreeData `json:"subtrees"`
	SigKey   SigKey                 `json:"sig_key"`
	Metadata string                 `json:"metadata,omitempty"`
}

func sortedIDs(ids []ID) []ID {
	out := append([]ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// canonicalize produces a deterministic copy of e's id-relevant content:
// top-level and sub-store parent lists sorted, map iteration order left to
// encoding/json (which already sorts string map keys).
func (e *Entry) canonicalize() canonical {
	subtrees := make(map[string]SubtreeData, len(e.Subtrees))
	for name, st := range e.Subtrees {
		subtrees[name] = SubtreeData{
			Parents: sortedIDs(st.Parents),
			Data:    st.Data,
		}
	}
	return canonical{
		Tree:     e.Tree,
		Parents:  sortedIDs(e.Parents),
		Subtrees: subtrees,
		SigKey:   e.Sig.Key,
		Metadata: e.Metadata,
	}
}

// CanonicalBytes returns the deterministic encoding that id() hashes and
// that Sign/Verify operate over.
func (e *Entry) CanonicalBytes() ([]byte, error) {
	b, err := json.Marshal(e.canonicalize())
	if err != nil {
		return nil, fmt.Errorf("entry: canonicalize: %w", err)
	}
	return b, nil
}

// ID computes the deterministic content hash covering every field except
// sig.sig. Equal content always yields an equal ID (invariant 1, §8).
func (e *Entry) ID() (ID, error) {
	b, err := e.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return idFromHash(sha256.Sum256(b)), nil
}

// IsRoot reports whether e has no tree parents, i.e. is a root-of-database
// Entry whose own ID becomes the database's ID.
func (e *Entry) IsRoot() bool { return len(e.Parents) == 0 }

// InTree reports whether e belongs to the database identified by root. A
// root Entry belongs to the tree identified by its own ID.
func (e *Entry) InTree(root ID) (bool, error) {
	if e.Tree == root {
		return true, nil
	}
	if e.IsRoot() {
		id, err := e.ID()
		if err != nil {
			return false, err
		}
		return id == root, nil
	}
	return false, nil
}

// SortedParents returns the tree-level parents in canonical (sorted) order.
func (e *Entry) SortedParents() []ID { return sortedIDs(e.Parents) }

// SubtreeParents returns the declared parents of the named sub-store, in
// canonical order. Returns nil if the Entry does not touch that sub-store.
func (e *Entry) SubtreeParents(name string) []ID {
	st, ok := e.Subtrees[name]
	if !ok {
		return nil
	}
	return sortedIDs(st.Parents)
}

// SubtreeNames returns the sorted list of sub-store names this Entry writes.
func (e *Entry) SubtreeNames() []string {
	names := make([]string, 0, len(e.Subtrees))
	for name := range e.Subtrees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
