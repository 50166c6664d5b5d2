package txn

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sort"
	"sync"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/entry"
)

// KeyProvider resolves a signing key name to the ed25519 private key a
// Transaction should sign with. Supplied by the database layer, which owns
// key material; txn never persists private keys itself.
type KeyProvider func(name string) (ed25519.PrivateKey, error)

// StoreHandle is a sub-store opened within a Transaction: the pre-state
// materialized at Begin time, plus the writes staged against it so far.
type StoreHandle struct {
	name            string
	declaredParents []entry.ID
	preState        *crdt.Doc
	staged          *crdt.Doc
}

func (h *StoreHandle) effective() *crdt.Doc {
	return h.preState.Merge(h.staged)
}

// Get reads the sub-store's current value for key: staged writes shadow
// the pre-state materialized at Begin.
func (h *StoreHandle) Get(key string) (crdt.Value, bool) {
	return h.effective().Get(key)
}

// Set stages a write to key, visible to subsequent Gets on this handle but
// not persisted until Commit.
func (h *StoreHandle) Set(key string, v crdt.Value) {
	h.staged.Set(key, v)
}

// Delete stages a tombstone for key.
func (h *StoreHandle) Delete(key string) {
	h.staged.Delete(key)
}

// Transaction is one unit of work against a database: Begin captures tree
// tips, GetStore lazily materializes and opens sub-stores, and Commit
// serializes every touched sub-store into a single signed Entry.
//
// Grounded in _examples/untoldecay-BeadsLog/internal/storage.Storage's
// RunInTransaction shape, generalized from "one SQL transaction" to "one
// signed, content-addressed Entry spanning N sub-stores."
type Transaction struct {
	ctx          context.Context
	backend      backend.Backend
	materializer *Materializer
	validator    *auth.Validator
	keys         KeyProvider

	tree         entry.ID
	treeTips     []entry.ID
	settingsTips []entry.ID

	mu          sync.Mutex
	stores      map[string]*StoreHandle
	sigKeyName  string
	sigKey      entry.SigKey
	committed   bool
	commitHook  func(entry.ID)
}

// SetCommitHook installs fn to run after a successful Commit, given the
// new Entry's ID. Used by the database package to wire the process-wide
// auto-sync-on-commit hook (SPEC_FULL.md §9, "message-passing handle")
// without txn importing anything sync-related.
func (t *Transaction) SetCommitHook(fn func(entry.ID)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commitHook = fn
}

// Begin opens a Transaction against tree at its current tips. customTips,
// if non-nil, pins the transaction to an explicit tip set instead (§4.4,
// "Explicit tips" / branch transactions), e.g. for replaying a remote
// commit onto a specific point in local history.
func Begin(ctx context.Context, b backend.Backend, m *Materializer, v *auth.Validator, keys KeyProvider, tree entry.ID, customTips []entry.ID) (*Transaction, error) {
	tips := customTips
	if tips == nil {
		var err error
		tips, err = b.GetTips(ctx, tree)
		if err != nil {
			return nil, fmt.Errorf("txn: begin: get tips: %w", err)
		}
	}
	settingsTips, err := b.GetStoreTipsUpTo(ctx, tree, settingsStoreName, tips)
	if err != nil {
		return nil, fmt.Errorf("txn: begin: get settings tips: %w", err)
	}
	return &Transaction{
		ctx:          ctx,
		backend:      b,
		materializer: m,
		validator:    v,
		keys:         keys,
		tree:         tree,
		treeTips:     tips,
		settingsTips: settingsTips,
		stores:       make(map[string]*StoreHandle),
	}, nil
}

// SetAuthKey picks the signing key by name, overriding the database's
// default. Per §4.4, precedence is: explicit override (this call) >
// database default (which the database layer installs by calling
// SetAuthKey right after Begin, so a later call replaces it) > commit
// fails if no key was set.
func (t *Transaction) SetAuthKey(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sigKeyName = name
	t.sigKey = entry.NewDirectSigKey(name)
}

// SetDelegatedAuthKey signs with a DelegationPath SigKey instead of a
// direct local key, for entries produced on behalf of a delegated identity.
func (t *Transaction) SetDelegatedAuthKey(path entry.SigKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sigKey = path
}

// Store opens (or returns the already-open) handle for the named
// sub-store, materializing its pre-state on first touch.
func (t *Transaction) Store(name string) (*StoreHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.stores[name]; ok {
		return h, nil
	}
	parents, err := t.backend.GetStoreTipsUpTo(t.ctx, t.tree, name, t.treeTips)
	if err != nil {
		return nil, fmt.Errorf("txn: store %q: resolve parents: %w", name, err)
	}
	pre, err := t.materializer.MaterializeStore(t.ctx, t.tree, name, parents)
	if err != nil {
		return nil, fmt.Errorf("txn: store %q: materialize: %w", name, err)
	}
	h := &StoreHandle{
		name:            name,
		declaredParents: parents,
		preState:        pre,
		staged:          crdt.NewDoc(),
	}
	t.stores[name] = h
	return h, nil
}

func (t *Transaction) touchedNames() []string {
	names := make([]string, 0, len(t.stores))
	for name, h := range t.stores {
		if len(h.staged.RawKeys()) == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commit serializes every sub-store with staged writes into a single
// Entry: parents are the transaction's captured tree tips, each touched
// sub-store's SubtreeData carries its declared parents and the staged
// buffer alone (not the merged effective state — peers recompute that via
// the Materializer), metadata records the settings tips this Entry was
// authorized against, and the whole Entry is signed and validated before
// being handed to the backend.
func (t *Transaction) Commit() (entry.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed {
		return "", fmt.Errorf("txn: already committed")
	}

	names := t.touchedNames()
	metadata, err := entry.EncodeSettingsTips(t.settingsTips)
	if err != nil {
		return "", err
	}

	e := &entry.Entry{
		Tree:     t.tree,
		Parents:  append([]entry.ID(nil), t.treeTips...),
		Subtrees: make(map[string]entry.SubtreeData, len(names)),
		Metadata: metadata,
	}
	for _, name := range names {
		h := t.stores[name]
		data, err := h.staged.MarshalCRDT()
		if err != nil {
			return "", fmt.Errorf("txn: marshal sub-store %q: %w", name, err)
		}
		e.Subtrees[name] = entry.SubtreeData{
			Parents: h.declaredParents,
			Data:    string(data),
		}
	}

	sigKey := t.sigKey
	if sigKey.IsEmpty() && len(t.treeTips) > 0 {
		return "", fmt.Errorf("txn: commit: no signing key set")
	}
	e.Sig.Key = sigKey

	var priv ed25519.PrivateKey
	if t.keys != nil {
		keyName := t.sigKeyName
		priv, err = t.keys(keyName)
		if err != nil {
			return "", fmt.Errorf("txn: commit: resolve signing key %q: %w", keyName, err)
		}
	}
	if priv == nil && !e.IsRoot() {
		return "", fmt.Errorf("txn: commit: no private key available to sign a non-root entry")
	}

	var id entry.ID
	if priv != nil {
		id, err = e.Sign(priv)
		if err != nil {
			return "", fmt.Errorf("txn: commit: sign: %w", err)
		}
	} else {
		id, err = e.ID()
		if err != nil {
			return "", fmt.Errorf("txn: commit: compute id: %w", err)
		}
	}

	if t.validator != nil {
		settingsDoc, err := t.materializer.MaterializeStore(t.ctx, t.tree, settingsStoreName, t.settingsTips)
		if err != nil {
			return "", fmt.Errorf("txn: commit: materialize settings for validation: %w", err)
		}
		snapshot, err := ToAuthSnapshot(settingsDoc)
		if err != nil {
			return "", fmt.Errorf("txn: commit: parse auth snapshot: %w", err)
		}
		fingerprint := string(t.tree) + "@" + SettingsFingerprint(t.settingsTips)
		if err := t.validator.ValidateEntry(t.ctx, e, snapshot, fingerprint); err != nil {
			return "", fmt.Errorf("txn: commit: validation failed: %w", err)
		}
	}

	if err := t.backend.Put(t.ctx, backend.Verified, e); err != nil {
		return "", fmt.Errorf("txn: commit: put: %w", err)
	}

	for _, name := range names {
		h := t.stores[name]
		final := h.effective()
		if b, merr := final.MarshalCRDT(); merr == nil {
			_ = t.backend.CacheCRDTState(t.ctx, id, name, b)
		}
	}

	t.committed = true
	if t.commitHook != nil {
		t.commitHook(id)
	}
	return id, nil
}

// SettingsFingerprint derives a Validator memo-key fragment from a
// settings-tips set, shared by Commit's own validation and by callers
// (syncsvc) validating externally-received Entries against the
// historical settings snapshot their metadata declares.
func SettingsFingerprint(tips []entry.ID) string {
	sorted := append([]entry.ID(nil), tips...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	s := ""
	for _, id := range sorted {
		s += string(id) + ","
	}
	return s
}
