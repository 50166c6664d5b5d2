package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/latticedb/lattice/internal/entry"
)

// Materializer produces the AuthSnapshot for a database's `_settings.auth`
// sub-document at a fixed tip set, crossing into a different database for
// delegation steps. Supplied by the txn package, which alone knows how to
// run the CRDT merge-base computation over a Backend; auth does not
// import txn to avoid a cycle (entry -> auth -> txn -> backend -> entry).
type Materializer func(ctx context.Context, tree entry.ID, tips []entry.ID) (*AuthSnapshot, error)

// Validator resolves SigKeys against AuthSnapshots and validates Entries.
// Each goroutine/transaction should use its own Validator: the memo table
// is unsynchronized across instances by design (SPEC_FULL §5, "auth
// validator's internal memo table is per-validator-instance").
type Validator struct {
	materialize Materializer

	mu   sync.Mutex
	memo map[string]ResolvedAuth
}

// NewValidator builds a Validator that calls materialize to cross into
// delegated databases during DelegationPath resolution.
func NewValidator(materialize Materializer) *Validator {
	return &Validator{materialize: materialize, memo: make(map[string]ResolvedAuth)}
}

// Resolve resolves key against snapshot (the SigKey's "home" AuthSnapshot,
// i.e. the _settings.auth materialized for the database the Entry itself
// belongs to). fingerprint identifies snapshot's identity for memoization
// (SPEC_FULL.md's Open Question: derived from the settings tips set).
func (v *Validator) Resolve(ctx context.Context, key entry.SigKey, snapshot *AuthSnapshot, fingerprint string) (ResolvedAuth, error) {
	if key.IsEmpty() {
		return ResolvedAuth{}, ErrEmptySigKey
	}

	memoKey := fingerprint + "\x00" + sigKeyMemoKey(key)
	v.mu.Lock()
	if cached, ok := v.memo[memoKey]; ok {
		v.mu.Unlock()
		return cached, nil
	}
	v.mu.Unlock()

	resolved, err := v.resolveUncached(ctx, key, snapshot)
	if err != nil {
		return ResolvedAuth{}, err
	}

	v.mu.Lock()
	v.memo[memoKey] = resolved
	v.mu.Unlock()
	return resolved, nil
}

func sigKeyMemoKey(key entry.SigKey) string {
	if key.Kind == entry.SigKeyDirect {
		return "direct:" + key.Direct
	}
	s := "delegation:"
	for _, step := range key.Delegation.Steps {
		s += string(step.Tree) + ":"
		for _, t := range step.Tips {
			s += string(t) + ","
		}
		s += ";"
	}
	s += key.Delegation.Hint.Name + "|" + key.Delegation.Hint.Pubkey
	return s
}

func (v *Validator) resolveUncached(ctx context.Context, key entry.SigKey, snapshot *AuthSnapshot) (ResolvedAuth, error) {
	if key.Kind == entry.SigKeyDirect {
		ak, ok := snapshot.lookupDirect(key.Direct)
		if !ok {
			return ResolvedAuth{}, wrapError("key_not_found", fmt.Errorf("no auth key for %q", key.Direct))
		}
		return ResolvedAuth{EffectivePermission: ak.Permissions, KeyStatus: ak.Status, Pubkey: ak.Pubkey}, nil
	}

	path := key.Delegation
	if path == nil || len(path.Steps) == 0 {
		return ResolvedAuth{}, ErrEmptySigKey
	}

	current := snapshot
	var bounds []PermissionBounds
	for _, step := range path.Steps {
		ref, ok := current.Delegations[step.Tree]
		if !ok {
			return ResolvedAuth{}, wrapError("missing_delegated_tree_ref",
				fmt.Errorf("no DelegatedTreeRef for tree %s", step.Tree))
		}
		bounds = append(bounds, ref.Bounds)
		child, err := v.materialize(ctx, step.Tree, step.Tips)
		if err != nil {
			return ResolvedAuth{}, fmt.Errorf("auth: materializing delegated tree %s: %w", step.Tree, err)
		}
		current = child
	}

	ak, ok := current.lookupHint(path.Hint)
	if !ok {
		return ResolvedAuth{}, wrapError("key_not_found", fmt.Errorf("delegation hint matched no key"))
	}

	effective := ak.Permissions
	for _, b := range bounds {
		effective = Clamp(effective, b)
	}
	return ResolvedAuth{EffectivePermission: effective, KeyStatus: ak.Status, Pubkey: ak.Pubkey}, nil
}

// OperationKind classifies what an Entry is attempting to write, for the
// permission check in ValidateEntry.
type OperationKind int

const (
	// OperationEmpty is a commit that touches no sub-store (always
	// allowed once signature validity is established).
	OperationEmpty OperationKind = iota
	// OperationSettingsWrite touches `_settings` and requires Admin.
	OperationSettingsWrite
	// OperationWrite touches any other sub-store and requires Write or
	// Admin.
	OperationWrite
)

// ClassifyOperation inspects an Entry's touched sub-stores per the rule
// in SPEC_FULL.md §4.5: writes to `_settings` require Admin, writes to
// anything else require Write|Admin, and an empty commit requires neither.
func ClassifyOperation(names []string) OperationKind {
	if len(names) == 0 {
		return OperationEmpty
	}
	for _, n := range names {
		if n == "_settings" {
			return OperationSettingsWrite
		}
	}
	return OperationWrite
}

// ValidateEntry implements §4.5's Entry validation: signature presence,
// key resolution against historical settings, signature verification,
// Active-status check, and operation-type permission check.
func (v *Validator) ValidateEntry(ctx context.Context, e *entry.Entry, historicalSnapshot *AuthSnapshot, fingerprint string) error {
	if e.Sig.Sig == "" {
		if e.IsRoot() {
			return nil // unsigned root entries are accepted for backward compatibility.
		}
		return ErrSignatureMissing
	}

	resolved, err := v.Resolve(ctx, e.Sig.Key, historicalSnapshot, fingerprint)
	if err != nil {
		return err
	}

	pub, err := entry.DecodePubkey(resolved.Pubkey)
	if err != nil {
		return wrapError("invalid_pubkey", err)
	}
	ok, err := e.VerifySignature(pub)
	if err != nil {
		return wrapError("signature_invalid", err)
	}
	if !ok {
		return ErrSignatureInvalid
	}

	if resolved.KeyStatus != Active {
		return ErrKeyRevoked
	}

	switch ClassifyOperation(e.SubtreeNames()) {
	case OperationSettingsWrite:
		if !resolved.EffectivePermission.CanAdmin() {
			return ErrInsufficientPerm
		}
	case OperationWrite:
		if !resolved.EffectivePermission.CanWrite() {
			return ErrInsufficientPerm
		}
	}
	return nil
}
