package auth

import "github.com/latticedb/lattice/internal/entry"

// KeyStatus is whether an AuthKey may currently be used to produce new,
// acceptable Entries.
type KeyStatus int

const (
	Active KeyStatus = iota
	Revoked
)

func (s KeyStatus) String() string {
	if s == Revoked {
		return "revoked"
	}
	return "active"
}

// AuthKey is one entry in a `_settings.auth` document: a public key and
// the permission it carries.
type AuthKey struct {
	Pubkey      string     `json:"pubkey"` // "ed25519:<base64>"
	Permissions Permission `json:"permissions"`
	Status      KeyStatus  `json:"status"`
	DisplayName string     `json:"display_name,omitempty"`
}

// TreeRef pins a delegated database to a specific tip set, the point in
// its history a delegation step materializes against.
type TreeRef struct {
	Root entry.ID   `json:"root"`
	Tips []entry.ID `json:"tips"`
}

// DelegatedTreeRef is an entry in a parent database's auth settings that
// references another database's auth as a source of delegated identities,
// clamped by PermissionBounds.
type DelegatedTreeRef struct {
	Bounds PermissionBounds `json:"permission_bounds"`
	Tree   TreeRef          `json:"tree"`
}

// Policy is the small set of enumerated auth options a database's
// _settings can carry (SPEC_FULL.md §9, "Config as enumerated options").
type Policy struct {
	BootstrapAutoApprove bool `json:"bootstrap_auto_approve"`
}

// ResolvedAuth is the result of resolving a SigKey against an AuthSnapshot:
// the permission it is entitled to after any delegation clamping, plus
// the underlying key's status and pubkey for signature verification.
type ResolvedAuth struct {
	EffectivePermission Permission
	KeyStatus           KeyStatus
	Pubkey              string
}

// AuthSnapshot is a materialized `_settings.auth` sub-document at a fixed
// point in a database's history: the set of direct keys plus any
// references to delegated databases.
type AuthSnapshot struct {
	// Keys is keyed by the name under which a key was added; direct
	// SigKeys may also resolve by pubkey, so both are indexed.
	Keys map[string]AuthKey
	// Delegations is keyed by the delegated database's root ID.
	Delegations map[entry.ID]DelegatedTreeRef
	Policy      Policy
}

// NewAuthSnapshot returns an empty snapshot.
func NewAuthSnapshot() *AuthSnapshot {
	return &AuthSnapshot{
		Keys:        make(map[string]AuthKey),
		Delegations: make(map[entry.ID]DelegatedTreeRef),
	}
}

// lookupDirect resolves a Direct SigKey's name-or-pubkey against the
// snapshot: first by name, then by scanning for a matching pubkey.
func (s *AuthSnapshot) lookupDirect(nameOrPubkey string) (AuthKey, bool) {
	if ak, ok := s.Keys[nameOrPubkey]; ok {
		return ak, true
	}
	for _, ak := range s.Keys {
		if ak.Pubkey == nameOrPubkey {
			return ak, true
		}
	}
	return AuthKey{}, false
}

// lookupHint resolves a DelegationHint against the final snapshot in a
// delegation chain: by pubkey if present, else by name.
func (s *AuthSnapshot) lookupHint(hint entry.DelegationHint) (AuthKey, bool) {
	if hint.Pubkey != "" {
		for _, ak := range s.Keys {
			if ak.Pubkey == hint.Pubkey {
				return ak, true
			}
		}
		return AuthKey{}, false
	}
	if hint.Name != "" {
		if ak, ok := s.Keys[hint.Name]; ok {
			return ak, true
		}
	}
	return AuthKey{}, false
}
