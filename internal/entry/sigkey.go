package entry

// SigKeyKind distinguishes the two ways an Entry's signature identifies
// its signing key: directly by name/pubkey, or via a delegation chain
// through one or more other databases.
type SigKeyKind int

const (
	SigKeyDirect SigKeyKind = iota
	SigKeyDelegation
)

func (k SigKeyKind) String() string {
	if k == SigKeyDelegation {
		return "delegation"
	}
	return "direct"
}

// DelegationStep is one hop of a DelegationPath: the delegated database's
// root ID and the tips its `_settings.auth` must be materialized at for
// this step.
type DelegationStep struct {
	Tree ID   `json:"tree"`
	Tips []ID `json:"tips"`
}

// DelegationHint picks the AuthKey out of the final snapshot in a
// delegation chain, by pubkey if present, else by the name the AuthKey is
// stored under in that snapshot.
type DelegationHint struct {
	Name   string `json:"name,omitempty"`
	Pubkey string `json:"pubkey,omitempty"`
}

// DelegationPath is a SigKey variant that resolves through one or more
// other databases before landing on a concrete AuthKey.
type DelegationPath struct {
	Steps []DelegationStep `json:"steps"`
	Hint  DelegationHint   `json:"hint"`
}

// SigKey identifies the signing key under which an Entry claims to be
// signed. It is either Direct (a name or pubkey looked up in the local
// _settings.auth) or a DelegationPath. Go has no tagged union, so Kind
// discriminates which of Direct/Delegation is populated.
type SigKey struct {
	Kind       SigKeyKind      `json:"kind"`
	Direct     string          `json:"direct,omitempty"`
	Delegation *DelegationPath `json:"delegation,omitempty"`
}

// NewDirectSigKey builds a Direct SigKey referencing a name or pubkey.
func NewDirectSigKey(nameOrPubkey string) SigKey {
	return SigKey{Kind: SigKeyDirect, Direct: nameOrPubkey}
}

// NewDelegationSigKey builds a DelegationPath SigKey.
func NewDelegationSigKey(steps []DelegationStep, hint DelegationHint) SigKey {
	return SigKey{Kind: SigKeyDelegation, Delegation: &DelegationPath{Steps: steps, Hint: hint}}
}

// IsEmpty reports whether the SigKey carries no identifying information at
// all (zero value), which auth resolution must reject.
func (k SigKey) IsEmpty() bool {
	if k.Kind == SigKeyDirect {
		return k.Direct == ""
	}
	return k.Delegation == nil || len(k.Delegation.Steps) == 0
}
