package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/latticedb/lattice/internal/entry"
)

func noopMaterializer(*AuthSnapshot) Materializer {
	return func(ctx context.Context, tree entry.ID, tips []entry.ID) (*AuthSnapshot, error) {
		return nil, nil
	}
}

func TestPermissionOrdering(t *testing.T) {
	if !ReadPermission().Less(WritePermission(5)) {
		t.Fatalf("Read should be less than Write")
	}
	if !WritePermission(5).Less(AdminPermission(5)) {
		t.Fatalf("Write should be less than Admin")
	}
	// Lower priority number outranks higher within the same variant.
	if !AdminPermission(5).Less(AdminPermission(0)) {
		t.Fatalf("Admin(5) should be less than Admin(0)")
	}
}

func TestClampCapsAtMax(t *testing.T) {
	bounds := PermissionBounds{Max: WritePermission(10)}
	got := Clamp(AdminPermission(0), bounds)
	if !got.Equal(WritePermission(10)) {
		t.Fatalf("expected clamp to cap at Write(10), got %v", got)
	}
}

func TestClampFloorsAtMin(t *testing.T) {
	min := ReadPermission()
	bounds := PermissionBounds{Max: AdminPermission(0), Min: &min}
	// Read itself should not be raised since it equals Min already.
	got := Clamp(ReadPermission(), bounds)
	if !got.Equal(ReadPermission()) {
		t.Fatalf("expected Read unchanged, got %v", got)
	}
}

func TestResolveDirectByName(t *testing.T) {
	snap := NewAuthSnapshot()
	snap.Keys["device1"] = AuthKey{Pubkey: "ed25519:abc", Permissions: WritePermission(5), Status: Active}

	v := NewValidator(nil)
	resolved, err := v.Resolve(context.Background(), entry.NewDirectSigKey("device1"), snap, "fp1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.EffectivePermission.Equal(WritePermission(5)) {
		t.Fatalf("expected Write(5), got %v", resolved.EffectivePermission)
	}
}

func TestResolveDirectNotFound(t *testing.T) {
	snap := NewAuthSnapshot()
	v := NewValidator(nil)
	_, err := v.Resolve(context.Background(), entry.NewDirectSigKey("ghost"), snap, "fp")
	if err == nil {
		t.Fatalf("expected error for missing key")
	}
}

// TestDelegationClamping mirrors scenario S4: a delegation step whose
// bounds cap Admin(0) down to Write(10).
func TestDelegationClamping(t *testing.T) {
	parentSnap := NewAuthSnapshot()
	childRoot := entry.ID("sha256:child")
	parentSnap.Delegations[childRoot] = DelegatedTreeRef{
		Bounds: PermissionBounds{Max: WritePermission(10)},
		Tree:   TreeRef{Root: childRoot, Tips: []entry.ID{"sha256:childtip"}},
	}

	childSnap := NewAuthSnapshot()
	childSnap.Keys["K"] = AuthKey{Pubkey: "ed25519:kkk", Permissions: AdminPermission(0), Status: Active}

	materializer := func(ctx context.Context, tree entry.ID, tips []entry.ID) (*AuthSnapshot, error) {
		if tree == childRoot {
			return childSnap, nil
		}
		return nil, nil
	}
	v := NewValidator(materializer)

	sigKey := entry.NewDelegationSigKey(
		[]entry.DelegationStep{{Tree: childRoot, Tips: []entry.ID{"sha256:childtip"}}},
		entry.DelegationHint{Pubkey: "ed25519:kkk"},
	)
	resolved, err := v.Resolve(context.Background(), sigKey, parentSnap, "fp")
	if err != nil {
		t.Fatalf("resolve delegation: %v", err)
	}
	if !resolved.EffectivePermission.Equal(WritePermission(10)) {
		t.Fatalf("expected delegation clamped to Write(10), got %v", resolved.EffectivePermission)
	}
}

func TestValidateEntryRootUnsignedAccepted(t *testing.T) {
	v := NewValidator(nil)
	root := &entry.Entry{}
	if err := v.ValidateEntry(context.Background(), root, NewAuthSnapshot(), "fp"); err != nil {
		t.Fatalf("expected unsigned root entry to be accepted, got %v", err)
	}
}

func TestValidateEntrySignedSettingsRequiresAdmin(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	snap := NewAuthSnapshot()
	snap.Keys["device1"] = AuthKey{Pubkey: entry.EncodePubkey(pub), Permissions: WritePermission(5), Status: Active}

	e := &entry.Entry{
		Tree:    "sha256:root",
		Parents: []entry.ID{"sha256:root"},
		Subtrees: map[string]entry.SubtreeData{
			"_settings": {Data: `{}`},
		},
		Sig: entry.SigInfo{Key: entry.NewDirectSigKey("device1")},
	}
	if _, err := e.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewValidator(nil)
	err = v.ValidateEntry(context.Background(), e, snap, "fp")
	if err == nil {
		t.Fatalf("expected write-only key to fail admin-required settings write")
	}
}

func TestValidateEntryRevokedKeyFailsForNewEntries(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	snap := NewAuthSnapshot()
	snap.Keys["device1"] = AuthKey{Pubkey: entry.EncodePubkey(pub), Permissions: AdminPermission(0), Status: Revoked}

	e := &entry.Entry{
		Tree:    "sha256:root",
		Parents: []entry.ID{"sha256:root"},
		Subtrees: map[string]entry.SubtreeData{
			"data": {Data: `{}`},
		},
		Sig: entry.SigInfo{Key: entry.NewDirectSigKey("device1")},
	}
	if _, err := e.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewValidator(nil)
	if err := v.ValidateEntry(context.Background(), e, snap, "fp"); err == nil {
		t.Fatalf("expected revoked key to fail validation")
	}
}

// TestHistoricalValidationSurvivesRevocation mirrors scenario S5: an Entry
// validated against the settings snapshot *at its own settings_tips*
// remains valid even though a later snapshot revokes the key.
func TestHistoricalValidationSurvivesRevocation(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	historicalSnap := NewAuthSnapshot()
	historicalSnap.Keys["device1"] = AuthKey{Pubkey: entry.EncodePubkey(pub), Permissions: WritePermission(5), Status: Active}

	e := &entry.Entry{
		Tree:    "sha256:root",
		Parents: []entry.ID{"sha256:root"},
		Subtrees: map[string]entry.SubtreeData{
			"data": {Data: `{}`},
		},
		Sig: entry.SigInfo{Key: entry.NewDirectSigKey("device1")},
	}
	if _, err := e.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewValidator(nil)
	if err := v.ValidateEntry(context.Background(), e, historicalSnap, "settings-tips-at-t1"); err != nil {
		t.Fatalf("expected validation against historical (pre-revocation) snapshot to succeed: %v", err)
	}

	laterSnap := NewAuthSnapshot()
	laterSnap.Keys["device1"] = AuthKey{Pubkey: entry.EncodePubkey(pub), Permissions: WritePermission(5), Status: Revoked}
	if err := v.ValidateEntry(context.Background(), e, laterSnap, "settings-tips-at-t2"); err == nil {
		t.Fatalf("expected a new entry validated against the revoked-key snapshot to fail")
	}
}
