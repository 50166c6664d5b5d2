package entry

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

const pubkeyPrefix = "ed25519:"

// EncodePubkey renders a raw ed25519 public key in the "ed25519:<base64>"
// form stored in AuthKey.Pubkey and looked up by Direct SigKeys.
func EncodePubkey(pub ed25519.PublicKey) string {
	return pubkeyPrefix + base64.StdEncoding.EncodeToString(pub)
}

// DecodePubkey parses the "ed25519:<base64>" encoding back to raw bytes.
func DecodePubkey(encoded string) (ed25519.PublicKey, error) {
	if len(encoded) <= len(pubkeyPrefix) || encoded[:len(pubkeyPrefix)] != pubkeyPrefix {
		return nil, fmt.Errorf("entry: pubkey missing %q prefix", pubkeyPrefix)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded[len(pubkeyPrefix):])
	if err != nil {
		return nil, fmt.Errorf("entry: decode pubkey: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("entry: pubkey wrong size %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Sign computes e.ID() and sets e.Sig.Sig to its ed25519 signature under
// priv, leaving e.Sig.Key untouched (the caller sets Key before signing).
func (e *Entry) Sign(priv ed25519.PrivateKey) (ID, error) {
	id, err := e.ID()
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, []byte(id))
	e.Sig.Sig = base64.StdEncoding.EncodeToString(sig)
	return id, nil
}

// VerifySignature checks e.Sig.Sig against e.ID() using pub. Returns false,
// nil if there is simply no signature present (callers decide whether that
// is acceptable, per §4.5 rule 1).
func (e *Entry) VerifySignature(pub ed25519.PublicKey) (bool, error) {
	if e.Sig.Sig == "" {
		return false, nil
	}
	id, err := e.ID()
	if err != nil {
		return false, err
	}
	raw, err := base64.StdEncoding.DecodeString(e.Sig.Sig)
	if err != nil {
		return false, fmt.Errorf("entry: decode signature: %w", err)
	}
	return ed25519.Verify(pub, []byte(id), raw), nil
}
