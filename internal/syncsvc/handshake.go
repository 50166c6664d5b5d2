package syncsvc

import (
	"context"
	"fmt"
)

// Handshake registers the remote peer described by req (idempotent: a
// repeat handshake just updates the stored address list) and answers
// with this Instance's own identity, per SPEC_FULL.md §4.6. remoteAddr,
// if non-empty, is the observed transport-level source address, appended
// to the peer's advertised addresses the way a responder would record
// "the address this actually connected from" alongside what the peer
// claims to listen on.
func (s *Service) Handshake(ctx context.Context, req HandshakeRequest, remoteAddr *Address) (*HandshakeResponse, error) {
	if req.PublicKey == "" {
		return nil, fmt.Errorf("syncsvc: handshake: empty public key")
	}

	existing, ok, err := s.GetPeer(ctx, req.PublicKey)
	if err != nil {
		return nil, err
	}
	p := existing
	if !ok {
		p = Peer{Pubkey: req.PublicKey, Status: PeerActive}
	}
	if req.DisplayName != "" {
		p.DisplayName = req.DisplayName
	}
	p.Addresses = mergeAddresses(p.Addresses, req.ListenAddresses)
	if remoteAddr != nil {
		p.Addresses = mergeAddresses(p.Addresses, []Address{*remoteAddr})
	}

	if err := s.RegisterPeer(ctx, p); err != nil {
		return nil, err
	}

	return &HandshakeResponse{
		DeviceID:        s.deviceID,
		PublicKey:       s.devicePubkey,
		DisplayName:     s.displayName,
		ProtocolVersion: ProtocolVersion,
		ListenAddresses: s.listenAddresses,
	}, nil
}

func mergeAddresses(existing, incoming []Address) []Address {
	seen := make(map[Address]bool, len(existing))
	out := append([]Address(nil), existing...)
	for _, a := range existing {
		seen[a] = true
	}
	for _, a := range incoming {
		if a.Value == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
