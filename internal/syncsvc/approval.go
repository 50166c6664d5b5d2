package syncsvc

import (
	"context"
	"fmt"
)

// Approve grants a pending bootstrap request's requested permission,
// signing the grant with approverKeyName (an Admin key on the target
// tree). Fails with ErrInvalidRequestState if requestID is unknown or
// already decided (SPEC_FULL.md §4.6, scenario S7).
func (s *Service) Approve(ctx context.Context, requestID, approverKeyName string) error {
	p, ok, err := s.GetPending(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrInvalidRequestState.Kind, fmt.Sprintf("no such request %s", requestID), nil)
	}
	if p.Status != PendingOpen {
		return newError(ErrInvalidRequestState.Kind, fmt.Sprintf("request %s already %s", requestID, p.Status), nil)
	}

	db, err := s.resolve(ctx, p.TreeID)
	if err != nil {
		return err
	}

	keyName := p.RequesterKeyName
	if keyName == "" {
		keyName = p.RequesterPubkey
	}
	if err := grantKey(ctx, db, approverKeyName, keyName, p.RequesterPubkey, p.RequestedPermission.toPermission()); err != nil {
		return fmt.Errorf("syncsvc: approve: grant: %w", err)
	}

	if _, err := s.setPendingStatus(ctx, requestID, PendingApproved); err != nil {
		return err
	}
	return s.addSyncedTree(ctx, p.RequesterPubkey, p.TreeID)
}

// Reject marks a pending bootstrap request as rejected without granting
// any access. A rejected request is terminal: re-approving it fails with
// ErrInvalidRequestState the same as approving twice would.
func (s *Service) Reject(ctx context.Context, requestID string) error {
	p, ok, err := s.GetPending(ctx, requestID)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrInvalidRequestState.Kind, fmt.Sprintf("no such request %s", requestID), nil)
	}
	if p.Status != PendingOpen {
		return newError(ErrInvalidRequestState.Kind, fmt.Sprintf("request %s already %s", requestID, p.Status), nil)
	}
	_, err = s.setPendingStatus(ctx, requestID, PendingRejected)
	return err
}
