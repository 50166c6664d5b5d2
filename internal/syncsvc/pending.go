package syncsvc

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/entry"
)

const pendingStoreName = "pending"

const (
	fieldReqTreeID          = "tree_id"
	fieldReqRequesterPubkey = "requester_pubkey"
	fieldReqRequesterKey    = "requester_key_name"
	fieldReqPermKind        = "requested_permission_kind"
	fieldReqPermPriority    = "requested_permission_priority"
	fieldReqStatus          = "status"
)

func pendingStatusName(s PendingStatus) string {
	return s.String()
}

func parsePendingStatus(s string) PendingStatus {
	switch s {
	case "approved":
		return PendingApproved
	case "rejected":
		return PendingRejected
	default:
		return PendingOpen
	}
}

func pendingToValue(p PendingRequest) crdt.Value {
	d := crdt.NewDoc()
	d.Set(fieldReqTreeID, crdt.NewText(string(p.TreeID)))
	d.Set(fieldReqRequesterPubkey, crdt.NewText(p.RequesterPubkey))
	d.Set(fieldReqRequesterKey, crdt.NewText(p.RequesterKeyName))
	d.Set(fieldReqPermKind, crdt.NewText(p.RequestedPermission.Kind))
	d.Set(fieldReqPermPriority, crdt.NewInt(int64(p.RequestedPermission.Priority)))
	d.Set(fieldReqStatus, crdt.NewText(pendingStatusName(p.Status)))
	return crdt.NewNode(d)
}

func pendingFromValue(requestID string, v crdt.Value) (PendingRequest, error) {
	d, ok := v.Node()
	if !ok {
		return PendingRequest{}, fmt.Errorf("syncsvc: pending request %s is not a node", requestID)
	}
	p := PendingRequest{RequestID: requestID}
	if tv, ok := d.Get(fieldReqTreeID); ok {
		p.TreeID = entry.ID(tv.TextOr(""))
	}
	if rv, ok := d.Get(fieldReqRequesterPubkey); ok {
		p.RequesterPubkey = rv.TextOr("")
	}
	if kv, ok := d.Get(fieldReqRequesterKey); ok {
		p.RequesterKeyName = kv.TextOr("")
	}
	perm := RequestedPermission{}
	if kv, ok := d.Get(fieldReqPermKind); ok {
		perm.Kind = kv.TextOr("read")
	}
	if pv, ok := d.Get(fieldReqPermPriority); ok {
		perm.Priority = uint32(pv.IntOr(0))
	}
	p.RequestedPermission = perm
	if sv, ok := d.Get(fieldReqStatus); ok {
		p.Status = parsePendingStatus(sv.TextOr("pending"))
	}
	return p, nil
}

// createPending records a new bootstrap request awaiting Admin approval,
// returning the request ID the requester should poll/be notified with.
func (s *Service) createPending(ctx context.Context, req PendingRequest) (string, error) {
	req.RequestID = uuid.NewString()
	req.Status = PendingOpen

	tx, err := s.syncDB.NewTransaction(ctx)
	if err != nil {
		return "", fmt.Errorf("syncsvc: create pending: begin: %w", err)
	}
	store, err := tx.Store(pendingStoreName)
	if err != nil {
		return "", fmt.Errorf("syncsvc: create pending: open store: %w", err)
	}
	store.Set(req.RequestID, pendingToValue(req))
	if _, err := tx.Commit(); err != nil {
		return "", fmt.Errorf("syncsvc: create pending: commit: %w", err)
	}
	return req.RequestID, nil
}

// GetPending looks up one pending bootstrap request by ID.
func (s *Service) GetPending(ctx context.Context, requestID string) (PendingRequest, bool, error) {
	doc, err := s.syncDB.MaterializeStore(ctx, pendingStoreName)
	if err != nil {
		return PendingRequest{}, false, fmt.Errorf("syncsvc: get pending: materialize: %w", err)
	}
	v, ok := doc.Get(requestID)
	if !ok {
		return PendingRequest{}, false, nil
	}
	p, err := pendingFromValue(requestID, v)
	if err != nil {
		return PendingRequest{}, false, err
	}
	return p, true, nil
}

// ListPending returns every bootstrap request still awaiting a decision.
func (s *Service) ListPending(ctx context.Context) ([]PendingRequest, error) {
	doc, err := s.syncDB.MaterializeStore(ctx, pendingStoreName)
	if err != nil {
		return nil, fmt.Errorf("syncsvc: list pending: materialize: %w", err)
	}
	var out []PendingRequest
	for _, k := range doc.Keys() {
		v, _ := doc.Get(k)
		p, err := pendingFromValue(k, v)
		if err != nil {
			return nil, err
		}
		if p.Status == PendingOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) setPendingStatus(ctx context.Context, requestID string, status PendingStatus) (PendingRequest, error) {
	p, ok, err := s.GetPending(ctx, requestID)
	if err != nil {
		return PendingRequest{}, err
	}
	if !ok {
		return PendingRequest{}, newError(ErrInvalidRequestState.Kind, fmt.Sprintf("no such request %s", requestID), nil)
	}
	p.Status = status

	tx, err := s.syncDB.NewTransaction(ctx)
	if err != nil {
		return PendingRequest{}, fmt.Errorf("syncsvc: set pending status: begin: %w", err)
	}
	store, err := tx.Store(pendingStoreName)
	if err != nil {
		return PendingRequest{}, fmt.Errorf("syncsvc: set pending status: open store: %w", err)
	}
	store.Set(requestID, pendingToValue(p))
	if _, err := tx.Commit(); err != nil {
		return PendingRequest{}, fmt.Errorf("syncsvc: set pending status: commit: %w", err)
	}
	return p, nil
}
