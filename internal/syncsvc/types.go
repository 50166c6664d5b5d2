// Package syncsvc implements the peer-to-peer sync subsystem of
// SPEC_FULL.md §4.6: a peer registry backed by a dedicated `_sync`
// database, handshake, bootstrap/incremental tree sync, manual approval
// of pending bootstrap requests, and an auto-sync-on-commit hook with
// exponential-backoff peer delivery scheduling.
//
// Grounded in _examples/original_source/crates/lib/src/sync/state.rs for
// the peer/request data model and liveness bookkeeping, and in
// _examples/untoldecay-BeadsLog/internal/daemon (registry.go,
// discovery.go) for the shape of a background-loop peer registry: a
// struct holding a mutex-guarded map plus small persisted records.
package syncsvc

import (
	"fmt"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/entry"
)

// ProtocolVersion is bumped whenever the byte layout of Entry or of a
// wire message changes (SPEC_FULL.md §6.2).
const ProtocolVersion = 1

// PeerStatus is the registry's view of a peer's standing.
type PeerStatus int

const (
	PeerActive PeerStatus = iota
	PeerBlocked
)

func (s PeerStatus) String() string {
	if s == PeerBlocked {
		return "blocked"
	}
	return "active"
}

// Address is one way to reach a peer, e.g. {Scheme: "tcp", Value: "host:port"}.
type Address struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// Peer is a registered remote Instance: its identity, how to reach it,
// and which trees it shares with us.
type Peer struct {
	Pubkey      string     `json:"pubkey"`
	DisplayName string     `json:"display_name,omitempty"`
	Status      PeerStatus `json:"status"`
	Addresses   []Address  `json:"addresses"`
	SyncedTrees []entry.ID `json:"synced_trees"`
}

// HandshakeRequest is the first message a peer sends to introduce itself.
type HandshakeRequest struct {
	DeviceID        string    `json:"device_id"`
	PublicKey       string    `json:"public_key"`
	DisplayName     string    `json:"display_name,omitempty"`
	ProtocolVersion int       `json:"protocol_version"`
	Challenge       string    `json:"challenge"`
	ListenAddresses []Address `json:"listen_addresses"`
}

// HandshakeResponse answers a HandshakeRequest, echoing back the
// responder's own identity so the requester can register it too.
type HandshakeResponse struct {
	DeviceID        string    `json:"device_id"`
	PublicKey       string    `json:"public_key"`
	DisplayName     string    `json:"display_name,omitempty"`
	ProtocolVersion int       `json:"protocol_version"`
	ListenAddresses []Address `json:"listen_addresses"`
}

// RequestedPermission is the caller-facing (kind, priority) pair a
// SyncTreeRequest asks for; decoded into an auth.Permission internally.
type RequestedPermission struct {
	Kind     string `json:"kind"` // "read" | "write" | "admin"
	Priority uint32 `json:"priority,omitempty"`
}

func (r RequestedPermission) toPermission() auth.Permission {
	switch r.Kind {
	case "write":
		return auth.WritePermission(r.Priority)
	case "admin":
		return auth.AdminPermission(r.Priority)
	default:
		return auth.ReadPermission()
	}
}

// SyncTreeRequest asks a peer to sync one tree, either bootstrapping (if
// OurTips is empty) or incrementally (otherwise).
type SyncTreeRequest struct {
	TreeID              entry.ID              `json:"tree_id"`
	OurTips             []entry.ID            `json:"our_tips"`
	RequestingKey       string                `json:"requesting_key,omitempty"`
	RequestingKeyName   string                `json:"requesting_key_name,omitempty"`
	RequestedPermission *RequestedPermission  `json:"requested_permission,omitempty"`
}

// SyncTreeResponse is the tagged-union response to a SyncTreeRequest: at
// most one of the embedded pointers is non-nil, the wire-protocol
// variants named in SPEC_FULL.md §6.2.
type SyncTreeResponse struct {
	Bootstrap        *BootstrapResult  `json:"bootstrap,omitempty"`
	BootstrapPending *BootstrapPending `json:"bootstrap_pending,omitempty"`
	Incremental      *IncrementalResult `json:"incremental,omitempty"`
}

// BootstrapResult carries the full Entry set for a tree a peer had no
// prior tips for, plus whether/what permission was granted to the
// requesting key.
type BootstrapResult struct {
	Entries            []entry.Entry `json:"entries"`
	KeyApproved        bool          `json:"key_approved"`
	GrantedPermission  *RequestedPermission `json:"granted_permission,omitempty"`
}

// BootstrapPending is returned when a tree's auth policy does not
// auto-approve bootstrap requests: the request is recorded for
// out-of-band approval.
type BootstrapPending struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

// IncrementalResult carries entries reachable from the responder's tips
// but not from the requester's, topologically ordered by height.
type IncrementalResult struct {
	Entries []entry.Entry `json:"entries"`
}

// SendEntriesRequest is the push-shaped wire variant (SPEC_FULL.md §6.2,
// "SendEntries"): the sender has already decided what the recipient
// needs and delivers it directly, unlike SyncTreeRequest's pull-shaped
// request/response exchange. Used by auto-sync-on-commit to push the
// single just-committed Entry to every peer sharing the tree.
type SendEntriesRequest struct {
	TreeID  entry.ID      `json:"tree_id"`
	Entries []entry.Entry `json:"entries"`
}

// Ack acknowledges a SendEntriesRequest.
type Ack struct{}

// PendingStatus is a bootstrap request's lifecycle state in the `_sync`
// database's "pending" sub-store.
type PendingStatus int

const (
	PendingOpen PendingStatus = iota
	PendingApproved
	PendingRejected
)

func (s PendingStatus) String() string {
	switch s {
	case PendingApproved:
		return "approved"
	case PendingRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// PendingRequest is one bootstrap approval awaiting an Admin decision.
type PendingRequest struct {
	RequestID           string     `json:"request_id"`
	TreeID               entry.ID   `json:"tree_id"`
	RequesterPubkey      string     `json:"requester_pubkey"`
	RequesterKeyName     string     `json:"requester_key_name,omitempty"`
	RequestedPermission  RequestedPermission `json:"requested_permission"`
	Status               PendingStatus       `json:"status"`
}

// Error is the syncsvc error type: InvalidRequestState for bad approval
// transitions, TransportError for delivery failures, wrapping an
// optional cause for errors.Is/As composition.
type Error struct {
	Kind string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("syncsvc: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("syncsvc: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

var (
	ErrInvalidRequestState = &Error{Kind: "invalid_request_state"}
	ErrTransport           = &Error{Kind: "transport_error"}
	ErrUnknownTree         = &Error{Kind: "unknown_tree"}
)

func newError(kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}
