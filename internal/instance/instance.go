// Package instance implements the process-wide container described in
// SPEC_FULL.md §3.5: a device key, a shared Backend handle, a users
// database, and an optional sync service hook, with one-shot
// initialization semantics (Create fails on an already-initialized
// backend; Open loads-or-initializes).
//
// Grounded in _examples/untoldecay-BeadsLog/internal/beads's top-level
// Storage constructor pattern (one process-wide handle wrapping the
// backend, exposed through a thin root package) generalized from "one
// SQLite file" to "one Backend shared by every Database".
package instance

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/backend"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/database"
	"github.com/latticedb/lattice/internal/entry"
	"github.com/latticedb/lattice/internal/txn"
)

const (
	metaDeviceKey    = "instance.device_private_key"
	metaDevicePubkey = "instance.device_pubkey"
	metaUsersRoot    = "instance.users_root"

	deviceKeyName = "device"
)

// ErrAlreadyInitialized is returned by Create when the backend already
// carries Instance metadata (Open should be used instead).
var ErrAlreadyInitialized = fmt.Errorf("instance: backend is already initialized")

// ErrNotInitialized describes a backend that carries no Instance
// metadata. Open initializes such a backend instead of failing, and no
// function in this package returns this error.
var ErrNotInitialized = fmt.Errorf("instance: backend is not initialized")

// Instance is the process container: it owns a Backend, a device
// ed25519 keypair, a users Database, and (once registered) a commit hook
// used for auto-sync. Databases opened through an Instance share its
// backend and device key provider.
type Instance struct {
	b          backend.Backend
	devicePriv ed25519.PrivateKey
	devicePub  ed25519.PublicKey

	mu         sync.RWMutex
	users      *database.Database
	commitHook database.CommitHook
}

type devicePrivRecord struct {
	Seed string `json:"seed"` // base64 ed25519 seed (32 bytes)
}

func (inst *Instance) keyProvider(name string) (ed25519.PrivateKey, error) {
	if name == "" || name == deviceKeyName {
		return inst.devicePriv, nil
	}
	return nil, fmt.Errorf("instance: unknown signing key %q", name)
}

// DevicePubkey returns the Instance's device public key, encoded as
// "ed25519:<base64>" (the form AuthKey.Pubkey and Direct SigKeys use).
func (inst *Instance) DevicePubkey() string {
	return entry.EncodePubkey(inst.devicePub)
}

// Create initializes a brand-new Instance over b: generates a device
// keypair, builds the users database's root Entry (granting the device
// key Admin(0) over it), and records Instance metadata. Fails with
// ErrAlreadyInitialized if b already carries Instance metadata.
func Create(ctx context.Context, b backend.Backend) (*Instance, error) {
	if _, ok, err := b.GetInstanceMetadata(ctx, metaDevicePubkey); err != nil {
		return nil, fmt.Errorf("instance: checking existing metadata: %w", err)
	} else if ok {
		return nil, ErrAlreadyInitialized
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("instance: generate device key: %w", err)
	}

	inst := &Instance{b: b, devicePriv: priv, devicePub: pub}

	usersRoot, err := inst.createUsersRoot(ctx)
	if err != nil {
		return nil, err
	}

	if err := inst.persistMetadata(ctx, usersRoot); err != nil {
		return nil, err
	}

	inst.users = database.Open(usersRoot, b, inst.keyProvider, deviceKeyName)
	return inst, nil
}

func (inst *Instance) createUsersRoot(ctx context.Context) (entry.ID, error) {
	settings := crdt.NewDoc()
	snap := auth.NewAuthSnapshot()
	snap.Keys[deviceKeyName] = auth.AuthKey{
		Pubkey:      inst.DevicePubkey(),
		Permissions: auth.AdminPermission(0),
		Status:      auth.Active,
	}
	txn.ApplyAuthSnapshot(settings, snap)
	data, err := settings.MarshalCRDT()
	if err != nil {
		return "", fmt.Errorf("instance: marshal users root settings: %w", err)
	}
	root := &entry.Entry{
		Subtrees: map[string]entry.SubtreeData{
			database.SettingsStoreName: {Data: string(data)},
		},
	}
	id, err := root.ID()
	if err != nil {
		return "", fmt.Errorf("instance: users root id: %w", err)
	}
	if err := inst.b.Put(ctx, backend.Verified, root); err != nil {
		return "", fmt.Errorf("instance: put users root: %w", err)
	}
	return id, nil
}

func (inst *Instance) persistMetadata(ctx context.Context, usersRoot entry.ID) error {
	seed := inst.devicePriv.Seed()
	rec := devicePrivRecord{Seed: base64.StdEncoding.EncodeToString(seed)}
	recBytes, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("instance: marshal device key: %w", err)
	}
	if err := inst.b.SetInstanceMetadata(ctx, metaDeviceKey, recBytes); err != nil {
		return fmt.Errorf("instance: persist device key: %w", err)
	}
	if err := inst.b.SetInstanceMetadata(ctx, metaDevicePubkey, []byte(inst.DevicePubkey())); err != nil {
		return fmt.Errorf("instance: persist device pubkey: %w", err)
	}
	if err := inst.b.SetInstanceMetadata(ctx, metaUsersRoot, []byte(usersRoot)); err != nil {
		return fmt.Errorf("instance: persist users root: %w", err)
	}
	return nil
}

// Open loads an existing Instance from b's metadata, or initializes a new
// one if none is present (load-or-initialize, per SPEC_FULL.md §3.5).
func Open(ctx context.Context, b backend.Backend) (*Instance, error) {
	devKeyBytes, ok, err := b.GetInstanceMetadata(ctx, metaDeviceKey)
	if err != nil {
		return nil, fmt.Errorf("instance: load device key: %w", err)
	}
	if !ok {
		return Create(ctx, b)
	}

	var rec devicePrivRecord
	if err := json.Unmarshal(devKeyBytes, &rec); err != nil {
		return nil, fmt.Errorf("instance: decode device key: %w", err)
	}
	seed, err := base64.StdEncoding.DecodeString(rec.Seed)
	if err != nil {
		return nil, fmt.Errorf("instance: decode device key seed: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)

	usersRootBytes, ok, err := b.GetInstanceMetadata(ctx, metaUsersRoot)
	if err != nil {
		return nil, fmt.Errorf("instance: load users root: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("instance: metadata present but users root missing (corrupt instance)")
	}

	inst := &Instance{
		b:          b,
		devicePriv: priv,
		devicePub:  priv.Public().(ed25519.PublicKey),
	}
	inst.users = database.Open(entry.ID(usersRootBytes), b, inst.keyProvider, deviceKeyName)
	return inst, nil
}

// Backend returns the Instance's shared Backend handle.
func (inst *Instance) Backend() backend.Backend { return inst.b }

// Users returns the Instance's users Database.
func (inst *Instance) Users() *database.Database {
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	return inst.users
}

// SetCommitHook installs the process-wide auto-sync hook that every
// Database subsequently opened through this Instance (via OpenDatabase /
// CreateDatabase) will carry. Installed by the sync service when enabled
// (SPEC_FULL.md §9, "installed during sync enablement").
func (inst *Instance) SetCommitHook(hook database.CommitHook) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.commitHook = hook
	inst.users = inst.users.WithCommitHook(hook)
}

// OpenDatabase returns a Database handle for an existing tree root,
// wired to this Instance's backend, device key provider, and (if
// installed) commit hook.
func (inst *Instance) OpenDatabase(root entry.ID) *database.Database {
	inst.mu.RLock()
	hook := inst.commitHook
	inst.mu.RUnlock()
	db := database.Open(root, inst.b, inst.keyProvider, deviceKeyName)
	if hook != nil {
		db = db.WithCommitHook(hook)
	}
	return db
}

// CreateDatabase builds a brand-new database: a root Entry whose
// `_settings.auth` grants this Instance's device key Admin(0), put to the
// backend, returned as an open Database handle.
func (inst *Instance) CreateDatabase(ctx context.Context) (*database.Database, error) {
	settings := crdt.NewDoc()
	snap := auth.NewAuthSnapshot()
	snap.Keys[deviceKeyName] = auth.AuthKey{
		Pubkey:      inst.DevicePubkey(),
		Permissions: auth.AdminPermission(0),
		Status:      auth.Active,
	}
	txn.ApplyAuthSnapshot(settings, snap)
	data, err := settings.MarshalCRDT()
	if err != nil {
		return nil, fmt.Errorf("instance: marshal new database settings: %w", err)
	}
	root := &entry.Entry{
		Subtrees: map[string]entry.SubtreeData{
			database.SettingsStoreName: {Data: string(data)},
		},
	}
	id, err := root.ID()
	if err != nil {
		return nil, fmt.Errorf("instance: new database root id: %w", err)
	}
	if err := inst.b.Put(ctx, backend.Verified, root); err != nil {
		return nil, fmt.Errorf("instance: put new database root: %w", err)
	}
	return inst.OpenDatabase(id), nil
}
