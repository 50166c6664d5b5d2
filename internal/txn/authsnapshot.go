// Parsing/rendering between the `_settings.auth` CRDT document and the
// typed auth.AuthSnapshot the Validator operates on. This glue lives here,
// not in package auth, to keep auth from depending on crdt's document
// shape and to keep crdt from depending on auth's types.
package txn

import (
	"fmt"

	"github.com/latticedb/lattice/internal/auth"
	"github.com/latticedb/lattice/internal/crdt"
	"github.com/latticedb/lattice/internal/entry"
)

const (
	settingsStoreName = "_settings"

	keyKeys        = "keys"
	keyDelegations = "delegations"
	keyPolicy      = "policy"

	fieldPubkey      = "pubkey"
	fieldKind        = "kind"
	fieldPriority    = "priority"
	fieldStatus      = "status"
	fieldDisplayName = "display_name"

	fieldMaxKind     = "max_kind"
	fieldMaxPriority = "max_priority"
	fieldMinKind     = "min_kind"
	fieldMinPriority = "min_priority"
	fieldTreeRoot    = "tree_root"
	fieldTreeTips    = "tree_tips"

	fieldBootstrapAutoApprove = "bootstrap_auto_approve"
)

func permissionKindName(k auth.PermissionKind) string {
	switch k {
	case auth.KindWrite:
		return "write"
	case auth.KindAdmin:
		return "admin"
	default:
		return "read"
	}
}

func parsePermissionKind(s string) auth.PermissionKind {
	switch s {
	case "write":
		return auth.KindWrite
	case "admin":
		return auth.KindAdmin
	default:
		return auth.KindRead
	}
}

func permissionFromNode(d *crdt.Doc) auth.Permission {
	kind := auth.KindRead
	if v, ok := d.Get(fieldKind); ok {
		kind = parsePermissionKind(v.TextOr(""))
	}
	priority := uint32(0)
	if v, ok := d.Get(fieldPriority); ok {
		priority = uint32(v.IntOr(0))
	}
	return auth.Permission{Kind: kind, Priority: priority}
}

func authKeyToValue(ak auth.AuthKey) crdt.Value {
	d := crdt.NewDoc()
	d.Set(fieldPubkey, crdt.NewText(ak.Pubkey))
	d.Set(fieldKind, crdt.NewText(permissionKindName(ak.Permissions.Kind)))
	d.Set(fieldPriority, crdt.NewInt(int64(ak.Permissions.Priority)))
	status := "active"
	if ak.Status == auth.Revoked {
		status = "revoked"
	}
	d.Set(fieldStatus, crdt.NewText(status))
	if ak.DisplayName != "" {
		d.Set(fieldDisplayName, crdt.NewText(ak.DisplayName))
	}
	return crdt.NewNode(d)
}

func authKeyFromValue(v crdt.Value) (auth.AuthKey, error) {
	d, ok := v.Node()
	if !ok {
		return auth.AuthKey{}, fmt.Errorf("txn: auth key entry is not a node")
	}
	ak := auth.AuthKey{}
	if pv, ok := d.Get(fieldPubkey); ok {
		ak.Pubkey = pv.TextOr("")
	}
	ak.Permissions = permissionFromNode(d)
	status := auth.Active
	if sv, ok := d.Get(fieldStatus); ok && sv.TextOr("active") == "revoked" {
		status = auth.Revoked
	}
	ak.Status = status
	if nv, ok := d.Get(fieldDisplayName); ok {
		ak.DisplayName = nv.TextOr("")
	}
	return ak, nil
}

func idListToValue(ids []entry.ID) crdt.Value {
	l := crdt.NewList()
	for _, id := range ids {
		l.Append(crdt.NewText(string(id)))
	}
	return crdt.NewListValue(l)
}

func idListFromValue(v crdt.Value) []entry.ID {
	l, ok := v.List()
	if !ok {
		return nil
	}
	var out []entry.ID
	for _, item := range l.Live() {
		out = append(out, entry.ID(item.Value.TextOr("")))
	}
	return out
}

func delegatedRefToValue(ref auth.DelegatedTreeRef) crdt.Value {
	d := crdt.NewDoc()
	d.Set(fieldMaxKind, crdt.NewText(permissionKindName(ref.Bounds.Max.Kind)))
	d.Set(fieldMaxPriority, crdt.NewInt(int64(ref.Bounds.Max.Priority)))
	if ref.Bounds.Min != nil {
		d.Set(fieldMinKind, crdt.NewText(permissionKindName(ref.Bounds.Min.Kind)))
		d.Set(fieldMinPriority, crdt.NewInt(int64(ref.Bounds.Min.Priority)))
	}
	d.Set(fieldTreeRoot, crdt.NewText(string(ref.Tree.Root)))
	d.Set(fieldTreeTips, idListToValue(ref.Tree.Tips))
	return crdt.NewNode(d)
}

func delegatedRefFromValue(v crdt.Value) (auth.DelegatedTreeRef, error) {
	d, ok := v.Node()
	if !ok {
		return auth.DelegatedTreeRef{}, fmt.Errorf("txn: delegation entry is not a node")
	}
	ref := auth.DelegatedTreeRef{}
	maxP := auth.Permission{}
	if kv, ok := d.Get(fieldMaxKind); ok {
		maxP.Kind = parsePermissionKind(kv.TextOr(""))
	}
	if pv, ok := d.Get(fieldMaxPriority); ok {
		maxP.Priority = uint32(pv.IntOr(0))
	}
	ref.Bounds.Max = maxP
	if kv, ok := d.Get(fieldMinKind); ok {
		minP := auth.Permission{Kind: parsePermissionKind(kv.TextOr(""))}
		if pv, ok := d.Get(fieldMinPriority); ok {
			minP.Priority = uint32(pv.IntOr(0))
		}
		ref.Bounds.Min = &minP
	}
	if rv, ok := d.Get(fieldTreeRoot); ok {
		ref.Tree.Root = entry.ID(rv.TextOr(""))
	}
	if tv, ok := d.GetRaw(fieldTreeTips); ok {
		ref.Tree.Tips = idListFromValue(tv)
	}
	return ref, nil
}

// ToAuthSnapshot parses a materialized `_settings` Doc into a typed
// auth.AuthSnapshot, per the "keys" / "delegations" / "policy" layout this
// package writes via ApplyAuthSnapshot.
func ToAuthSnapshot(doc *crdt.Doc) (*auth.AuthSnapshot, error) {
	snap := auth.NewAuthSnapshot()
	if keysVal, ok := doc.Get(keyKeys); ok {
		keysDoc, ok := keysVal.Node()
		if !ok {
			return nil, fmt.Errorf("txn: settings.keys is not a node")
		}
		for _, name := range keysDoc.Keys() {
			v, _ := keysDoc.Get(name)
			ak, err := authKeyFromValue(v)
			if err != nil {
				return nil, fmt.Errorf("txn: parsing auth key %q: %w", name, err)
			}
			snap.Keys[name] = ak
		}
	}
	if delVal, ok := doc.Get(keyDelegations); ok {
		delDoc, ok := delVal.Node()
		if !ok {
			return nil, fmt.Errorf("txn: settings.delegations is not a node")
		}
		for _, rootStr := range delDoc.Keys() {
			v, _ := delDoc.Get(rootStr)
			ref, err := delegatedRefFromValue(v)
			if err != nil {
				return nil, fmt.Errorf("txn: parsing delegation %q: %w", rootStr, err)
			}
			snap.Delegations[entry.ID(rootStr)] = ref
		}
	}
	if polVal, ok := doc.Get(keyPolicy); ok {
		polDoc, ok := polVal.Node()
		if ok {
			if bv, ok := polDoc.Get(fieldBootstrapAutoApprove); ok {
				snap.Policy.BootstrapAutoApprove = bv.BoolOr(false)
			}
		}
	}
	return snap, nil
}

// ApplyAuthSnapshot renders snap into doc, overwriting the "keys",
// "delegations" and "policy" top-level keys. Used when a transaction
// stages changes to a database's auth configuration (grants, revocations,
// delegation grants during sync bootstrap).
func ApplyAuthSnapshot(doc *crdt.Doc, snap *auth.AuthSnapshot) {
	keysDoc := crdt.NewDoc()
	for name, ak := range snap.Keys {
		keysDoc.Set(name, authKeyToValue(ak))
	}
	doc.Set(keyKeys, crdt.NewNode(keysDoc))

	delDoc := crdt.NewDoc()
	for root, ref := range snap.Delegations {
		delDoc.Set(string(root), delegatedRefToValue(ref))
	}
	doc.Set(keyDelegations, crdt.NewNode(delDoc))

	polDoc := crdt.NewDoc()
	polDoc.Set(fieldBootstrapAutoApprove, crdt.NewBool(snap.Policy.BootstrapAutoApprove))
	doc.Set(keyPolicy, crdt.NewNode(polDoc))
}
