// Package auth implements the capability-based authentication model:
// Permission ordering, AuthKey/KeyStatus, delegation resolution with
// clamping, and historical (point-in-time) Entry validation.
//
// Grounded in _examples/original_source/crates/lib/src/auth/** for
// semantics, and in the sentinel-error/wrap style of
// _examples/untoldecay-BeadsLog/internal/storage/sqlite/validators.go for
// the shape of the validation errors.
package auth

// PermissionKind is the variant discriminator for Permission: Go has no
// payload-carrying enum, so Kind selects whether Priority is meaningful.
type PermissionKind int

const (
	KindRead PermissionKind = iota
	KindWrite
	KindAdmin
)

func (k PermissionKind) String() string {
	switch k {
	case KindWrite:
		return "write"
	case KindAdmin:
		return "admin"
	default:
		return "read"
	}
}

// Permission is Read, Write(priority), or Admin(priority). Ordering:
// Read < Write(_) < Admin(_); within the same variant a lower numeric
// priority outranks a higher one (Admin(0) outranks Admin(5)).
type Permission struct {
	Kind     PermissionKind
	Priority uint32
}

// ReadPermission is the sole Read-variant value.
func ReadPermission() Permission { return Permission{Kind: KindRead} }

// WritePermission constructs a Write(priority) value.
func WritePermission(priority uint32) Permission {
	return Permission{Kind: KindWrite, Priority: priority}
}

// AdminPermission constructs an Admin(priority) value.
func AdminPermission(priority uint32) Permission {
	return Permission{Kind: KindAdmin, Priority: priority}
}

func (p Permission) CanWrite() bool { return p.Kind == KindWrite || p.Kind == KindAdmin }
func (p Permission) CanAdmin() bool { return p.Kind == KindAdmin }

// Less reports whether p confers strictly less power than other.
func (p Permission) Less(other Permission) bool {
	if p.Kind != other.Kind {
		return p.Kind < other.Kind
	}
	if p.Kind == KindRead {
		return false
	}
	// Same variant: a higher priority number means less power.
	return p.Priority > other.Priority
}

// Equal reports variant and (where relevant) priority equality.
func (p Permission) Equal(other Permission) bool {
	if p.Kind != other.Kind {
		return false
	}
	if p.Kind == KindRead {
		return true
	}
	return p.Priority == other.Priority
}

func (p Permission) String() string {
	if p.Kind == KindRead {
		return "Read"
	}
	return p.Kind.String() + "(" + itoa(p.Priority) + ")"
}

func itoa(u uint32) string {
	if u == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

// PermissionBounds is the clamp interval applied at one delegation step:
// an upper bound (always enforced) and an optional lower bound.
type PermissionBounds struct {
	Max Permission
	Min *Permission
}

// Clamp returns min(max(raw, bounds.Min), bounds.Max) in permission order:
// raw is first floored to bounds.Min (if set), then capped at bounds.Max.
func Clamp(raw Permission, bounds PermissionBounds) Permission {
	effective := raw
	if bounds.Min != nil && effective.Less(*bounds.Min) {
		effective = *bounds.Min
	}
	if bounds.Max.Less(effective) {
		effective = bounds.Max
	}
	return effective
}
