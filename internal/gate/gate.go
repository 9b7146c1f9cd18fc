// Package gate decides what a session may do with a record. Collection
// reads are scoped down to the caller's tenant instead of being
// accept/reject decisions; single-record operations are checked against
// the concrete row.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/preparatoire/gpf/internal/identity"
	"github.com/preparatoire/gpf/internal/schema"
	"github.com/preparatoire/gpf/internal/store"
)

// Op is the closed set of operations the gate rules over.
type Op int

const (
	OpList Op = iota
	OpGet
	OpCreate
	OpUpdate
	OpDelete
)

// Mutates reports whether the operation writes.
func (o Op) Mutates() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

func (o Op) String() string {
	switch o {
	case OpList:
		return "list"
	case OpGet:
		return "read"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Gate evaluates tenant scoping and per-record ownership. ownerRoles are
// the tenant roles allowed to act on records they do not own.
type Gate struct {
	store      *store.Store
	ownerRoles []string
}

func New(s *store.Store, ownerRoles []string) *Gate {
	return &Gate{store: s, ownerRoles: ownerRoles}
}

// Scope returns the WHERE fragments that confine any read of e to the
// session's tenant. Entities that carry tenant_id scope directly; the
// rest reach the tenant through their nearest user-bearing ancestor.
func (g *Gate) Scope(e *schema.Entity, sess *identity.Session) []store.ScopeClause {
	if sess == nil {
		return nil
	}

	const tenantUsers = "(SELECT `id` FROM `user` WHERE `tenant_id` = ?)"

	if e.Field("tenant_id") != nil {
		return []store.ScopeClause{{SQL: "`tenant_id` = ?", Args: []any{sess.TenantID}}}
	}

	switch e.Name {
	case "order_history_client":
		// No user column at all; the owning order carries it.
		return []store.ScopeClause{{
			SQL:  "`order_id` IN (SELECT `id` FROM `order_current` WHERE `user_id` IN " + tenantUsers + ")",
			Args: []any{sess.TenantID},
		}}
	case "pdf_file":
		return []store.ScopeClause{{
			SQL:  "`associated_form` IN (SELECT `id` FROM `form_a` WHERE `user_id` IN " + tenantUsers + ")",
			Args: []any{sess.TenantID},
		}}
	default:
		return []store.ScopeClause{{
			SQL:  "`user_id` IN " + tenantUsers,
			Args: []any{sess.TenantID},
		}}
	}
}

// CanAccess answers whether the session may perform op. List and create
// need no record check: listing is constrained by Scope and creates land
// in the caller's own tenant. Record operations fetch the row under the
// tenant scope first, so a record in another tenant looks exactly like a
// missing one.
func (g *Gate) CanAccess(ctx context.Context, sess *identity.Session, e *schema.Entity, op Op, recordID string) (bool, error) {
	if sess == nil {
		return false, nil
	}
	if op == OpList || op == OpCreate {
		return true, nil
	}

	rec, err := g.store.FindFirst(ctx, e, recordID, nil, g.Scope(e, sess))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if sess.HasRole(g.ownerRoles...) {
		return true, nil
	}
	// Entities without their own user column are shared across the
	// tenant; any member may act on them.
	if e.Field("user_id") == nil {
		return true, nil
	}
	owner, _ := rec["user_id"].(string)
	if owner == "" {
		return true, nil
	}
	return owner == sess.UserID, nil
}
