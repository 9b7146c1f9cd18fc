package gate

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preparatoire/gpf/internal/identity"
	"github.com/preparatoire/gpf/internal/schema"
	"github.com/preparatoire/gpf/internal/store"
)

var ownerRoles = []string{"Owner", "Web Developer"}

func newGate(t *testing.T) (*Gate, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(store.New(db), ownerRoles), mock
}

func entity(t *testing.T, name string) *schema.Entity {
	t.Helper()
	e, ok := schema.Get(name)
	require.True(t, ok)
	return e
}

func session(userID string, roles ...string) *identity.Session {
	return &identity.Session{UserID: userID, TenantID: "T1", Roles: roles}
}

func TestScopeShapes(t *testing.T) {
	g, _ := newGate(t)
	sess := session("U1")

	pharmacy := g.Scope(entity(t, "pharmacy"), sess)
	require.Len(t, pharmacy, 1)
	assert.Equal(t, "`tenant_id` = ?", pharmacy[0].SQL)
	assert.Equal(t, []any{"T1"}, pharmacy[0].Args)

	formA := g.Scope(entity(t, "form_a"), sess)
	require.Len(t, formA, 1)
	assert.Contains(t, formA[0].SQL, "`user_id` IN (SELECT `id` FROM `user` WHERE `tenant_id` = ?)")

	history := g.Scope(entity(t, "order_history_client"), sess)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].SQL, "`order_id` IN (SELECT `id` FROM `order_current`")

	pdf := g.Scope(entity(t, "pdf_file"), sess)
	require.Len(t, pdf, 1)
	assert.Contains(t, pdf[0].SQL, "`associated_form` IN (SELECT `id` FROM `form_a`")

	assert.Nil(t, g.Scope(entity(t, "form_a"), nil))
}

func TestAnonymousDenied(t *testing.T) {
	g, _ := newGate(t)
	ok, err := g.CanAccess(context.Background(), nil, entity(t, "form_a"), OpList, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAndCreateSkipRecordCheck(t *testing.T) {
	g, _ := newGate(t)
	for _, op := range []Op{OpList, OpCreate} {
		ok, err := g.CanAccess(context.Background(), session("U1"), entity(t, "form_a"), op, "")
		require.NoError(t, err)
		assert.True(t, ok, op.String())
	}
}

func formARow(t *testing.T, id, userID string) *sqlmock.Rows {
	t.Helper()
	e := entity(t, "form_a")
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Name
	}
	now := time.Now().UTC()
	return sqlmock.NewRows(cols).
		AddRow(id, now, now, "PH1", userID, now, nil, nil, nil, nil)
}

func TestOwnerOfRecordAllowed(t *testing.T) {
	g, mock := newGate(t)

	mock.ExpectQuery("SELECT .+ FROM `form_a` WHERE `id` = \\? AND `user_id` IN").
		WithArgs("A1", "T1").
		WillReturnRows(formARow(t, "A1", "U1"))

	ok, err := g.CanAccess(context.Background(), session("U1"), entity(t, "form_a"), OpUpdate, "A1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNonOwnerDenied(t *testing.T) {
	g, mock := newGate(t)

	mock.ExpectQuery("SELECT .+ FROM `form_a`").
		WillReturnRows(formARow(t, "A1", "someone-else"))

	ok, err := g.CanAccess(context.Background(), session("U1"), entity(t, "form_a"), OpDelete, "A1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOwnerRoleOverridesOwnership(t *testing.T) {
	g, mock := newGate(t)

	mock.ExpectQuery("SELECT .+ FROM `form_a`").
		WillReturnRows(formARow(t, "A1", "someone-else"))

	ok, err := g.CanAccess(context.Background(), session("U1", "Owner"), entity(t, "form_a"), OpDelete, "A1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordOutsideTenantLooksMissing(t *testing.T) {
	g, mock := newGate(t)
	e := entity(t, "form_a")
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Name
	}
	// The tenant scope filters the row out server-side: empty result.
	mock.ExpectQuery("SELECT .+ FROM `form_a`").
		WillReturnRows(sqlmock.NewRows(cols))

	ok, err := g.CanAccess(context.Background(), session("U1"), e, OpGet, "A1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTenantSharedEntityAllowsAnyMember(t *testing.T) {
	g, mock := newGate(t)
	e := entity(t, "order_history_client")
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Name
	}
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM `order_history_client`").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("H1", now, now, "O1", "delivered", "2024-01-01", nil, nil))

	ok, err := g.CanAccess(context.Background(), session("U1"), e, OpUpdate, "H1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpStrings(t *testing.T) {
	assert.Equal(t, "list", OpList.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.False(t, OpList.Mutates())
	assert.True(t, OpUpdate.Mutates())
}
