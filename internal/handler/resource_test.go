package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preparatoire/gpf/internal/apperr"
	"github.com/preparatoire/gpf/internal/gate"
	"github.com/preparatoire/gpf/internal/identity"
	"github.com/preparatoire/gpf/internal/notify"
	"github.com/preparatoire/gpf/internal/schema"
	"github.com/preparatoire/gpf/internal/store"
)

type notifyCall struct {
	entity, recordID, operation, userID string
}

type fakeNotifier struct {
	calls []notifyCall
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, entity, recordID, operation, userID string) error {
	f.calls = append(f.calls, notifyCall{entity, recordID, operation, userID})
	return f.err
}

var _ notify.Notifier = (*fakeNotifier)(nil)

type fixture struct {
	res      *Resource
	mock     sqlmock.Sqlmock
	notifier *fakeNotifier
}

func newFixture(t *testing.T, entityName string) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ent, ok := schema.Get(entityName)
	require.True(t, ok)

	st := store.New(db)
	n := &fakeNotifier{}
	return &fixture{
		res:      NewResource(ent, st, gate.New(st, []string{"Owner", "Web Developer"}), n),
		mock:     mock,
		notifier: n,
	}
}

func newContext(t *testing.T, method, target, body string, sess *identity.Session) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if sess != nil {
		c.Set("session", sess)
	}
	return c, rec
}

func testSession(userID string, roles ...string) *identity.Session {
	return &identity.Session{UserID: userID, TenantID: "T1", Roles: roles}
}

func emptyPdfRows() *sqlmock.Rows {
	ent, _ := schema.Get("pdf_file")
	cols := make([]string, len(ent.Fields))
	for i, f := range ent.Fields {
		cols[i] = f.Name
	}
	return sqlmock.NewRows(cols)
}

func pdfFileRow(t *testing.T, id, fileName string) *sqlmock.Rows {
	t.Helper()
	now := time.Now().UTC()
	return emptyPdfRows().AddRow(id, now, now, fileName, "A1")
}

func TestListPublicIsUnscoped(t *testing.T) {
	f := newFixture(t, "pdf_file")

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM `pdf_file` WHERE 1=1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE 1=1").
		WithArgs(20, 0).
		WillReturnRows(pdfFileRow(t, "P1", "a.pdf"))
	f.mock.ExpectCommit()

	c, rec := newContext(t, http.MethodGet, "/api/pdf-files", "", nil)
	require.NoError(t, f.res.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalCount":1`)
	assert.Contains(t, rec.Body.String(), "a.pdf")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListClampsAnonymousLimit(t *testing.T) {
	f := newFixture(t, "pdf_file")

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file`").
		WithArgs(100, 0).
		WillReturnRows(emptyPdfRows())
	f.mock.ExpectCommit()

	c, _ := newContext(t, http.MethodGet, "/api/pdf-files?limit=500", "", nil)
	_ = f.res.List(c)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListScopedToTenantWithSession(t *testing.T) {
	f := newFixture(t, "pdf_file")

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM `pdf_file` WHERE `associated_form` IN").
		WithArgs("T1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `associated_form` IN").
		WithArgs("T1", 20, 0).
		WillReturnRows(emptyPdfRows())
	f.mock.ExpectCommit()

	c, rec := newContext(t, http.MethodGet, "/api/pdf-files", "", testSession("U1"))
	require.NoError(t, f.res.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListBadFilterIsValidationError(t *testing.T) {
	f := newFixture(t, "pdf_file")

	c, _ := newContext(t, http.MethodGet, "/api/pdf-files?bogus=1", "", nil)
	err := f.res.List(c)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Violations, "bogus")
}

func TestGetRequiresSession(t *testing.T) {
	f := newFixture(t, "pdf_file")

	c, _ := newContext(t, http.MethodGet, "/api/pdf-files/P1", "", nil)
	c.SetParamNames("id")
	c.SetParamValues("P1")
	assert.ErrorIs(t, f.res.GetByID(c), apperr.ErrForbidden)
}

func TestGetReturnsScopedRecord(t *testing.T) {
	f := newFixture(t, "pdf_file")

	// Gate's record check, then the handler's own read.
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `id` = \\? AND `associated_form` IN").
		WithArgs("P1", "T1").
		WillReturnRows(pdfFileRow(t, "P1", "a.pdf"))
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `id` = \\? AND `associated_form` IN").
		WithArgs("P1", "T1").
		WillReturnRows(pdfFileRow(t, "P1", "a.pdf"))

	c, rec := newContext(t, http.MethodGet, "/api/pdf-files/P1", "", testSession("U1"))
	c.SetParamNames("id")
	c.SetParamValues("P1")
	require.NoError(t, f.res.GetByID(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.pdf")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetOutsideScopeIsForbidden(t *testing.T) {
	f := newFixture(t, "pdf_file")

	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file`").
		WillReturnRows(emptyPdfRows())

	c, _ := newContext(t, http.MethodGet, "/api/pdf-files/P1", "", testSession("U1"))
	c.SetParamNames("id")
	c.SetParamValues("P1")
	assert.ErrorIs(t, f.res.GetByID(c), apperr.ErrForbidden)
}

func TestCreateAnonymousIsForbidden(t *testing.T) {
	f := newFixture(t, "pdf_file")

	c, _ := newContext(t, http.MethodPost, "/api/pdf-files", `{"file_name":"a.pdf"}`, nil)
	assert.ErrorIs(t, f.res.Create(c), apperr.ErrForbidden)
}

func TestCreateValidatesPayload(t *testing.T) {
	f := newFixture(t, "pdf_file")

	c, _ := newContext(t, http.MethodPost, "/api/pdf-files", `{"file_name":"a.pdf"}`, testSession("U1"))
	err := f.res.Create(c)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Violations, "associated_form")
}

func TestCreatePersistsAndNotifies(t *testing.T) {
	f := newFixture(t, "pdf_file")

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO `pdf_file`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `id` = \\?").
		WillReturnRows(pdfFileRow(t, "generated", "a.pdf"))

	c, rec := newContext(t, http.MethodPost, "/api/pdf-files",
		`{"file_name":"a.pdf","associated_form":"A1"}`, testSession("U1"))
	require.NoError(t, f.res.Create(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.notifier.calls, 1)
	call := f.notifier.calls[0]
	assert.Equal(t, "pdf_file", call.entity)
	assert.Equal(t, "generated", call.recordID)
	assert.Equal(t, "create", call.operation)
	assert.Equal(t, "U1", call.userID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateNotifierFailureSurfaces(t *testing.T) {
	f := newFixture(t, "pdf_file")
	f.notifier.err = errors.New("broker down")

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO `pdf_file`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `id` = \\?").
		WillReturnRows(pdfFileRow(t, "generated", "a.pdf"))

	c, _ := newContext(t, http.MethodPost, "/api/pdf-files",
		`{"file_name":"a.pdf","associated_form":"A1"}`, testSession("U1"))
	err := f.res.Create(c)
	var ne *apperr.NotificationError
	require.ErrorAs(t, err, &ne)
}

func TestUpdatePartialPayload(t *testing.T) {
	f := newFixture(t, "pdf_file")

	// Gate record check under tenant scope.
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `id` = \\? AND `associated_form` IN").
		WithArgs("P1", "T1").
		WillReturnRows(pdfFileRow(t, "P1", "a.pdf"))
	f.mock.ExpectExec("UPDATE `pdf_file` SET `updated_at` = \\?, `file_name` = \\? WHERE `id` = \\?").
		WithArgs(sqlmock.AnyArg(), "b.pdf", "P1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `id` = \\?").
		WillReturnRows(pdfFileRow(t, "P1", "b.pdf"))

	c, rec := newContext(t, http.MethodPut, "/api/pdf-files/P1",
		`{"file_name":"b.pdf"}`, testSession("U1"))
	c.SetParamNames("id")
	c.SetParamValues("P1")
	require.NoError(t, f.res.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "b.pdf")

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, "update", f.notifier.calls[0].operation)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateRejectsNestedWrites(t *testing.T) {
	f := newFixture(t, "form_a")

	c, _ := newContext(t, http.MethodPut, "/api/form-as/A1",
		`{"pdf_file":[{"file_name":"x.pdf"}]}`, testSession("U1"))
	c.SetParamNames("id")
	c.SetParamValues("A1")
	err := f.res.Update(c)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Violations, "pdf_file")
	assert.Empty(t, f.notifier.calls)
}

func TestDeletePersistsBeforeNotify(t *testing.T) {
	f := newFixture(t, "pdf_file")

	// Gate check, then the read-before-delete, then the delete itself.
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `id` = \\? AND `associated_form` IN").
		WithArgs("P1", "T1").
		WillReturnRows(pdfFileRow(t, "P1", "a.pdf"))
	f.mock.ExpectQuery("SELECT .+ FROM `pdf_file` WHERE `id` = \\?").
		WithArgs("P1").
		WillReturnRows(pdfFileRow(t, "P1", "a.pdf"))
	f.mock.ExpectExec("DELETE FROM `pdf_file` WHERE `id` = \\?").
		WithArgs("P1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, rec := newContext(t, http.MethodDelete, "/api/pdf-files/P1", "", testSession("U1"))
	c.SetParamNames("id")
	c.SetParamValues("P1")
	require.NoError(t, f.res.Delete(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.pdf")

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, "delete", f.notifier.calls[0].operation)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteOwnedByAnotherUserIsForbidden(t *testing.T) {
	f := newFixture(t, "form_a")
	ent, _ := schema.Get("form_a")
	cols := make([]string, len(ent.Fields))
	for i, fld := range ent.Fields {
		cols[i] = fld.Name
	}
	now := time.Now().UTC()

	f.mock.ExpectQuery("SELECT .+ FROM `form_a` WHERE `id` = \\? AND `user_id` IN").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("A1", now, now, "PH1", "someone-else", now, nil, nil, nil, nil))

	c, _ := newContext(t, http.MethodDelete, "/api/form-as/A1", "", testSession("U1"))
	c.SetParamNames("id")
	c.SetParamValues("A1")
	assert.ErrorIs(t, f.res.Delete(c), apperr.ErrForbidden)
	assert.Empty(t, f.notifier.calls)
}
