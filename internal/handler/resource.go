// Package handler exposes the REST surface. One generic Resource serves
// every entity; the pharmacy handler layers tenant-name propagation on
// top of it.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/preparatoire/gpf/internal/apperr"
	"github.com/preparatoire/gpf/internal/gate"
	"github.com/preparatoire/gpf/internal/middleware"
	"github.com/preparatoire/gpf/internal/notify"
	"github.com/preparatoire/gpf/internal/query"
	"github.com/preparatoire/gpf/internal/schema"
	"github.com/preparatoire/gpf/internal/store"
	"github.com/preparatoire/gpf/internal/validation"
)

// Anonymous collection reads are allowed but never page deeper than this.
const publicListLimit = 100

// Resource is the generic CRUD handler for one entity. All entities
// share the same pipeline: translate/validate, gate, persist, notify.
type Resource struct {
	Entity   *schema.Entity
	Store    *store.Store
	Gate     *gate.Gate
	Notifier notify.Notifier
}

func NewResource(e *schema.Entity, s *store.Store, g *gate.Gate, n notify.Notifier) *Resource {
	return &Resource{Entity: e, Store: s, Gate: g, Notifier: n}
}

// List serves the collection endpoint. With a session the read is
// scoped to the caller's tenant; without one it is public but clamped
// to the first pages.
func (h *Resource) List(c echo.Context) error {
	sess := middleware.SessionFrom(c)

	spec, err := query.Translate(c.QueryParams(), h.Entity)
	if err != nil {
		return err
	}
	if sess == nil && spec.Limit > publicListLimit {
		spec.Limit = publicListLimit
	}

	res, err := h.Store.FindMany(c.Request().Context(), h.Entity, spec, h.Gate.Scope(h.Entity, sess))
	if err != nil {
		return &apperr.PersistenceError{Err: err}
	}
	return c.JSON(http.StatusOK, res)
}

// GetByID serves the item read. Unlike List there is no anonymous path:
// a session is required and the row must be reachable under its scope.
func (h *Resource) GetByID(c echo.Context) error {
	ctx := c.Request().Context()
	sess := middleware.SessionFrom(c)
	id := c.Param("id")

	ok, err := h.Gate.CanAccess(ctx, sess, h.Entity, gate.OpGet, id)
	if err != nil {
		return &apperr.PersistenceError{Err: err}
	}
	if !ok {
		return apperr.ErrForbidden
	}

	spec, err := query.Translate(c.QueryParams(), h.Entity)
	if err != nil {
		return err
	}

	rec, err := h.Store.FindFirst(ctx, h.Entity, id, spec.Includes, h.Gate.Scope(h.Entity, sess))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrForbidden
		}
		return &apperr.PersistenceError{Err: err}
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Resource) Create(c echo.Context) error {
	ctx := c.Request().Context()
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return apperr.ErrForbidden
	}

	payload := map[string]any{}
	if err := c.Bind(&payload); err != nil {
		return &apperr.ValidationError{Violations: map[string]string{"body": "must be a JSON object"}}
	}
	if v := validation.Validate(h.Entity, payload, false); !v.Empty() {
		return &apperr.ValidationError{Violations: v}
	}

	ok, err := h.Gate.CanAccess(ctx, sess, h.Entity, gate.OpCreate, "")
	if err != nil {
		return &apperr.PersistenceError{Err: err}
	}
	if !ok {
		return apperr.ErrForbidden
	}

	rec, err := h.Store.Create(ctx, h.Entity, payload)
	if err != nil {
		return &apperr.PersistenceError{Err: err}
	}
	if err := h.notify(c, rec, gate.OpCreate, sess.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Resource) Update(c echo.Context) error {
	sess := middleware.SessionFrom(c)

	payload := map[string]any{}
	if err := c.Bind(&payload); err != nil {
		return &apperr.ValidationError{Violations: map[string]string{"body": "must be a JSON object"}}
	}

	rec, err := h.updateRecord(c, payload)
	if err != nil {
		return err
	}
	if err := h.notify(c, rec, gate.OpUpdate, sess.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Resource) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return apperr.ErrForbidden
	}
	id := c.Param("id")

	ok, err := h.Gate.CanAccess(ctx, sess, h.Entity, gate.OpDelete, id)
	if err != nil {
		return &apperr.PersistenceError{Err: err}
	}
	if !ok {
		return apperr.ErrForbidden
	}

	rec, err := h.Store.Delete(ctx, h.Entity, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrForbidden
		}
		return &apperr.PersistenceError{Err: err}
	}
	if err := h.notify(c, rec, gate.OpDelete, sess.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// updateRecord runs the shared update pipeline on an already-bound
// payload and returns the fresh record without responding, so the
// pharmacy handler can hook in between persistence and the response.
func (h *Resource) updateRecord(c echo.Context, payload map[string]any) (store.Record, error) {
	ctx := c.Request().Context()
	sess := middleware.SessionFrom(c)
	if sess == nil {
		return nil, apperr.ErrForbidden
	}
	id := c.Param("id")

	if v := validation.Validate(h.Entity, payload, true); !v.Empty() {
		return nil, &apperr.ValidationError{Violations: v}
	}

	ok, err := h.Gate.CanAccess(ctx, sess, h.Entity, gate.OpUpdate, id)
	if err != nil {
		return nil, &apperr.PersistenceError{Err: err}
	}
	if !ok {
		return nil, apperr.ErrForbidden
	}

	rec, err := h.Store.Update(ctx, h.Entity, id, payload)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrForbidden
		}
		return nil, &apperr.PersistenceError{Err: err}
	}
	return rec, nil
}

func (h *Resource) notify(c echo.Context, rec store.Record, op gate.Op, userID string) error {
	id, _ := rec["id"].(string)
	if err := h.Notifier.Notify(c.Request().Context(), h.Entity.Name, id, op.String(), userID); err != nil {
		return &apperr.NotificationError{Err: err}
	}
	return nil
}
