package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/preparatoire/gpf/internal/apperr"
	"github.com/preparatoire/gpf/internal/gate"
	"github.com/preparatoire/gpf/internal/middleware"
)

// TenantUpdater pushes a tenant rename to the identity platform.
type TenantUpdater interface {
	UpdateTenant(ctx context.Context, tenantID, name string) error
}

// Pharmacy extends the generic resource with tenant-name propagation:
// renaming a pharmacy renames the tenant it belongs to, exactly once
// per successful update.
type Pharmacy struct {
	*Resource
	Tenants TenantUpdater
}

func NewPharmacy(r *Resource, tenants TenantUpdater) *Pharmacy {
	return &Pharmacy{Resource: r, Tenants: tenants}
}

func (h *Pharmacy) Update(c echo.Context) error {
	sess := middleware.SessionFrom(c)

	payload := map[string]any{}
	if err := c.Bind(&payload); err != nil {
		return &apperr.ValidationError{Violations: map[string]string{"body": "must be a JSON object"}}
	}

	rec, err := h.updateRecord(c, payload)
	if err != nil {
		return err
	}

	if name, ok := payload["name"].(string); ok && name != "" {
		if err := h.Tenants.UpdateTenant(c.Request().Context(), sess.TenantID, name); err != nil {
			return &apperr.TenantSyncError{Err: err}
		}
	}

	if err := h.notify(c, rec, gate.OpUpdate, sess.UserID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}
