// Package router wires the REST surface onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/preparatoire/gpf/internal/handler"
)

// resource is the handler surface every entity group exposes.
type resource interface {
	List(c echo.Context) error
	GetByID(c echo.Context) error
	Create(c echo.Context) error
	Update(c echo.Context) error
	Delete(c echo.Context) error
}

// Deps carries the per-entity handlers. Pharmacy is separate because
// its update path additionally propagates the tenant rename.
type Deps struct {
	Pharmacy             *handler.Pharmacy
	ClientProfile        *handler.Resource
	FormA                *handler.Resource
	FormB                *handler.Resource
	FormC                *handler.Resource
	OrderCurrent         *handler.Resource
	OrderHistoryClient   *handler.Resource
	OrderHistoryPharmacy *handler.Resource
	PDFFile              *handler.Resource
}

// Register mounts the health check and one CRUD group per entity under
// /api. Collection GETs double as the public read path; everything else
// requires a session, enforced in the handlers rather than by
// middleware so anonymous requests still reach the public branch.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	mount(e, "/api/pharmacies", d.Pharmacy)
	mount(e, "/api/client-profiles", d.ClientProfile)
	mount(e, "/api/form-as", d.FormA)
	mount(e, "/api/form-bs", d.FormB)
	mount(e, "/api/form-cs", d.FormC)
	mount(e, "/api/order-currents", d.OrderCurrent)
	mount(e, "/api/order-history-clients", d.OrderHistoryClient)
	mount(e, "/api/order-history-pharmacies", d.OrderHistoryPharmacy)
	mount(e, "/api/pdf-files", d.PDFFile)
}

func mount(e *echo.Echo, prefix string, r resource) {
	g := e.Group(prefix)
	g.GET("", r.List)
	g.POST("", r.Create)
	g.GET("/:id", r.GetByID)
	g.PUT("/:id", r.Update)
	g.DELETE("/:id", r.Delete)
}
