package prescription

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/search"
	"github.com/hms/hms/pkg/apperror"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, physician, nurse, pharmacist
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "pharmacist"))
	readGroup.GET("/prescriptions", h.List)
	readGroup.GET("/prescriptions/:id", h.Get)

	// Prescribing – admin, physician
	prescribeGroup := api.Group("", auth.RequireRole("admin", "physician"))
	prescribeGroup.POST("/prescriptions", h.Create)
	prescribeGroup.POST("/prescriptions/:id/approve", h.Approve)
	prescribeGroup.POST("/prescriptions/:id/hold", h.Hold)
	prescribeGroup.POST("/prescriptions/:id/release", h.Release)

	// Authorization decisions – admin (desk office)
	deskGroup := api.Group("", auth.RequireRole("admin"))
	deskGroup.POST("/prescriptions/:id/authorization/reject", h.RejectAuthorization)
	deskGroup.POST("/prescriptions/:id/authorization/override", h.OverrideAuthorization)
	deskGroup.POST("/prescriptions/:id/waive", h.Waive)
}

func (h *Handler) Create(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if p.ClinicianID == "" {
		p.ClinicianID = auth.UserIDFromContext(ctx)
	}
	if p.ClinicianDepartment == "" {
		p.ClinicianDepartment = auth.DepartmentFromContext(ctx)
	}
	if err := h.svc.Create(ctx, &p); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := search.ExtractParams(c)
	items, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) action(c echo.Context, fn func(ctx echo.Context, id uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c, id); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Approve(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.Approve(c.Request().Context(), id)
	})
}

func (h *Handler) Hold(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.Hold(c.Request().Context(), id)
	})
}

func (h *Handler) Release(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.Release(c.Request().Context(), id)
	})
}

func (h *Handler) Waive(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.Waive(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()))
	})
}

func (h *Handler) RejectAuthorization(c echo.Context) error {
	return h.action(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.RejectAuthorization(c.Request().Context(), id)
	})
}

type overrideRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) OverrideAuthorization(c echo.Context) error {
	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.action(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.OverrideAuthorization(c.Request().Context(), id, auth.UserIDFromContext(c.Request().Context()), req.Reason)
	})
}
