package authorization

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/prescription"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/search"
	"github.com/hms/hms/pkg/apperror"
	"github.com/hms/hms/pkg/pagination"
)

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PrescriptionAuthorizer is the slice of prescription.Service the desk
// office workflow needs.
type PrescriptionAuthorizer interface {
	Get(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error)
	Authorize(ctx context.Context, id uuid.UUID, codeID uuid.UUID) error
}

type Handler struct {
	svc           *Service
	prescriptions PrescriptionAuthorizer
	tx            TxRunner
}

func NewHandler(svc *Service, prescriptions PrescriptionAuthorizer, tx TxRunner) *Handler {
	return &Handler{svc: svc, prescriptions: prescriptions, tx: tx}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Desk office operations are admin only.
	deskGroup := api.Group("", auth.RequireRole("admin"))
	deskGroup.POST("/authorization-codes", h.Issue)
	deskGroup.GET("/authorization-codes", h.List)
	deskGroup.GET("/authorization-codes/:id", h.Get)
	deskGroup.POST("/authorization-codes/:id/revoke", h.Revoke)
	deskGroup.POST("/prescriptions/:id/authorize", h.AuthorizePrescription)

	// Pharmacists check codes at the counter without consuming them.
	checkGroup := api.Group("", auth.RequireRole("admin", "pharmacist"))
	checkGroup.POST("/authorization-codes/validate", h.Validate)
}

func (h *Handler) Issue(c echo.Context) error {
	var code Code
	if err := c.Bind(&code); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if code.IssuedBy == "" {
		code.IssuedBy = auth.UserIDFromContext(ctx)
	}
	if err := h.svc.Issue(ctx, &code); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, code)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	code, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "authorization code not found")
	}
	return c.JSON(http.StatusOK, code)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := search.ExtractParams(c)
	codes, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(codes, total, pg.Limit, pg.Offset))
}

func (h *Handler) Revoke(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Revoke(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	code, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "authorization code not found")
	}
	return c.JSON(http.StatusOK, code)
}

type validateRequest struct {
	Code        string    `json:"code"`
	PatientID   uuid.UUID `json:"patient_id"`
	ServiceType string    `json:"service_type"`
	Amount      int64     `json:"amount"`
}

func (h *Handler) Validate(c echo.Context) error {
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	code, err := h.svc.Validate(c.Request().Context(), req.Code, req.PatientID, req.ServiceType, req.Amount)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, code)
}

type authorizeRequest struct {
	Code string `json:"code"`
}

// AuthorizePrescription consumes a presented code and lifts the gate on the
// prescription in one transaction.
func (h *Handler) AuthorizePrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req authorizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	ctx := c.Request().Context()
	p, err := h.prescriptions.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	err = h.tx(ctx, func(ctx context.Context) error {
		code, err := h.svc.Consume(ctx, req.Code, p.PatientID, ServicePrescription, 0, "prescription", p.ID)
		if err != nil {
			return err
		}
		return h.prescriptions.Authorize(ctx, p.ID, code.ID)
	})
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	p, err = h.prescriptions.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	return c.JSON(http.StatusOK, p)
}
