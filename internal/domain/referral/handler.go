package referral

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/domain/authorization"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/search"
	"github.com/hms/hms/pkg/apperror"
	"github.com/hms/hms/pkg/pagination"
)

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// CodeConsumer is the slice of authorization.Service the desk office
// workflow needs here.
type CodeConsumer interface {
	Consume(ctx context.Context, codeStr string, patientID uuid.UUID, serviceType string, amount int64, entityType string, entityID uuid.UUID) (*authorization.Code, error)
}

type Handler struct {
	svc   *Service
	codes CodeConsumer
	tx    TxRunner
}

func NewHandler(svc *Service, codes CodeConsumer, tx TxRunner) *Handler {
	return &Handler{svc: svc, codes: codes, tx: tx}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	readGroup.GET("/referrals", h.List)
	readGroup.GET("/referrals/:id", h.Get)

	clinicalGroup := api.Group("", auth.RequireRole("admin", "physician"))
	clinicalGroup.POST("/referrals", h.Create)
	clinicalGroup.POST("/referrals/:id/accept", h.Accept)
	clinicalGroup.POST("/referrals/:id/reject", h.Reject)
	clinicalGroup.POST("/referrals/:id/complete", h.Complete)
	clinicalGroup.POST("/referrals/:id/cancel", h.Cancel)

	deskGroup := api.Group("", auth.RequireRole("admin"))
	deskGroup.POST("/referrals/:id/authorize", h.Authorize)
	deskGroup.POST("/referrals/:id/authorization/override", h.OverrideAuthorization)
}

func (h *Handler) Create(c echo.Context) error {
	var r Referral
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if r.ReferringClinicianID == "" {
		r.ReferringClinicianID = auth.UserIDFromContext(ctx)
	}
	if r.ReferringDepartment == "" {
		r.ReferringDepartment = auth.DepartmentFromContext(ctx)
	}
	if err := h.svc.Create(ctx, &r); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "referral not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := search.ExtractParams(c)
	referrals, total, err := h.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(referrals, total, pg.Limit, pg.Offset))
}

func (h *Handler) action(c echo.Context, fn func(ctx context.Context, id uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	r, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "referral not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Accept(c echo.Context) error {
	return h.action(c, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.Accept(ctx, id, auth.UserIDFromContext(ctx))
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.action(c, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.Reject(ctx, id, req.Reason)
	})
}

func (h *Handler) Complete(c echo.Context) error {
	return h.action(c, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.Complete(ctx, id)
	})
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.action(c, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.Cancel(ctx, id)
	})
}

type authorizeRequest struct {
	Code string `json:"code"`
}

// Authorize consumes a presented code and lifts the gate on the referral
// in one transaction.
func (h *Handler) Authorize(c echo.Context) error {
	var req authorizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	return h.action(c, func(ctx context.Context, id uuid.UUID) error {
		r, err := h.svc.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("referral %s: %w", id, apperror.ErrNotFound)
		}
		return h.tx(ctx, func(ctx context.Context) error {
			code, err := h.codes.Consume(ctx, req.Code, r.PatientID, authorization.ServiceReferral, 0, "referral", r.ID)
			if err != nil {
				return err
			}
			return h.svc.Authorize(ctx, r.ID, code.ID)
		})
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
	return h.action(c, func(ctx context.Context, id uuid.UUID) error {
		return h.svc.OverrideAuthorization(ctx, id, auth.UserIDFromContext(ctx), req.Reason)
	})
}
