package inventory

import (
	"net/http"
	"strconv"
	"time"

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
	readGroup.GET("/dispensaries", h.ListDispensaries)
	readGroup.GET("/dispensaries/:id", h.GetDispensary)
	readGroup.GET("/dispensaries/:id/stock/:medicationId", h.GetAvailability)
	readGroup.GET("/dispensaries/:id/alternatives/:medicationId", h.GetAlternatives)
	readGroup.GET("/bulk-stores", h.ListBulkStores)
	readGroup.GET("/stock/low", h.LowStock)
	readGroup.GET("/stock/expiring", h.Expiring)
	readGroup.GET("/transfers", h.ListTransfers)
	readGroup.GET("/transfers/:id", h.GetTransfer)
	readGroup.GET("/purchases", h.ListPurchases)
	readGroup.GET("/purchases/:id", h.GetPurchase)

	// Stock movement – admin, pharmacist
	writeGroup := api.Group("", auth.RequireRole("admin", "pharmacist"))
	writeGroup.POST("/purchases", h.CreatePurchase)
	writeGroup.POST("/purchases/:id/approve", h.ApprovePurchase)
	writeGroup.POST("/purchases/:id/reject", h.RejectPurchase)
	writeGroup.POST("/purchases/:id/cancel", h.CancelPurchase)
	writeGroup.POST("/purchases/:id/receive", h.ReceivePurchase)
	writeGroup.POST("/transfers", h.RequestTransfer)
	writeGroup.POST("/transfers/:id/approve", h.ApproveTransfer)
	writeGroup.POST("/transfers/:id/reject", h.RejectTransfer)
	writeGroup.POST("/transfers/:id/execute", h.ExecuteTransfer)

	// Facility administration – admin only
	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/dispensaries", h.CreateDispensary)
	adminGroup.PUT("/dispensaries/:id", h.UpdateDispensary)
	adminGroup.DELETE("/dispensaries/:id", h.DeactivateDispensary)
	adminGroup.POST("/bulk-stores", h.CreateBulkStore)
	adminGroup.POST("/dispensaries/:id/migrate-legacy", h.MigrateLegacy)
}

// -- Dispensaries --

func (h *Handler) CreateDispensary(c echo.Context) error {
	var d Dispensary
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateDispensary(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDispensary(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDispensary(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "dispensary not found")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDispensary(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var d Dispensary
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	if err := h.svc.UpdateDispensary(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeactivateDispensary(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivateDispensary(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDispensaries(c echo.Context) error {
	items, err := h.svc.ListDispensaries(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateBulkStore(c echo.Context) error {
	var b BulkStore
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateBulkStore(c.Request().Context(), &b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListBulkStores(c echo.Context) error {
	items, err := h.svc.ListBulkStores(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// -- Availability --

func (h *Handler) GetAvailability(c echo.Context) error {
	dispensaryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dispensary id")
	}
	medicationID, err := uuid.Parse(c.Param("medicationId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	qty, err := h.svc.Available(c.Request().Context(), dispensaryID, medicationID)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"dispensary_id": dispensaryID,
		"medication_id": medicationID,
		"available":     qty,
	})
}

func (h *Handler) GetAlternatives(c echo.Context) error {
	dispensaryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dispensary id")
	}
	medicationID, err := uuid.Parse(c.Param("medicationId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medication id")
	}
	items, err := h.svc.Alternatives(c.Request().Context(), dispensaryID, medicationID)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) LowStock(c echo.Context) error {
	items, err := h.svc.LowStockReport(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Expiring(c echo.Context) error {
	days := 90
	if v := c.QueryParam("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	items, err := h.svc.ExpiringReport(c.Request().Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// -- Purchases --

func (h *Handler) CreatePurchase(c echo.Context) error {
	var p Purchase
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.CreatedBy = auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.CreatePurchase(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPurchase(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPurchase(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "purchase not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPurchases(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := search.ExtractParams(c)
	items, total, err := h.svc.ListPurchases(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) purchaseAction(c echo.Context, fn func(ctx echo.Context, id uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c, id); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	p, err := h.svc.GetPurchase(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "purchase not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ApprovePurchase(c echo.Context) error {
	return h.purchaseAction(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.ApprovePurchase(c.Request().Context(), id)
	})
}

func (h *Handler) RejectPurchase(c echo.Context) error {
	return h.purchaseAction(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.RejectPurchase(c.Request().Context(), id)
	})
}

func (h *Handler) CancelPurchase(c echo.Context) error {
	return h.purchaseAction(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.CancelPurchase(c.Request().Context(), id)
	})
}

func (h *Handler) ReceivePurchase(c echo.Context) error {
	return h.purchaseAction(c, func(c echo.Context, id uuid.UUID) error {
		return h.svc.ReceivePurchase(c.Request().Context(), id)
	})
}

// -- Transfers --

func (h *Handler) RequestTransfer(c echo.Context) error {
	var t Transfer
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.RequestedBy = auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RequestTransfer(c.Request().Context(), &t); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTransfer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetTransfer(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "transfer not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTransfers(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := search.ExtractParams(c)
	items, total, err := h.svc.ListTransfers(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ApproveTransfer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	user := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.ApproveTransfer(c.Request().Context(), id, user); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	t, err := h.svc.GetTransfer(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "transfer not found")
	}
	return c.JSON(http.StatusOK, t)
}

type rejectTransferRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectTransfer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rejectTransferRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RejectTransfer(c.Request().Context(), id, user, req.Reason); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	t, err := h.svc.GetTransfer(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "transfer not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ExecuteTransfer(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	user := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.ExecuteTransfer(c.Request().Context(), id, user); err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	t, err := h.svc.GetTransfer(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "transfer not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) MigrateLegacy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	count, err := h.svc.MigrateLegacyInventory(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperror.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"migrated": count})
}
