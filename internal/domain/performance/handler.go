package performance

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mbp/nursecall/internal/platform/apperr"
	"github.com/mbp/nursecall/internal/platform/auth"
	"github.com/mbp/nursecall/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/staff/:id/performance", h.Get)
	api.GET("/performance", h.List, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	recompute := false
	if raw := c.QueryParam("recompute"); raw != "" {
		if recompute, err = strconv.ParseBool(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "recompute must be true or false")
		}
	}
	snap, err := h.svc.Get(c.Request().Context(), id, recompute)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Snapshot{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
