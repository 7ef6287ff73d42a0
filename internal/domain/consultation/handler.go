package consultation

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/upstac/upstac/internal/domain/testrequest"
	"github.com/upstac/upstac/internal/platform/auth"
)

// DoctorRole is the role a caller needs for every consultation route.
const DoctorRole = "doctor"

type Handler struct {
	svc      *Lifecycle
	identity IdentityProvider
	hooks    Hooks
}

func NewHandler(svc *Lifecycle, identity IdentityProvider) *Handler {
	if identity == nil {
		identity = ContextIdentity{}
	}
	return &Handler{svc: svc, identity: identity}
}

// SetHooks attaches observability hooks to every handled operation.
func (h *Handler) SetHooks(hooks Hooks) {
	h.hooks = hooks
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/consultations", auth.RequireRole(DoctorRole))
	g.GET("/in-queue", h.ListPending)
	g.GET("", h.ListMine)
	g.PUT("/assign/:id", h.Assign)
	g.PUT("/update/:id", h.Complete)
	g.GET("/:id/flow", h.Flow)
}

// ListPending handles GET /consultations/in-queue.
func (h *Handler) ListPending(c echo.Context) error {
	var items []*testrequest.TestRequest
	err := h.observe(c, "list_pending", func() (err error) {
		items, err = h.svc.ListPending(c.Request().Context())
		return err
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// ListMine handles GET /consultations.
func (h *Handler) ListMine(c echo.Context) error {
	doctor, err := h.currentDoctor(c)
	if err != nil {
		return err
	}
	var items []*testrequest.TestRequest
	err = h.observe(c, "list_assigned", func() (err error) {
		items, err = h.svc.ListAssignedTo(c.Request().Context(), doctor)
		return err
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// Assign handles PUT /consultations/assign/:id.
func (h *Handler) Assign(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doctor, err := h.currentDoctor(c)
	if err != nil {
		return err
	}
	var t *testrequest.TestRequest
	err = h.observe(c, "assign", func() (err error) {
		t, err = h.svc.Assign(c.Request().Context(), id, doctor)
		return err
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

// Complete handles PUT /consultations/update/:id.
func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doctor, err := h.currentDoctor(c)
	if err != nil {
		return err
	}
	var req ConsultationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var t *testrequest.TestRequest
	err = h.observe(c, "complete", func() (err error) {
		t, err = h.svc.Complete(c.Request().Context(), id, &req, doctor)
		return err
	})
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
				"message": ve.Error(),
				"fields":  ve.Fields,
			})
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

// Flow handles GET /consultations/:id/flow.
func (h *Handler) Flow(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var entries []*testrequest.FlowEntry
	err = h.observe(c, "flow", func() (err error) {
		entries, err = h.svc.Flow(c.Request().Context(), id)
		return err
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) observe(c echo.Context, op string, fn func() error) error {
	ctx := c.Request().Context()
	start := time.Now()
	h.hooks.before(ctx, op)
	err := fn()
	h.hooks.after(ctx, op, err, time.Since(start))
	return err
}

func (h *Handler) currentDoctor(c echo.Context) (testrequest.Doctor, error) {
	doctor, err := h.identity.CurrentDoctor(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return testrequest.Doctor{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return testrequest.Doctor{}, echo.NewHTTPError(http.StatusInternalServerError, "identity lookup failed").SetInternal(err)
	}
	return doctor, nil
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// toHTTPError maps each lifecycle error kind to its own status code.
func toHTTPError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ve.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotAssignee):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
