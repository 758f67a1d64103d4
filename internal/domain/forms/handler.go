package forms

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/auth"
	"github.com/healthdesk/triage/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any authenticated caller may read a form in order to answer it.
	api.GET("/forms/:id", h.GetForm)
	api.GET("/me/forms", h.MyForms)

	staff := api.Group("", auth.RequireRole(auth.StaffRoles...))
	staff.GET("/forms", h.ListForms)
	staff.POST("/forms", h.CreateForm)
	staff.PUT("/forms/:id", h.UpdateForm)
	staff.DELETE("/forms/:id", h.DeleteForm)
	staff.PUT("/forms/:id/screening", h.SetScreening)
	staff.POST("/forms/:id/screening/toggle", h.ToggleScreening)

	staff.GET("/forms/:id/score-rules", h.ListScoreRules)
	staff.POST("/forms/:id/score-rules", h.CreateScoreRule)
	staff.PUT("/forms/:id/score-rules/:ruleId", h.UpdateScoreRule)
	staff.DELETE("/forms/:id/score-rules/:ruleId", h.DeleteScoreRule)

	staff.GET("/forms/:id/assignments", h.ListAssignments)
	staff.PUT("/forms/:id/assignments", h.AssignPatients)
	staff.DELETE("/forms/:id/assignments", h.UnassignPatients)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) CreateForm(c echo.Context) error {
	var in FormInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.CreateForm(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) GetForm(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	f, err := h.svc.GetForm(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	// Patients answer the form; thresholds and routing targets stay with staff.
	if !auth.HasRole(ctx, auth.StaffRoles...) {
		f.ScoreRules = nil
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) ListForms(c echo.Context) error {
	var filter ListFilter
	filter.Title = c.QueryParam("title")
	if v := c.QueryParam("is_screening"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid is_screening")
		}
		filter.IsScreening = &b
	}
	for name, dst := range map[string]**time.Time{"from": &filter.UpdatedFrom, "to": &filter.UpdatedTo} {
		if v := c.QueryParam(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC 3339 timestamp")
			}
			*dst = &t
		}
	}

	p := pagination.FromContext(c)
	items, total, err := h.svc.ListForms(c.Request().Context(), filter, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) UpdateForm(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in FormInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.UpdateForm(c.Request().Context(), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteForm(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteForm(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type screeningBody struct {
	IsScreening *bool `json:"is_screening"`
}

func (h *Handler) SetScreening(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body screeningBody
	if err := c.Bind(&body); err != nil || body.IsScreening == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_screening is required")
	}
	v, err := h.svc.SetScreening(c.Request().Context(), id, *body.IsScreening)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"id": id, "is_screening": v})
}

func (h *Handler) ToggleScreening(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	v, err := h.svc.ToggleScreening(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"id": id, "is_screening": v})
}

// -- Score rules --

func (h *Handler) ListScoreRules(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	rules, err := h.svc.ListScoreRules(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if rules == nil {
		rules = []ScoreRule{}
	}
	return c.JSON(http.StatusOK, rules)
}

func (h *Handler) CreateScoreRule(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in RuleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule, err := h.svc.CreateScoreRule(c.Request().Context(), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, rule)
}

func (h *Handler) UpdateScoreRule(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ruleID, err := parseID(c, "ruleId")
	if err != nil {
		return err
	}
	var in RuleInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rule, err := h.svc.UpdateScoreRule(c.Request().Context(), id, ruleID, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (h *Handler) DeleteScoreRule(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ruleID, err := parseID(c, "ruleId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteScoreRule(c.Request().Context(), id, ruleID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Assignments --

type assignmentBody struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

func (h *Handler) ListAssignments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	users, err := h.svc.ListAssignedPatients(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *Handler) AssignPatients(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body assignmentBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AssignPatients(c.Request().Context(), id, body.UserIDs); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UnassignPatients(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body assignmentBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UnassignPatients(c.Request().Context(), id, body.UserIDs); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MyForms(c echo.Context) error {
	uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "caller is not a directory user")
	}
	items, err := h.svc.FormsAssignedTo(c.Request().Context(), uid)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}
