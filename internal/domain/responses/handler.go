package responses

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
	// Patients answer for themselves; staff may answer on a patient's behalf.
	api.POST("/forms/:id/responses", h.SubmitResponse)
	api.PUT("/forms/:id/responses/:responseId", h.UpdateResponse)
	api.GET("/forms/:id/responses/:responseId", h.GetResponse)
	api.DELETE("/forms/:id/responses/:responseId", h.DeleteResponse)

	staff := api.Group("", auth.RequireRole(auth.StaffRoles...))
	staff.GET("/forms/:id/responses", h.ListResponses)
	staff.GET("/responses", h.ListAllResponses)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "caller is not a directory user")
	}
	return id, nil
}

func isStaff(c echo.Context) bool {
	return auth.HasRole(c.Request().Context(), auth.StaffRoles...)
}

// patientFor picks whose response is being written: the requested patient
// for staff, the caller otherwise.
func patientFor(c echo.Context, requested *uuid.UUID) (uuid.UUID, error) {
	if requested != nil && isStaff(c) {
		return *requested, nil
	}
	self, err := callerID(c)
	if err != nil {
		return uuid.Nil, err
	}
	if requested != nil && *requested != self {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "only staff may answer for another patient")
	}
	return self, nil
}

func (h *Handler) SubmitResponse(c echo.Context) error {
	formID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := patientFor(c, in.PatientID)
	if err != nil {
		return err
	}
	resp, err := h.svc.SubmitResponse(c.Request().Context(), formID, patientID, in.Answers)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) UpdateResponse(c echo.Context) error {
	formID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	responseID, err := parseID(c, "responseId")
	if err != nil {
		return err
	}
	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	patientID, err := patientFor(c, in.PatientID)
	if err != nil {
		return err
	}
	resp, err := h.svc.UpdateResponse(c.Request().Context(), formID, patientID, responseID, in.Answers)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// visibleResponse loads a response and hides it from patients who do not
// own it.
func (h *Handler) visibleResponse(c echo.Context) (*Detail, error) {
	formID, err := parseID(c, "id")
	if err != nil {
		return nil, err
	}
	responseID, err := parseID(c, "responseId")
	if err != nil {
		return nil, err
	}
	d, err := h.svc.GetResponse(c.Request().Context(), formID, responseID)
	if err != nil {
		return nil, apperr.ToHTTP(err)
	}
	if !isStaff(c) {
		self, err := callerID(c)
		if err != nil {
			return nil, err
		}
		if d.PatientID != self {
			return nil, echo.NewHTTPError(http.StatusNotFound, "response not found")
		}
	}
	return d, nil
}

func (h *Handler) GetResponse(c echo.Context) error {
	d, err := h.visibleResponse(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteResponse(c echo.Context) error {
	d, err := h.visibleResponse(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteResponse(c.Request().Context(), d.FormID, d.ID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListResponses(c echo.Context) error {
	formID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListResponses(c.Request().Context(), formID, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) ListAllResponses(c echo.Context) error {
	f, err := parseListFilter(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListAll(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func parseListFilter(c echo.Context) (ListFilter, error) {
	f := ListFilter{
		FormTitle:   c.QueryParam("form_title"),
		PatientName: c.QueryParam("patient_name"),
	}
	if v := c.QueryParam("is_screening"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid is_screening")
		}
		f.IsScreening = &b
	}
	scores := []struct {
		name string
		dst  **int
	}{
		{"score_min", &f.ScoreMin},
		{"score_max", &f.ScoreMax},
	}
	for _, p := range scores {
		if v := c.QueryParam(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
			}
			*p.dst = &n
		}
	}
	times := []struct {
		name string
		dst  **time.Time
	}{
		{"from", &f.From},
		{"to", &f.To},
	}
	for _, p := range times {
		if v := c.QueryParam(p.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name+": expected RFC 3339 timestamp")
			}
			*p.dst = &t
		}
	}
	return f, nil
}
