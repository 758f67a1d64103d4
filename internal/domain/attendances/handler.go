package attendances

import (
	"net/http"
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
	staff := api.Group("/attendances", auth.RequireRole(auth.StaffRoles...))
	staff.POST("", h.CreateAttendance)
	staff.POST("/from-appointment/:appointmentId", h.CreateFromAppointment)
	staff.GET("", h.ListAttendances)
	staff.GET("/:id", h.GetAttendance)
	staff.PUT("/:id", h.UpdateAttendance)
	staff.PUT("/:id/status", h.UpdateStatus)
	staff.DELETE("/:id", h.DeleteAttendance)

	staff.GET("/:id/responses", h.ListResponses)
	staff.POST("/:id/responses/:responseId", h.LinkResponse)
	staff.DELETE("/:id/responses/:responseId", h.UnlinkResponse)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) CreateAttendance(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CreateAttendance(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) CreateFromAppointment(c echo.Context) error {
	id, err := parseID(c, "appointmentId")
	if err != nil {
		return err
	}
	a, err := h.svc.CreateFromAppointment(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAttendance(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAttendance(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAttendance(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAttendance(c.Request().Context(), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), id, body.Status)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAttendance(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAttendance(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAttendances(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListAttendances(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p))
}

func (h *Handler) ListResponses(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListResponses(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*LinkedResponse{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) LinkResponse(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	responseID, err := parseID(c, "responseId")
	if err != nil {
		return err
	}
	if err := h.svc.LinkResponse(c.Request().Context(), id, responseID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UnlinkResponse(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	responseID, err := parseID(c, "responseId")
	if err != nil {
		return err
	}
	if err := h.svc.UnlinkResponse(c.Request().Context(), id, responseID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseFilter(c echo.Context) (ListFilter, error) {
	f := ListFilter{
		PatientName:   c.QueryParam("patient_name"),
		CaregiverName: c.QueryParam("caregiver_name"),
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Status = &st
	}
	if v := c.QueryParam("appointment_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid appointment_id")
		}
		f.AppointmentID = &id
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if v := c.QueryParam(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC 3339 timestamp")
			}
			*dst = &t
		}
	}
	return f, nil
}
