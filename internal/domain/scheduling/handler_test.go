package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthdesk/triage/internal/domain/identity"
)

func bookBody(patient, caregiver uuid.UUID, at time.Time) string {
	return `{"patient_id":"` + patient.String() + `","caregiver_id":"` + caregiver.String() +
		`","scheduled_at":"` + at.Format(time.RFC3339) + `"}`
}

func postJSON(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_BookAppointment(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	doc := f.users.add(identity.UserTypePhysician)
	patient := f.users.add(identity.UserTypePatient)
	slot := fixedNow.Add(time.Hour)

	c, rec := postJSON(e, bookBody(patient, doc, slot))
	if err := h.BookAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["physician_id"] != doc.String() || body["status"] != "pending" {
		t.Errorf("unexpected body: %v", body)
	}

	c, _ = postJSON(e, bookBody(patient, doc, slot))
	he, ok := h.BookAppointment(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 for the same slot, got %v", he)
	}
}

func TestHandler_GetAppointment_Errors(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	for id, code := range map[string]int{"x": http.StatusBadRequest, uuid.NewString(): http.StatusNotFound} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(id)
		he, ok := h.GetAppointment(c).(*echo.HTTPError)
		if !ok || he.Code != code {
			t.Errorf("id %s: expected %d, got %v", id, code, he)
		}
	}
}

func TestHandler_ListReferrals(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	pro := f.users.add(identity.UserTypeProfessional)
	patient := f.users.add(identity.UserTypePatient)
	c, _ := postJSON(e, bookBody(patient, pro, fixedNow.Add(time.Hour)))
	if err := h.BookAppointment(c); err != nil {
		t.Fatalf("book: %v", err)
	}

	rec := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?caregiver_id="+pro.String()+"&status=pending", nil), rec)
	if err := h.ListReferrals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil || page.Total != 1 {
		t.Errorf("expected 1 referral, got %s", rec.Body.String())
	}

	for _, q := range []string{"/?status=lost", "/?patient_id=abc", "/?from=monday"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, q, nil), httptest.NewRecorder())
		he, ok := h.ListAppointments(c).(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, he)
		}
	}
}
