package medication

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func TestHandler_CreateMedication(t *testing.T) {
	h, e := newTestHandler()

	body := `{"name":"Paracetamol","generic_name":"paracetamol","dosage_form":"tablet","unit_price":5000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/medications", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateMedication(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var m Medication
	json.Unmarshal(rec.Body.Bytes(), &m)
	if m.Name != "Paracetamol" {
		t.Errorf("expected 'Paracetamol', got %s", m.Name)
	}
}

func TestHandler_CreateMedication_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	body := `{"unit_price":5000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/medications", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.CreateMedication(c)
	if err == nil {
		t.Error("expected error for missing name")
	}
}

func TestHandler_GetMedication(t *testing.T) {
	h, e := newTestHandler()

	m := &Medication{Name: "Aspirin", UnitPrice: 3000}
	h.svc.CreateMedication(context.Background(), m)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(m.ID.String())

	err := h.GetMedication(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetMedication_InvalidID(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetMedication(c)
	if err == nil {
		t.Fatal("expected error for invalid id")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListAlternatives(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()

	branded := &Medication{Name: "Panadol", GenericName: "paracetamol", UnitPrice: 12000}
	generic := &Medication{Name: "Paracetamol", GenericName: "paracetamol", UnitPrice: 5000}
	h.svc.CreateMedication(ctx, branded)
	h.svc.CreateMedication(ctx, generic)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(branded.ID.String())

	err := h.ListAlternatives(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var alts []*Medication
	json.Unmarshal(rec.Body.Bytes(), &alts)
	if len(alts) != 1 {
		t.Errorf("expected 1 alternative, got %d", len(alts))
	}
}
