package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

func TestExtractResourceType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/prescriptions", "prescriptions"},
		{"/api/v1/prescriptions/abc-123", "prescriptions"},
		{"/api/v1/carts/abc/items", "carts"},
		{"/api/v1/", "unknown"},
	}
	for _, tt := range tests {
		if got := extractResourceType(tt.path); got != tt.want {
			t.Errorf("extractResourceType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestExtractPatientID_FromPath(t *testing.T) {
	e := echo.New()
	id := "a6f1b6f0-9e9e-4d4b-9c43-000000000001"
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+id, nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if got := extractPatientID(c); got != id {
		t.Errorf("extractPatientID = %q, want %q", got, id)
	}
}

func TestExtractPatientID_FromQueryParam(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/prescriptions?patient_id=pat-9", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if got := extractPatientID(c); got != "pat-9" {
		t.Errorf("extractPatientID = %q, want pat-9", got)
	}
}

func TestAudit_InvokesRecorder(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts", nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "user-1")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"pharmacist"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-1")

	var recorded *AuditEntry
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		recorded = &entry
		return nil
	})

	handler := Audit(logger, recorder)(func(c echo.Context) error {
		return c.String(http.StatusCreated, "created")
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recorded == nil {
		t.Fatal("expected recorder to be invoked")
	}
	if recorded.UserID != "user-1" {
		t.Errorf("UserID = %q", recorded.UserID)
	}
	if recorded.ResourceType != "carts" {
		t.Errorf("ResourceType = %q", recorded.ResourceType)
	}
	if recorded.Action != "create" {
		t.Errorf("Action = %q", recorded.Action)
	}
	if recorded.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d", recorded.StatusCode)
	}
	if recorded.RequestID != "req-1" {
		t.Errorf("RequestID = %q", recorded.RequestID)
	}
}

func TestAudit_SkipsNonAPIRoutes(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	recorded := false
	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		recorded = true
		return nil
	})

	handler := Audit(logger, recorder)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded {
		t.Error("expected health endpoint to be excluded from auditing")
	}
}

func TestAudit_RecorderErrorDoesNotFailRequest(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/medications", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	recorder := AuditRecorderFunc(func(entry AuditEntry) error {
		return errors.New("db down")
	})

	handler := Audit(logger, recorder)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHTTPMethodToAction(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{http.MethodGet, "read"},
		{http.MethodHead, "read"},
		{http.MethodPost, "create"},
		{http.MethodPut, "update"},
		{http.MethodPatch, "update"},
		{http.MethodDelete, "delete"},
		{http.MethodOptions, "read"},
	}
	for _, tt := range tests {
		if got := httpMethodToAction(tt.method); got != tt.want {
			t.Errorf("httpMethodToAction(%q) = %q, want %q", tt.method, got, tt.want)
		}
	}
}
