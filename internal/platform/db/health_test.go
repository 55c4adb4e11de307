package db

import (
	"errors"
	"net/http"
	"testing"
)

func TestBuildHealthReport_Healthy(t *testing.T) {
	stats := &PoolStats{TotalConns: 4, IdleConns: 2, MaxConns: 10, Healthy: true}

	code, report := buildHealthReport(nil, stats)
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if report.Status != "healthy" || report.Error != "" {
		t.Errorf("unexpected report: %+v", report)
	}
	if !report.Pool.Healthy {
		t.Error("expected pool reported healthy")
	}
}

func TestBuildHealthReport_PingFailure(t *testing.T) {
	stats := &PoolStats{TotalConns: 4, Healthy: true}

	code, report := buildHealthReport(errors.New("connection refused"), stats)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if report.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %s", report.Status)
	}
	if report.Error != "connection refused" {
		t.Errorf("expected the ping error surfaced, got %q", report.Error)
	}
	if report.Pool.Healthy {
		t.Error("a failed ping must mark the pool unhealthy")
	}
}
