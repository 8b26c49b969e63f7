package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func readinessWith(t *testing.T, db, lock error) (ReadinessResponse, int) {
	t.Helper()

	h := &HealthHandler{
		db:      fakePinger{err: db},
		lock:    fakePinger{err: lock},
		env:     "test",
		version: "0.0.0",
	}

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.Readiness(rec, req)

	var resp ReadinessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode readiness response: %v", err)
	}
	return resp, rec.Code
}

func TestReadinessAllHealthy(t *testing.T) {
	resp, code := readinessWith(t, nil, nil)

	if code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", code)
	}
	if resp.Status != "ok" || resp.Booking != bookingAccepting {
		t.Errorf("status=%s booking=%s, want ok/accepting", resp.Status, resp.Booking)
	}
	if resp.Checks["database"] != "ok" || resp.Checks["lock_service"] != "ok" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestReadinessLockServiceDownSuspendsBooking(t *testing.T) {
	resp, code := readinessWith(t, nil, errors.New("redis down"))

	if code != http.StatusOK {
		t.Fatalf("status code = %d, want 200 while degraded", code)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %s, want degraded", resp.Status)
	}
	if resp.Booking != bookingSuspended {
		t.Errorf("booking = %s, want suspended while the lock service is down", resp.Booking)
	}
	if resp.Checks["lock_service"] != "down" {
		t.Errorf("checks = %v", resp.Checks)
	}
}

func TestReadinessDatabaseDownIsError(t *testing.T) {
	resp, code := readinessWith(t, errors.New("pg down"), nil)

	if code != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d, want 503", code)
	}
	if resp.Status != "error" || resp.Booking != bookingSuspended {
		t.Errorf("status=%s booking=%s, want error/suspended", resp.Status, resp.Booking)
	}
}

func TestLiveness(t *testing.T) {
	h := &HealthHandler{env: "test", version: "0.0.0"}
	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp LivenessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
}
