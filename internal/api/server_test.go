package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"magnate/internal/config"
)

func testServer() *Server {
	return New(config.ServiceConfig{RequestTimeout: time.Second}, nil, nil)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestMalformedIDsRejectedBeforeDispatch(t *testing.T) {
	paths := []string{
		"/v1/companies/not-a-uuid",
		"/v1/companies/not-a-uuid/prices",
		"/v1/accounts/not-a-uuid/balance",
		"/v1/accounts/not-a-uuid/ledger",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		testServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d, want 400", path, rec.Code)
		}
	}
}
