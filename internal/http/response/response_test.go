package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandeepkv93/crudguard/internal/service"
)

type decoded struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func writeErr(t *testing.T, err error) (*httptest.ResponseRecorder, decoded) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	rr := httptest.NewRecorder()
	FromError(rr, req, err)
	var body decoded
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rr, body
}

func TestFromErrorMapsAuthError(t *testing.T) {
	ae := service.Forbidden(service.CodeForbidden, "nope")
	ae.Data = map[string]any{"field": "user.email"}
	rr, body := writeErr(t, fmt.Errorf("wrapped: %w", ae))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d", rr.Code)
	}
	if body.Success || body.Error.Code != service.CodeForbidden || body.Error.Data["field"] != "user.email" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Meta.RequestID != "rid-1" {
		t.Fatalf("request id=%q", body.Meta.RequestID)
	}
	if rr.Header().Get("Retry-After") != "" {
		t.Fatal("403 must not carry Retry-After")
	}
}

func TestFromErrorSetsRetryAfter(t *testing.T) {
	rr, _ := writeErr(t, service.TooManyRequests(service.CodeIPTimedOut, "slow down", 1500*time.Millisecond))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "2" {
		t.Fatalf("status=%d retry-after=%q", rr.Code, rr.Header().Get("Retry-After"))
	}
	rr, _ = writeErr(t, service.TooManyRequests(service.CodeIPTimedOut, "slow down", 100*time.Millisecond))
	if rr.Header().Get("Retry-After") != "1" {
		t.Fatalf("retry-after=%q want 1", rr.Header().Get("Retry-After"))
	}
}

func TestFromErrorHidesInternalErrors(t *testing.T) {
	rr, body := writeErr(t, errors.New("db exploded"))
	if rr.Code != http.StatusInternalServerError || body.Error.Code != "INTERNAL_ERROR" {
		t.Fatalf("status=%d body=%+v", rr.Code, body)
	}
	if body.Error.Message == "db exploded" {
		t.Fatal("internal error message leaked")
	}
}
