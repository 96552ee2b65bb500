package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"coopfund-backend/internal/domain/fault"
)

func newEchoCtx(headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestActorID(t *testing.T) {
	c, _ := newEchoCtx(map[string]string{userIDHeader: "42"})
	id, err := actorID(c)
	if err != nil || id != 42 {
		t.Fatalf("id=%d err=%v", id, err)
	}

	for name, header := range map[string]map[string]string{
		"missing": nil,
		"garbage": {userIDHeader: "abc"},
		"zero":    {userIDHeader: "0"},
	} {
		c, _ := newEchoCtx(header)
		_, err := actorID(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusUnauthorized {
			t.Fatalf("%s header: got %v, want 401", name, err)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[fault.Kind]int{
		fault.Validation:      http.StatusBadRequest,
		fault.Authorization:   http.StatusForbidden,
		fault.InvalidState:    http.StatusConflict,
		fault.NotFound:        http.StatusNotFound,
		fault.ExternalNetwork: http.StatusBadGateway,
		fault.Consistency:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(fault.New(kind, "x")); got != want {
			t.Fatalf("kind %v mapped to %d, want %d", kind, got, want)
		}
	}
	if got := statusFor(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("plain error mapped to %d", got)
	}
}

func TestWriteErr_MasksInternalDetails(t *testing.T) {
	c, rec := newEchoCtx(nil)
	if err := writeErr(c, errors.New("pq: connection refused")); err != nil {
		t.Fatalf("writeErr: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.Error != "internal error" {
		t.Fatalf("internal detail leaked: %q", body.Error)
	}
}

func TestWriteErr_KeepsFaultMessages(t *testing.T) {
	c, rec := newEchoCtx(nil)
	if err := writeErr(c, fault.New(fault.Validation, "amount must be positive")); err != nil {
		t.Fatalf("writeErr: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.Error == "" || body.Error == "internal error" {
		t.Fatalf("fault message lost: %q", body.Error)
	}
}
