package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	testRoute = "/groups/:slug/deposits"
	testPath  = "/groups/arisan/deposits"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(IdempotencyMiddleware(rdb, ttl))
	e.POST(testRoute, handler)
	e.GET(testRoute, handler)
	return e
}

func created(c echo.Context) error {
	return c.JSON(http.StatusCreated, map[string]any{"ok": true})
}

func serve(t *testing.T, e *echo.Echo, method string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, testPath, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func validHeaders() map[string]string {
	return map[string]string{
		"X-Request-Id": strings.Repeat("a", 32),
		"X-Request-At": time.Now().UTC().Format(time.RFC3339),
		"X-User-ID":    "42",
	}
}

func TestIdempotency_ReadsBypassTheLayer(t *testing.T) {
	e := newTestEcho(newTestRedis(t), time.Minute, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	// no headers at all
	if rec := serve(t, e, http.MethodGet, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("GET without headers: want 200, got %d", rec.Code)
	}
}

func TestIdempotency_HeaderValidation(t *testing.T) {
	e := newTestEcho(newTestRedis(t), time.Minute, created)

	cases := []struct {
		name   string
		mutate func(h map[string]string)
	}{
		{"missing request id", func(h map[string]string) { delete(h, "X-Request-Id") }},
		{"malformed request id", func(h map[string]string) { h["X-Request-Id"] = "NOT-VALID" }},
		{"garbage timestamp", func(h map[string]string) { h["X-Request-At"] = "not-a-time" }},
		{"naive timestamp", func(h map[string]string) { h["X-Request-At"] = "2026-03-05T10:00:00" }},
		{"skewed timestamp", func(h map[string]string) {
			h["X-Request-At"] = time.Now().UTC().Add(-maxClockSkew - time.Minute).Format(time.RFC3339)
		}},
		{"missing user id", func(h map[string]string) { delete(h, "X-User-ID") }},
		{"non-numeric user id", func(h map[string]string) { h["X-User-ID"] = "zero" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := validHeaders()
			tc.mutate(h)
			rec := serve(t, e, http.MethodPost, bytes.NewReader([]byte(`{"amount":1}`)), h)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestIdempotency_ReplayReturnsStoredResponse(t *testing.T) {
	e := newTestEcho(newTestRedis(t), 2*time.Minute, created)
	h := validHeaders()
	body := []byte(`{"amount":250}`)

	first := serve(t, e, http.MethodPost, bytes.NewReader(body), h)
	if first.Code != http.StatusCreated {
		t.Fatalf("first request: want 201, got %d (%s)", first.Code, first.Body.String())
	}
	replay := serve(t, e, http.MethodPost, bytes.NewReader(body), h)
	if replay.Code != http.StatusCreated {
		t.Fatalf("replay: want 201, got %d (%s)", replay.Code, replay.Body.String())
	}
	if first.Body.String() != replay.Body.String() {
		t.Fatalf("replay body %q differs from original %q", replay.Body.String(), first.Body.String())
	}
}

func TestIdempotency_InProgressDuplicateConflicts(t *testing.T) {
	rdb := newTestRedis(t)
	e := newTestEcho(rdb, 2*time.Minute, created)
	h := validHeaders()
	body := []byte(`{"amount":1}`)

	// Simulate a first arrival that has not finished yet.
	key := storeKey(http.MethodPost, testRoute, h["X-User-ID"], h["X-Request-Id"])
	ok, err := acquire(context.Background(), rdb, key, record{
		InProgress: true,
		BodyHash:   hashBody(body),
		RequestID:  h["X-Request-Id"],
	})
	if err != nil || !ok {
		t.Fatalf("seed lock: ok=%v err=%v", ok, err)
	}

	rec := serve(t, e, http.MethodPost, bytes.NewReader(body), h)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate while in progress: want 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestIdempotency_ReusedIDWithDifferentBodyConflicts(t *testing.T) {
	rdb := newTestRedis(t)
	e := newTestEcho(rdb, 2*time.Minute, created)
	h := validHeaders()

	key := storeKey(http.MethodPost, testRoute, h["X-User-ID"], h["X-Request-Id"])
	err := persist(context.Background(), rdb, key, record{
		Code:      http.StatusCreated,
		Body:      []byte(`{"ok":true}`),
		BodyHash:  hashBody([]byte(`{"amount":1}`)),
		RequestID: h["X-Request-Id"],
	}, 5*time.Minute)
	if err != nil {
		t.Fatalf("seed final record: %v", err)
	}

	rec := serve(t, e, http.MethodPost, bytes.NewReader([]byte(`{"amount":2}`)), h)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reused id with new body: want 409, got %d", rec.Code)
	}
}

func TestIdempotency_StoreDownFailsClosed(t *testing.T) {
	// Nothing listens here, so the lock attempt errors immediately.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	e := newTestEcho(rdb, time.Minute, created)

	rec := serve(t, e, http.MethodPost, bytes.NewReader([]byte(`{}`)), validHeaders())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store down: want 503, got %d", rec.Code)
	}
}
