// Package middleware holds the HTTP middleware in front of the handlers.
// Every money-moving endpoint sits behind the idempotency layer so a retried
// POST replays the stored response instead of moving funds twice.
package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const (
	// lockTTL bounds how long an in-progress marker may block retries if the
	// process dies before writing the final response.
	lockTTL = 60 * time.Second
	// maxClockSkew is the tolerated drift on X-Request-At, both directions.
	maxClockSkew = 10 * time.Minute
)

// captureWriter tees the response body so it can be stored for replay.
type captureWriter struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Idempotency keys each mutating request by method, route, user and
// X-Request-Id. The first arrival takes an in-progress lock; a duplicate with
// the same body either replays the finished response or gets a 409 while the
// original is still running. X-Request-At must be epoch seconds/millis or
// RFC3339 with an explicit zone, within maxClockSkew of server time.
func IdempotencyMiddleware(rdb *redis.Client, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			reqID := strings.TrimSpace(req.Header.Get("X-Request-Id"))
			if reqID == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing X-Request-Id"})
			}
			if !validRequestID(reqID) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid X-Request-Id format"})
			}

			reqAt, err := parseRequestAt(req.Header.Get("X-Request-At"))
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			now := time.Now().UTC()
			if reqAt.Before(now.Add(-maxClockSkew)) || reqAt.After(now.Add(maxClockSkew)) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "X-Request-At too skewed"})
			}

			userID := strings.TrimSpace(req.Header.Get("X-User-ID"))
			if userID == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing X-User-ID"})
			}
			if n, perr := strconv.ParseUint(userID, 10, 64); perr != nil || n == 0 {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid X-User-ID"})
			}

			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
			bhash := hashBody(body)

			key := storeKey(req.Method, c.Path(), userID, reqID)
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()

			locked, err := acquire(ctx, rdb, key, record{
				InProgress: true,
				BodyHash:   bhash,
				RequestID:  reqID,
				RequestAt:  reqAt.UnixMilli(),
				StoredAt:   now,
			})
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "idempotency store unavailable"})
			}
			if !locked {
				prior, lerr := fetch(ctx, rdb, key)
				if lerr != nil {
					slog.Warn("idempotency record load failed", "key", key, "error", lerr)
				}
				if prior.BodyHash != "" && prior.BodyHash != bhash {
					return c.JSON(http.StatusConflict, map[string]string{"error": "X-Request-Id reused with different body"})
				}
				if prior.Replayable() {
					return c.Blob(prior.Code, echo.MIMEApplicationJSON, prior.Body)
				}
				return c.JSON(http.StatusConflict, map[string]string{"error": "request is already in progress"})
			}

			w := &captureWriter{ResponseWriter: c.Response().Writer, code: http.StatusOK}
			c.Response().Writer = w
			if err := next(c); err != nil {
				c.Error(err)
			}

			// Fresh context: the request's own context may already be done.
			_ = persist(context.Background(), rdb, key, record{
				Code:      w.code,
				Body:      w.buf.Bytes(),
				BodyHash:  bhash,
				RequestID: reqID,
				RequestAt: reqAt.UnixMilli(),
				StoredAt:  time.Now().UTC(),
			}, ttl)
			return nil
		}
	}
}
