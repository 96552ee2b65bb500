package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// record is what one idempotency key holds in Redis: first the in-progress
// lock, then the finished response for replay.
type record struct {
	InProgress bool      `json:"in_progress"`
	Code       int       `json:"code"`
	Body       []byte    `json:"body"`
	BodyHash   string    `json:"body_hash"`
	RequestID  string    `json:"request_id"`
	RequestAt  int64     `json:"request_at_ms"`
	StoredAt   time.Time `json:"stored_at"`
}

// Replayable reports whether the record holds a finished response.
func (r record) Replayable() bool {
	return !r.InProgress && r.Code != 0 && len(r.Body) > 0
}

func hashBody(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

func storeKey(method, route, userID, requestID string) string {
	return "idemp:coop:" + strings.ToLower(method) + ":" + route + ":" + userID + ":" + requestID
}

var (
	reUUID  = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[1-5][a-f0-9]{3}-[89ab][a-f0-9]{3}-[a-f0-9]{12}$`)
	reHex32 = regexp.MustCompile(`^[a-f0-9]{32}$`)
)

// validRequestID accepts a UUID or 32 hex characters, case-insensitive.
func validRequestID(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	return reUUID.MatchString(id) || reHex32.MatchString(id)
}

// parseRequestAt reads X-Request-At as epoch seconds, epoch milliseconds, or
// RFC3339 with an explicit zone. Naive timestamps without a zone are refused
// since there is no way to compare them against server time.
func parseRequestAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("missing X-Request-At")
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("X-Request-At must be epoch (s/ms) or RFC3339 with timezone")
}

// acquire takes the in-progress lock; false means the key already exists.
func acquire(ctx context.Context, rdb *redis.Client, key string, rec record) (bool, error) {
	payload, _ := json.Marshal(rec)
	return rdb.SetNX(ctx, key, payload, lockTTL).Result()
}

func fetch(ctx context.Context, rdb *redis.Client, key string) (record, error) {
	var rec record
	v, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return rec, err
	}
	_ = json.Unmarshal(v, &rec)
	return rec, nil
}

// persist overwrites the lock with the finished response.
func persist(ctx context.Context, rdb *redis.Client, key string, rec record, ttl time.Duration) error {
	payload, _ := json.Marshal(rec)
	return rdb.Set(ctx, key, payload, ttl).Err()
}
