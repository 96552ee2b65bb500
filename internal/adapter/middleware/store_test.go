package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestHashBody(t *testing.T) {
	data := []byte("hello world")
	sum := sha256.Sum256(data)
	if got, want := hashBody(data), hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("hashBody = %s, want %s", got, want)
	}
}

func TestStoreKey(t *testing.T) {
	k := storeKey("POST", testRoute, "42", strings.Repeat("a", 32))
	if !strings.HasPrefix(k, "idemp:coop:post:"+testRoute+":") {
		t.Fatalf("key prefix wrong: %q", k)
	}
	if !strings.Contains(k, ":42:") || !strings.HasSuffix(k, strings.Repeat("a", 32)) {
		t.Fatalf("key missing user or request segment: %q", k)
	}
}

func TestValidRequestID(t *testing.T) {
	accept := []string{
		"3f9a6a1b-3d54-4fbe-8b3a-6b3e8d6b2c88",
		"3F9A6A1B-3D54-4FBE-8B3A-6B3E8D6B2C88",
		strings.Repeat("a", 32),
	}
	for _, s := range accept {
		if !validRequestID(s) {
			t.Fatalf("should accept %q", s)
		}
	}
	reject := []string{
		"",
		strings.Repeat("a", 31),
		strings.Repeat("a", 33),
		strings.Repeat("z", 32),
		"3f9a6a1b-3d54-9fbe-8b3a-6b3e8d6b2c88", // version nibble out of range
	}
	for _, s := range reject {
		if validRequestID(s) {
			t.Fatalf("should reject %q", s)
		}
	}
}

func TestParseRequestAt(t *testing.T) {
	sec := time.Now().UTC().Unix()
	if ts, err := parseRequestAt(strconv.FormatInt(sec, 10)); err != nil || !ts.Equal(time.Unix(sec, 0).UTC()) {
		t.Fatalf("epoch seconds: ts=%v err=%v", ts, err)
	}
	ms := time.Now().UTC().UnixMilli()
	if ts, err := parseRequestAt(strconv.FormatInt(ms, 10)); err != nil || !ts.Equal(time.UnixMilli(ms).UTC()) {
		t.Fatalf("epoch millis: ts=%v err=%v", ts, err)
	}

	ts, err := parseRequestAt("2026-03-05T10:00:00+07:00")
	if err != nil {
		t.Fatalf("rfc3339 with zone: %v", err)
	}
	if want := time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC); !ts.Equal(want) {
		t.Fatalf("zone conversion: got %v, want %v", ts, want)
	}

	for _, raw := range []string{"", "not-a-time", "2026-03-05T10:00:00", "1736123456abc"} {
		if _, err := parseRequestAt(raw); err == nil {
			t.Fatalf("should reject %q", raw)
		}
	}
}

func TestAcquireFetchPersist(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	key := storeKey("POST", testRoute, "42", strings.Repeat("a", 32))

	rec := record{InProgress: true, BodyHash: hashBody([]byte(`{"amount":100}`)), RequestID: strings.Repeat("a", 32)}
	ok, err := acquire(ctx, rdb, key, rec)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ttl := rdb.TTL(ctx, key).Val(); ttl <= 0 || ttl > lockTTL {
		t.Fatalf("lock TTL %v out of range", ttl)
	}
	if ok, err = acquire(ctx, rdb, key, rec); err != nil || ok {
		t.Fatalf("second acquire should lose: ok=%v err=%v", ok, err)
	}

	got, err := fetch(ctx, rdb, key)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !got.InProgress || got.BodyHash != rec.BodyHash || got.Replayable() {
		t.Fatalf("fetched lock record %+v", got)
	}

	final := record{Code: 201, Body: []byte(`{"ok":true}`), BodyHash: rec.BodyHash}
	if err := persist(ctx, rdb, key, final, 5*time.Second); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if ttl := rdb.TTL(ctx, key).Val(); ttl <= 0 || ttl > 5*time.Second {
		t.Fatalf("final TTL %v out of range", ttl)
	}
	got, err = fetch(ctx, rdb, key)
	if err != nil {
		t.Fatalf("fetch after persist: %v", err)
	}
	if !got.Replayable() || got.Code != 201 || string(got.Body) != `{"ok":true}` {
		t.Fatalf("final record %+v", got)
	}
}
