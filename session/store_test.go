package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(rdb, "as"), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func testSession(id, uid string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		UserID:    uid,
		Email:     uid + "@example.com",
		Role:      "user",
		IP:        "203.0.113.5",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestCreateGetDelete(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-1", "u-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ttl := mr.TTL("as:sid-1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u-1" || got.Email != "u-1@example.com" {
		t.Fatalf("unexpected session %+v", got)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("index should be empty, got %v", ids)
	}
}

func TestGetExpiredSessionIsRemoved(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-2", "u-2")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	later := store.WithClock(func() time.Time { return sess.ExpiresAt.Add(time.Second) })
	if _, err := later.Get(ctx, "sid-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("as:sid-2") {
		t.Fatal("expired session should be deleted")
	}
}

func TestDeleteAllForUserKeepsExcept(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, testSession(id, "u-3")); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Create(ctx, testSession("other", "u-4")); err != nil {
		t.Fatal(err)
	}

	n, err := store.DeleteAllForUser(ctx, "u-3", "b")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, err := store.Get(ctx, "b"); err != nil {
		t.Fatalf("excepted session must survive: %v", err)
	}
	if _, err := store.Get(ctx, "other"); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}

	n, err = store.DeleteAllForUser(ctx, "u-3", "")
	if err != nil || n != 1 {
		t.Fatalf("expected final session removed, got %d %v", n, err)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()

	if err := store.Create(context.Background(), &Session{ID: "x"}); err == nil {
		t.Fatal("missing user id must be rejected")
	}
	expired := testSession("y", "u")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Create(context.Background(), expired); err == nil {
		t.Fatal("expired session must be rejected")
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	store := NewStore(rdb, "")
	if _, err := store.Get(context.Background(), "sid"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestSignerRoundTrip(t *testing.T) {
	key := []byte(strings.Repeat("k", 32))
	signer, err := NewSigner(SignerConfig{Key: key, Issuer: "authshield"})
	if err != nil {
		t.Fatal(err)
	}

	sess := testSession("sid-9", "u-9")
	handle, err := signer.Sign(sess)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := signer.Parse(handle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SID != "sid-9" || claims.UID != "u-9" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := signer.Parse(handle + "x"); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("tampered handle must fail, got %v", err)
	}

	other, _ := NewSigner(SignerConfig{Key: []byte(strings.Repeat("z", 32)), Issuer: "authshield"})
	if _, err := other.Parse(handle); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("foreign key must fail, got %v", err)
	}

	late := signer.WithClock(func() time.Time { return sess.ExpiresAt.Add(time.Minute) })
	if _, err := late.Parse(handle); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expired handle must fail, got %v", err)
	}
}

func TestNewSignerRejectsShortKey(t *testing.T) {
	if _, err := NewSigner(SignerConfig{Key: []byte("short")}); err == nil {
		t.Fatal("expected short key error")
	}
}
