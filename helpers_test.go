package authshield_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authshield"
	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPassword = "Correct-Horse9"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// plainHasher stores passwords behind a fixed prefix and counts Verify calls.
type plainHasher struct {
	verifies atomic.Int64
}

func (h *plainHasher) Hash(pw string) (string, error) {
	return "plain$" + pw, nil
}

func (h *plainHasher) Verify(pw, encoded string) (bool, error) {
	h.verifies.Add(1)
	return encoded == "plain$"+pw, nil
}

func (h *plainHasher) NeedsUpgrade(string) (bool, error) {
	return false, nil
}

type sentMail struct {
	Kind  string
	To    string
	Token string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) record(kind, to, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{Kind: kind, To: to, Token: token})
	return nil
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, to, _, token string, _ time.Time) error {
	return n.record("verification", to, token)
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, to, _, token string, _ time.Time) error {
	return n.record("reset", to, token)
}

func (n *recordingNotifier) SendLockoutNotification(_ context.Context, to, _ string, _ time.Time, _ time.Duration) error {
	return n.record("lockout", to, "")
}

func (n *recordingNotifier) SendPasswordChangedNotification(_ context.Context, to, _ string, _ time.Time) error {
	return n.record("password_changed", to, "")
}

func (n *recordingNotifier) byKind(kind string) []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMail
	for _, m := range n.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (n *recordingNotifier) last(t *testing.T, kind string) sentMail {
	t.Helper()
	mails := n.byKind(kind)
	require.NotEmpty(t, mails, "no %s mail sent", kind)
	return mails[len(mails)-1]
}

type harness struct {
	engine   *authshield.Engine
	users    *memory.Users
	events   *memory.Events
	notifier *recordingNotifier
	hasher   *plainHasher
	clock    *fakeClock
	mr       *miniredis.Miniredis
}

// relaxedLimits raises every profile so tests exercising other behavior
// never trip a limiter.
func relaxedLimits(cfg *authshield.Config) {
	profiles := ratelimit.DefaultProfiles()
	for p, c := range profiles {
		c.MaxRequests = 1000
		profiles[p] = c
	}
	cfg.RateLimit.Profiles = profiles
}

func newHarness(t *testing.T, mutate ...func(*authshield.Config)) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authshield.DefaultConfig()
	cfg.Session.SigningKey = []byte(strings.Repeat("k", 32))
	relaxedLimits(&cfg)
	for _, fn := range mutate {
		fn(&cfg)
	}

	h := &harness{
		users:    memory.NewUsers(),
		events:   memory.NewEvents(),
		notifier: &recordingNotifier{},
		hasher:   &plainHasher{},
		clock:    newFakeClock(),
		mr:       mr,
	}
	engine, err := authshield.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(h.users).
		WithEventLog(h.events).
		WithNotifier(h.notifier).
		WithPasswordHasher(h.hasher).
		WithClock(h.clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) seedUser(t *testing.T, id, email string, verified bool, mutate ...func(*authshield.UserAccount)) *authshield.UserAccount {
	t.Helper()
	now := h.clock.Now()
	u := &authshield.UserAccount{
		ID:           id,
		Email:        email,
		Name:         "Test User",
		PasswordHash: "plain$" + testPassword,
		Role:         authshield.RoleUser,
		CreatedAt:    now.Add(-24 * time.Hour),
		UpdatedAt:    now,
	}
	if verified {
		at := now.Add(-time.Hour)
		u.EmailVerifiedAt = &at
	}
	for _, fn := range mutate {
		fn(u)
	}
	h.users.Put(u)
	return u
}

func (h *harness) user(t *testing.T, id string) *authshield.UserAccount {
	t.Helper()
	u, err := h.users.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func ipCtx(ip string) context.Context {
	return authshield.WithUserAgent(authshield.WithClientIP(context.Background(), ip), "test-agent")
}

func requireCode(t *testing.T, err error, code authshield.Code) *authshield.Error {
	t.Helper()
	require.Error(t, err)
	ae, ok := authshield.AsError(err)
	require.True(t, ok, "expected *authshield.Error, got %T: %v", err, err)
	require.Equal(t, code, ae.Code, ae.Message)
	return ae
}

func newRedisClient(t *testing.T, h *harness) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: h.mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
