package authshield

import (
	"crypto/rand"
	"errors"
	"time"

	"github.com/MrEthical07/authshield/internal/lockout"
	"github.com/MrEthical07/authshield/password"
	"github.com/MrEthical07/authshield/ratelimit"
	"github.com/MrEthical07/authshield/session"
	"github.com/MrEthical07/authshield/token"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder may be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserStore
	notifier Notifier
	eventLog EventLog
	hasher   password.Hasher
	logger   *zap.Logger
	clock    func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store used for rate limits and sessions.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the user record store. Required.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithNotifier sets the outbound email collaborator.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithEventLog sets the security event log. Without one, events are
// discarded.
func (b *Builder) WithEventLog(log EventLog) *Builder {
	b.eventLog = log
	return b
}

// WithPasswordHasher overrides the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithLogger sets the operational logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source of every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	hasher := b.hasher
	if hasher == nil {
		argon, err := password.NewArgon2(cfg.Password.Argon2)
		if err != nil {
			return nil, err
		}
		hasher = argon
		if cfg.Password.AcceptBcrypt {
			hasher = password.NewMigrating(argon)
		}
	}

	if len(cfg.Session.SigningKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		cfg.Session.SigningKey = key
		logger.Warn("session signing key not configured, using an ephemeral key")
	}
	signer, err := session.NewSigner(session.SignerConfig{
		Key:    cfg.Session.SigningKey,
		Issuer: cfg.Session.Issuer,
	})
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)

	engine := &Engine{
		config:   cfg,
		users:    b.users,
		tokens:   token.NewService(b.users, cfg.Tokens, token.WithClock(now)),
		lockout:  lockout.NewPolicy(cfg.Lockout.policy()),
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix).WithClock(now),
		signer:   signer.WithClock(now),
		hasher:   hasher,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      now,
	}
	if cfg.RateLimit.Enabled {
		engine.limiters = ratelimit.NewRegistry(b.redis, cfg.RateLimit.Profiles,
			ratelimit.WithLogger(logger),
			ratelimit.WithClock(now),
			ratelimit.WithFailOpenHook(func(string) { metrics.Inc(MetricRateLimitFailOpen) }),
		).WithCustomLimits(cfg.RateLimit.Custom)
	}
	engine.events = newEventDispatcher(cfg.Events, b.eventLog, logger, metrics)

	b.built = true
	return engine, nil
}
