package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrStoreUnavailable wraps Redis failures on administrative calls.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// Config holds the window parameters of one limiter.
type Config struct {
	Prefix      string
	Window      time.Duration
	MaxRequests int
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Prefix == "" {
		return errors.New("RateLimit Prefix is required")
	}
	if c.Window < time.Second {
		return errors.New("RateLimit Window must be >= 1s")
	}
	if c.MaxRequests <= 0 {
		return errors.New("RateLimit MaxRequests must be > 0")
	}
	return nil
}

// Result is the admission decision for one request.
type Result struct {
	Success    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter int
}

// IdentifierFunc derives the limiter identifier from a request.
type IdentifierFunc func(*http.Request) string

// Option customizes a [Limiter].
type Option func(*Limiter)

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source used for member scores.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIdentifier overrides the default client-IP identifier extraction.
func WithIdentifier(fn IdentifierFunc) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.identify = fn
		}
	}
}

// WithFailOpenHook registers a callback invoked whenever a check fails open.
func WithFailOpenHook(fn func(prefix string)) Option {
	return func(l *Limiter) {
		l.onFailOpen = fn
	}
}

// Limiter is a sliding-window limiter for one key namespace.
type Limiter struct {
	redis      redis.UniversalClient
	config     Config
	identify   IdentifierFunc
	logger     *zap.Logger
	now        func() time.Time
	onFailOpen func(prefix string)
}

// New creates a limiter backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		redis:    redisClient,
		config:   cfg,
		identify: ClientIP,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the limiter's window parameters.
func (l *Limiter) Config() Config {
	if l == nil {
		return Config{}
	}
	return l.config
}

// Check admits or rejects r. A non-empty override replaces the identifier
// derived from the request.
func (l *Limiter) Check(ctx context.Context, r *http.Request, override string) Result {
	if l == nil {
		return Result{Success: true}
	}
	id := override
	if id == "" && r != nil {
		id = l.identify(r)
	}
	return l.CheckIdentifier(ctx, id)
}

// CheckIdentifier admits or rejects one request for identifier.
func (l *Limiter) CheckIdentifier(ctx context.Context, identifier string) Result {
	if l == nil {
		return Result{Success: true}
	}
	return l.check(ctx, l.key(identifier), l.config.MaxRequests)
}

func (l *Limiter) check(ctx context.Context, key string, max int) Result {
	now := l.now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - l.config.Window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res := Result{
		Limit:     max,
		ResetTime: now.Add(l.config.Window),
	}

	var card *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, l.config.Window)
		return nil
	})
	if err != nil {
		l.failOpen(key, err)
		res.Success = true
		res.Remaining = max
		return res
	}

	count := int(card.Val())
	if count > max {
		if err := l.redis.ZRem(ctx, key, member).Err(); err != nil {
			l.logger.Warn("rate limit rollback failed",
				zap.String("prefix", l.config.Prefix),
				zap.Error(err),
			)
		}
		res.Success = false
		res.Remaining = 0
		res.RetryAfter = retryAfterSeconds(l.config.Window)
		return res
	}

	res.Success = true
	res.Remaining = max - count
	return res
}

// Remaining returns how many requests identifier may still make in the
// current window. Store errors fail open and report the full budget.
func (l *Limiter) Remaining(ctx context.Context, identifier string) int {
	if l == nil {
		return math.MaxInt32
	}

	key := l.key(identifier)
	windowStart := l.now().UnixMilli() - l.config.Window.Milliseconds()

	var card *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(windowStart, 10))
		card = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		l.failOpen(key, err)
		return l.config.MaxRequests
	}

	remaining := l.config.MaxRequests - int(card.Val())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset deletes identifier's bucket. Used for administrative overrides.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(identifier)).Err(); err != nil {
		l.logger.Warn("rate limit reset failed",
			zap.String("prefix", l.config.Prefix),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Sweep scans every bucket under the limiter prefix, evicts members outside
// the window and deletes buckets left empty. It returns the number of
// deleted buckets.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	if l == nil {
		return 0, nil
	}

	windowStart := "(" + strconv.FormatInt(l.now().UnixMilli()-l.config.Window.Milliseconds(), 10)
	deleted := 0

	iter := l.redis.Scan(ctx, 0, l.config.Prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		var card *redis.IntCmd
		_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, key, "-inf", windowStart)
			card = pipe.ZCard(ctx, key)
			return nil
		})
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if card.Val() == 0 {
			if err := l.redis.Del(ctx, key).Err(); err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return deleted, nil
}

func (l *Limiter) key(identifier string) string {
	if identifier == "" {
		identifier = "unknown"
	}
	return l.config.Prefix + ":" + identifier
}

func (l *Limiter) failOpen(key string, err error) {
	l.logger.Warn("rate limit store unavailable, allowing request",
		zap.String("prefix", l.config.Prefix),
		zap.String("key", key),
		zap.Error(err),
	)
	if l.onFailOpen != nil {
		l.onFailOpen(l.config.Prefix)
	}
}

func retryAfterSeconds(window time.Duration) int {
	s := int(window / time.Second)
	if window%time.Second != 0 {
		s++
	}
	return s
}
