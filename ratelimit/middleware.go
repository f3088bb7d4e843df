package ratelimit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
)

// Checker is satisfied by [Limiter] and [TieredLimiter].
type Checker interface {
	Check(ctx context.Context, r *http.Request, override string) Result
}

// SetHeaders writes the X-RateLimit-* headers, plus Retry-After on rejection.
func SetHeaders(w http.ResponseWriter, res Result) {
	if res.Limit <= 0 {
		return
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
	if !res.Success {
		h.Set("Retry-After", strconv.Itoa(res.RetryAfter))
	}
}

type rejection struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware checks every request against c before delegating to next.
// Rejected requests receive 429 with a JSON body and never reach next.
func Middleware(c Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c == nil {
				next.ServeHTTP(w, r)
				return
			}

			res := c.Check(r.Context(), r, "")
			SetHeaders(w, res)
			if !res.Success {
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, rejection{
					Error:      "Too many requests, please try again later.",
					RetryAfter: res.RetryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
