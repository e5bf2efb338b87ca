package bitbucket

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter segura o ritmo das chamadas ao Bitbucket (1000 req/h por usuário
// na maioria dos endpoints). Depois de um 429 com Retry-After, libera uma
// requisição por intervalo até o prazo vencer e então volta ao ritmo base.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	base    rate.Limit
	burst   int
	until   time.Time
	now     func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		base:    rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Wait bloqueia até haver token disponível ou o contexto ser cancelado.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	if !rl.until.IsZero() && !rl.now().Before(rl.until) {
		rl.limiter.SetLimit(rl.base)
		rl.limiter.SetBurst(rl.burst)
		rl.until = time.Time{}
	}
	rl.mu.Unlock()
	return rl.limiter.Wait(ctx)
}

// Throttle reduz o ritmo para uma requisição a cada retryAfter, até retryAfter
// a partir de agora.
func (rl *RateLimiter) Throttle(retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Every(retryAfter))
	rl.limiter.SetBurst(1)
	rl.until = rl.now().Add(retryAfter)
}
