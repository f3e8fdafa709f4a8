package ginserver

import (
	"net/http"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type actorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*actorLimiter
	rps       float64
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	idle := limiterIdleTTL
	// an evicted limiter must already be full again, or eviction would hand out extra burst
	if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
		idle = refill
	}
	return &limiterPool{m: make(map[string]*actorLimiter), rps: rps, burst: burst, idle: idle, now: time.Now}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.sweep(now)
	if l, ok := p.m[key]; ok {
		l.lastSeen = now
		return l.limiter
	}
	l := &actorLimiter{limiter: rate.NewLimiter(rate.Limit(p.rps), p.burst), lastSeen: now}
	p.m[key] = l
	return l.limiter
}

// sweep drops limiters idle for longer than p.idle, at most once per idle period.
func (p *limiterPool) sweep(now time.Time) {
	if now.Sub(p.lastSweep) < p.idle {
		return
	}
	p.lastSweep = now
	for key, l := range p.m {
		if now.Sub(l.lastSeen) > p.idle {
			delete(p.m, key)
		}
	}
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// SendRateLimit throttles message sends per acting participant.
func SendRateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	pool := newLimiterPool(rps, burst)
	return func(c *gin.Context) {
		p, ok := requirePrincipal(c)
		if !ok {
			return
		}
		if !pool.get(p.Actor()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, slow down"})
			return
		}
		c.Next()
	}
}
