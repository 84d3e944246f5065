package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChatRateLimiter limita turnos por paciente dentro de una ventana.
type ChatRateLimiter interface {
	Allow(patientID string) bool
}

const redisChatAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisChatRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisChatRateLimiter crea un limitador INCR/EXPIRE sobre Redis.
// Sin cliente devuelve nil y el handler no limita (fail-open).
func NewRedisChatRateLimiter(client *redis.Client, window time.Duration, max int) ChatRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisChatRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "chat:rl:",
	}
}

func (l *redisChatRateLimiter) Allow(patientID string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalized := strings.ToLower(strings.TrimSpace(patientID))
	if normalized == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisChatAllowScript, []string{l.prefix + normalized}, seconds).Int()
	if err != nil {
		// Redis caido no debe dejar al paciente sin respuesta.
		return true
	}
	return count <= l.max
}
