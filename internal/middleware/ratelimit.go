package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit applies a fixed-window counter per client IP backed by redis.
// Redis being unreachable fails open; auth still works when the cache is
// down, it is just not throttled.
func RateLimit(client *redis.Client, log zerolog.Logger, name string, max int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", name, c.ClientIP())
		ctx := c.Request.Context()

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			log.Warn().Err(err).Str("limiter", name).Msg("rate limit check failed")
			c.Next()
			return
		}
		if count == 1 {
			if err := client.Expire(ctx, key, window).Err(); err != nil {
				log.Warn().Err(err).Str("limiter", name).Msg("rate limit expire failed")
			}
		}

		if count > int64(max) {
			ttl, err := client.TTL(ctx, key).Result()
			if err != nil || ttl < 0 {
				// A counter without a TTL would block this client
				// forever, not for one window. Re-arm it.
				if err := client.Expire(ctx, key, window).Err(); err != nil {
					log.Warn().Err(err).Str("limiter", name).Msg("rate limit expire failed")
				}
				ttl = window
			}
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": fmt.Sprintf("Too many requests. Please try again in %s.", ttl.Round(time.Second)),
			})
			return
		}

		c.Next()
	}
}
