package livehttp

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"faillog/internal/logger"
)

// ingestLimiter 按客户端 IP 做令牌桶限流，闲置超过 ttl 的条目会被清理。
type ingestLimiter struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	clients  map[string]*rate.Limiter
	lastSeen map[string]time.Time
	nowFn    func() time.Time
}

// newIngestLimiter returns nil when limiting is disabled.
func newIngestLimiter(perSec float64, burst int) *ingestLimiter {
	if perSec <= 0 || burst <= 0 {
		return nil
	}
	return &ingestLimiter{
		rps:      rate.Limit(perSec),
		burst:    burst,
		ttl:      10 * time.Minute,
		clients:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		nowFn:    time.Now,
	}
}

func (l *ingestLimiter) allow(client string) bool {
	if client == "" {
		client = "unknown"
	}
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.clients[client]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.clients[client] = limiter
	}
	l.lastSeen[client] = now
	for key, seen := range l.lastSeen {
		if now.Sub(seen) > l.ttl {
			delete(l.lastSeen, key)
			delete(l.clients, key)
		}
	}
	return limiter.AllowN(now, 1)
}

func (l *ingestLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if !l.allow(ip) {
			logger.Warnf("[http] ingest rate limit exceeded ip=%s", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

var errMissingToken = errors.New("missing bearer token")

// bearerAuth 校验 HS256 签名的 Bearer token；secret 为空时不做鉴权。
func bearerAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		if len(key) == 0 {
			c.Next()
			return
		}
		if err := verifyToken(c.GetHeader("Authorization"), key); err != nil {
			logger.Warnf("[http] reject unauthenticated request path=%s ip=%s err=%v", c.FullPath(), c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func verifyToken(header string, key []byte) error {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return errMissingToken
	}
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return err
}

// IssueToken signs an ingest token for subject valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
