package api

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/victornm/riffle/internal/errors"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	ctxKeyClaims = "riffle.claims"
)

// Claims are issued by the identity provider that fronts Riffle. The subject is the user ID.
type Claims struct {
	Nickname string `json:"nickname,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for a user.
func SignToken(secret, userID, nickname, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Nickname: nickname,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}).SignedString([]byte(secret))
}

func (a *API) authenticate(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer token")))
		return
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject == "" {
		abort(c, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err),
		))
		return
	}

	c.Set(ctxKeyClaims, &claims)
	c.Next()
}

func requireAdmin(c *gin.Context) {
	if claimsFrom(c).Role != RoleAdmin {
		abort(c, errors.New(errors.CodePermissionDenied, errors.WithMessagef("admin role required")))
		return
	}

	c.Next()
}

func claimsFrom(c *gin.Context) *Claims {
	if v, ok := c.Get(ctxKeyClaims); ok {
		return v.(*Claims)
	}
	return &Claims{}
}

const (
	// cleanupThreshold is the minimum map size before a cleanup pass runs.
	cleanupThreshold = 500
	// maxIdleAge is the duration after which an idle IP entry is eligible for cleanup.
	maxIdleAge = 10 * time.Minute
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP and prunes idle ones.
type IPRateLimiter struct {
	mu  sync.Mutex
	ips map[string]*ipEntry
	r   rate.Limit
	b   int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	if r <= 0 {
		r = rate.Every(time.Second)
	}
	if b <= 0 {
		b = 5
	}

	return &IPRateLimiter{
		ips: make(map[string]*ipEntry),
		r:   r,
		b:   b,
	}
}

func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.ips) > cleanupThreshold {
		cutoff := now.Add(-maxIdleAge)
		for k, e := range l.ips {
			if e.lastSeen.Before(cutoff) {
				delete(l.ips, k)
			}
		}
	}

	e, ok := l.ips[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

func rateLimit(l *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			abort(c, errors.New(errors.CodeResourceExhausted, errors.WithMessagef("too many requests, slow down")))
			return
		}

		c.Next()
	}
}
