// Package token issues short-lived channel access tokens for the voice and
// video rooms. Tokens are HS256-signed and scoped to one channel and uid.
package token

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

// DefaultTTL is the channel token lifetime.
const DefaultTTL = 24 * time.Hour

// ErrRateLimited is returned when a uid requests tokens too quickly.
var ErrRateLimited = fmt.Errorf("token requests rate limited")

// Grant is an issued channel token with the join parameters the client needs.
type Grant struct {
	Token   string `json:"token"`
	AppID   string `json:"appId"`
	Channel string `json:"channel"`
	UID     string `json:"uid"`
}

// Claims are the signed token contents.
type Claims struct {
	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UID     string `json:"uid"`
	jwt.RegisteredClaims
}

// Service issues channel tokens.
type Service struct {
	appID  string
	secret []byte
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// Option configures the service.
type Option func(*Service)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRateLimit overrides the per-uid issuance limit.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Service) {
		s.limit = limit
		s.burst = burst
	}
}

// New creates a token service for the given app credentials.
func New(appID string, secret []byte, log *logger.Logger, opts ...Option) (*Service, error) {
	if appID == "" {
		return nil, fmt.Errorf("app id is required")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	if log == nil {
		log = logger.NewDefault("token")
	}
	s := &Service{
		appID:    appID,
		secret:   secret,
		ttl:      DefaultTTL,
		log:      log,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Second),
		burst:    5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a channel token for uid. Requests beyond the per-uid rate
// return ErrRateLimited.
func (s *Service) Issue(channel, uid string) (Grant, error) {
	if channel == "" {
		return Grant{}, fmt.Errorf("channel is required")
	}
	if uid == "" {
		return Grant{}, fmt.Errorf("uid is required")
	}
	if !s.limiter(uid).Allow() {
		s.log.WithField("uid", uid).Warn("token issuance rate limited")
		return Grant{}, ErrRateLimited
	}

	now := s.now().UTC()
	claims := Claims{
		AppID:   s.appID,
		Channel: channel,
		UID:     uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Grant{}, fmt.Errorf("sign token: %w", err)
	}

	return Grant{
		Token:   signed,
		AppID:   s.appID,
		Channel: channel,
		UID:     uid,
	}, nil
}

// Verify parses a grant token and returns its claims.
func (s *Service) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return Claims{}, err
	}
	if !parsed.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (s *Service) limiter(uid string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[uid]
	if !ok {
		lim = rate.NewLimiter(s.limit, s.burst)
		s.limiters[uid] = lim
	}
	return lim
}
