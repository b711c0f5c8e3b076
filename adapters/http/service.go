package authhttp

import (
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/open-rails/emailchange/core"
	redisstore "github.com/open-rails/emailchange/storage/redis"
)

// Service wraps core.Service with net/http mounting helpers.
type Service struct {
	svc      *core.Service
	verifier SessionVerifier
	rl       RateLimiter
	clientIP ClientIPFunc
}

// NewService wraps svc. Requests are authenticated with verifier.
func NewService(svc *core.Service, verifier SessionVerifier) *Service {
	return &Service{
		svc:      svc,
		verifier: verifier,
		rl:       NewMemoryLimiter(DefaultRateLimits()),
		clientIP: DefaultClientIP(),
	}
}

// WithRedis stores pending changes in Redis and shares principal locks and
// rate limits across replicas.
func (s *Service) WithRedis(rd redis.UniversalClient) *Service {
	if rd != nil {
		s.svc = s.svc.WithEphemeralStore(redisstore.NewKV(rd), core.EphemeralRedis).
			WithLocker(redisstore.NewLocker(rd))
		s.rl = redisstore.NewRateLimiter(rd, RedisLimits(DefaultRateLimits()))
	}
	return s
}

func (s *Service) WithRateLimiter(rl RateLimiter) *Service { s.rl = rl; return s }
func (s *Service) DisableRateLimiter() *Service            { s.rl = nil; return s }
func (s *Service) WithClientIPFunc(fn ClientIPFunc) *Service {
	if fn == nil {
		s.clientIP = DefaultClientIP()
		return s
	}
	s.clientIP = fn
	return s
}

func (s *Service) Core() *core.Service { return s.svc }

// allow keys authenticated requests by principal and anonymous ones by IP.
// It fails open on limiter error.
func (s *Service) allow(r *http.Request, bucket string) bool {
	if s == nil || s.rl == nil {
		return true
	}
	var key string
	if cl, ok := ClaimsFromContext(r.Context()); ok && cl.UserID != "" {
		key = "emailchange:" + bucket + ":user:" + cl.UserID
	} else {
		ipFn := s.clientIP
		if ipFn == nil {
			ipFn = DefaultClientIP()
		}
		ip := ipFn(r)
		if strings.TrimSpace(ip) == "" {
			return true
		}
		key = "emailchange:" + bucket + ":ip:" + ip
	}
	ok, err := s.rl.AllowNamed(bucket, key)
	if err != nil {
		return true
	}
	return ok
}
