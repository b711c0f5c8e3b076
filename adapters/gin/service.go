package authgin

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/open-rails/emailchange/adapters/gin/handlers"
	"github.com/open-rails/emailchange/adapters/ginutil"
	authhttp "github.com/open-rails/emailchange/adapters/http"
	"github.com/open-rails/emailchange/core"
	redisstore "github.com/open-rails/emailchange/storage/redis"
)

// Service wraps core.Service for mounting on a Gin router.
type Service struct {
	svc      *core.Service
	verifier authhttp.SessionVerifier
	rl       ginutil.RateLimiter
}

func NewService(svc *core.Service, verifier authhttp.SessionVerifier) *Service {
	return &Service{svc: svc, verifier: verifier}
}

// WithRedis stores pending changes in Redis and shares principal locks and
// rate limits across replicas.
func (s *Service) WithRedis(rd redis.UniversalClient) *Service {
	if rd != nil {
		s.svc = s.svc.WithEphemeralStore(redisstore.NewKV(rd), core.EphemeralRedis).
			WithLocker(redisstore.NewLocker(rd))
		s.rl = redisstore.NewRateLimiter(rd, authhttp.RedisLimits(authhttp.DefaultRateLimits()))
	}
	return s
}

func (s *Service) WithRateLimiter(rl ginutil.RateLimiter) *Service { s.rl = rl; return s }

func (s *Service) Core() *core.Service { return s.svc }

// GinRegisterAPI mounts the email change endpoints under the given router or
// group (e.g. /api/v1). It panics in production without a durable ephemeral store.
func (s *Service) GinRegisterAPI(api gin.IRouter) *Service {
	if s.svc.Production() && !s.svc.EphemeralMode().Durable() {
		panic("emailchange: a durable ephemeral store (redis or sqlite) is required in production")
	}
	rl := s.ensureLimiter()
	auth := AuthRequired(s.verifier)

	api.GET("/auth/user/email/change", auth, handlers.HandleUserEmailChangeGET(s.svc, rl))
	api.DELETE("/auth/user/email/change", auth, handlers.HandleUserEmailChangeDELETE(s.svc, rl))
	api.POST("/auth/user/email/change/request", auth, handlers.HandleUserEmailChangeRequestPOST(s.svc, rl))
	api.POST("/auth/user/email/change/resend", auth, handlers.HandleUserEmailChangeResendPOST(s.svc, rl))
	api.POST("/auth/user/email/change/confirm", auth, handlers.HandleUserEmailChangeConfirmPOST(s.svc, rl))
	api.POST("/auth/user/email/change/confirm-link", auth, handlers.HandleUserEmailChangeConfirmLinkPOST(s.svc, rl))
	api.POST("/auth/user/email/change/commit", auth, handlers.HandleUserEmailChangeCommitPOST(s.svc, rl))
	api.POST("/auth/user/email/change/repair", auth, handlers.HandleUserEmailChangeRepairPOST(s.svc, rl))
	api.POST("/auth/user/reauthenticate", auth, handlers.HandleUserReauthenticatePOST(s.svc, rl))
	return s
}

func (s *Service) ensureLimiter() ginutil.RateLimiter {
	if s.rl != nil {
		return s.rl
	}
	log.Info("emailchange: using in-memory rate limiter (single-node only)")
	s.rl = authhttp.NewMemoryLimiter(authhttp.DefaultRateLimits())
	return s.rl
}
