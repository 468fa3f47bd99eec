package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cosmicplatform/api/internal/config"
	"cosmicplatform/api/internal/mail"
	"cosmicplatform/api/internal/middleware"
	"cosmicplatform/api/internal/repository"
	"cosmicplatform/api/internal/security"
	"cosmicplatform/api/internal/service"
	"cosmicplatform/api/internal/storage"
)

type HandlerSet struct {
	log    zerolog.Logger
	cfg    *config.AppConfig
	auth   *service.AuthService
	tokens *security.TokenManager
	users  middleware.UserFinder
	db     *pgxpool.Pool
	cache  *redis.Client
	store  *storage.ObjectStore
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	tokens := security.NewTokenManager(
		cfg.Security.JWTAccessSecret,
		cfg.Security.JWTRefreshSecret,
		security.TokenTTLs{
			Access:  cfg.Security.AccessTokenTTL,
			Refresh: cfg.Security.RefreshTokenTTL,
			Email:   cfg.Security.EmailTokenTTL,
			Reset:   cfg.Security.ResetTokenTTL,
		},
	)
	hasher := security.NewPasswordHasher(cfg.Security.BcryptCost)
	lockout := security.NewLockoutPolicy(cfg.Security.LockoutThreshold, cfg.Security.LockoutDuration)
	mailer := mail.NewOutboxMailer(cache, cfg.Mail, log)

	auth := service.NewAuthService(
		userRepo,
		sessionRepo,
		tokens,
		hasher,
		lockout,
		mailer,
		cfg.Security.RefreshTokenTTL,
		cfg.Security.ResetTokenTTL,
		log,
	)

	return HandlerSet{
		log:    log,
		cfg:    cfg,
		auth:   auth,
		tokens: tokens,
		users:  userRepo,
		db:     db,
		cache:  cache,
		store:  store,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	limit := func(name string, max int, window time.Duration) gin.HandlerFunc {
		return middleware.RateLimit(h.cache, h.log, name, max, window)
	}

	auth := router.Group("/auth")
	auth.POST("/register", limit("register", 3, time.Hour), h.RegisterUser)
	auth.POST("/login", limit("login", 5, 15*time.Minute), h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/logout", h.Logout)
	auth.GET("/verify-email", limit("verify_email", 5, time.Hour), h.VerifyEmail)
	auth.POST("/forgot-password", limit("password_reset", 3, time.Hour), h.ForgotPassword)
	auth.POST("/reset-password", limit("password_reset", 3, time.Hour), h.ResetPassword)

	protected := router.Group("/auth")
	protected.Use(middleware.Auth(h.tokens, h.users))
	protected.GET("/me", h.Me)

	verified := router.Group("/auth")
	verified.Use(middleware.Auth(h.tokens, h.users), middleware.RequireVerified())
	verified.PUT("/profile", h.UpdateProfile)
	verified.POST("/profile/avatar", h.UploadAvatar)
	verified.POST("/change-password", h.ChangePassword)
}
