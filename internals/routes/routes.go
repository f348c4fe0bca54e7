package routes

import (
	"log"
	"time"

	"passkey-auth/internals/audit"
	"passkey-auth/internals/challenge"
	"passkey-auth/internals/config"
	"passkey-auth/internals/controllers"
	"passkey-auth/internals/device"
	"passkey-auth/internals/login"
	"passkey-auth/internals/middleware"
	"passkey-auth/internals/ports"
	"passkey-auth/internals/ratelimit"
	"passkey-auth/internals/session"
	"passkey-auth/internals/store"
	"passkey-auth/internals/totp"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func SetupRouter(db *gorm.DB) *gin.Engine {
	r := gin.Default()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	st := store.NewGormStore(db)
	auditSink := audit.NewDispatcher(st, 256)
	clock := ports.RealClock()

	limiter := ratelimit.NewKeyedLimiter(map[string]ratelimit.BucketConfig{
		login.BucketLogin: {
			Attempts: cfg.LoginAttempts,
			Window:   time.Duration(cfg.LoginWindowSeconds) * time.Second,
		},
		login.BucketSecondFactor: {
			Attempts: cfg.SecondFactorAttempts,
			Window:   time.Duration(cfg.MFAPendingSeconds) * time.Second,
		},
	})

	challenges, err := challenge.NewEngine(cfg, st, clock)
	if err != nil {
		log.Fatalf("Failed to set up passkey ceremonies: %v", err)
	}
	totpEngine := totp.NewEngine(cfg.AppName, cfg.BackupCodeCount, clock)
	devices := device.NewRegistry(st, clock)

	sessions := session.NewManager(
		st, auditSink, cfg.JWTSecret, cfg.AppName,
		time.Duration(cfg.AccessTokenSeconds)*time.Second,
		time.Duration(cfg.RefreshTokenSeconds)*time.Second,
		clock,
	)

	orchestrator := &login.Orchestrator{
		Store:         st,
		Sessions:      sessions,
		TOTP:          totpEngine,
		Challenges:    challenges,
		Limiter:       limiter,
		Audit:         auditSink,
		Devices:       devices,
		JWTSecret:     cfg.JWTSecret,
		EncryptionKey: cfg.EncryptionKey,
		PendingTTL:    time.Duration(cfg.MFAPendingSeconds) * time.Second,
		Clock:         clock,
	}

	// Instantiate the "Class"
	authMiddleware := middleware.NewRequireAuthMiddleware(cfg.JWTSecret)
	authCtrl := controllers.NewAuthController(st, orchestrator, sessions, auditSink, cfg.Cookie, cfg.RefreshTokenSeconds)
	passkeyCtrl := controllers.NewPasskeyController(st, challenges, orchestrator, auditSink, authCtrl)
	mfaCtrl := controllers.NewMFAController(st, totpEngine, orchestrator, auditSink, authCtrl, cfg.EncryptionKey)
	tokenCtrl := controllers.NewTokenController(sessions, cfg.Cookie, cfg.RefreshTokenSeconds)

	public := r.Group("/")
	{
		public.GET("/", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "active",
				"message": cfg.AppName + " API is running",
			})
		})
		public.POST("/register", authCtrl.Register)
		public.POST("/login", authCtrl.Login)

		passkey := public.Group("passkey")
		{
			passkey.POST("/login-options", passkeyCtrl.LoginOptions)
			passkey.POST("/login-verify", passkeyCtrl.LoginVerify)
		}
		public.POST("/2fa/login-verify", mfaCtrl.LoginVerify2FA)
	}

	protected := r.Group("/")
	protected.Use(authMiddleware.RequireAuth)
	{
		protected.POST("/logout", authCtrl.Logout)
		protected.POST("/logout-all", authCtrl.LogoutAll)
		protected.POST("/logout-others", authCtrl.LogoutOthers)
		protected.GET("/validate", authCtrl.Validate)
		protected.GET("/sessions", tokenCtrl.ListSessions)

		protected.POST("/passkey/register-options", passkeyCtrl.RegisterOptions)
		protected.POST("/passkey/register-verify", passkeyCtrl.RegisterVerify)
		protected.GET("/passkeys", passkeyCtrl.ListPasskeys)
		protected.DELETE("/passkeys/:id", passkeyCtrl.RevokePasskey)

		protected.POST("/2fa/setup", mfaCtrl.Setup2FA)
		protected.POST("/2fa/activate", mfaCtrl.Activate2FA)
	}

	auth := r.Group("/auth")
	{
		auth.POST("/refresh", tokenCtrl.RefreshToken)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
