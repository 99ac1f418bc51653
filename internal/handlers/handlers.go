package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clockpoint/internal/config"
	"clockpoint/internal/middleware"
	"clockpoint/internal/notify"
	"clockpoint/internal/service"
)

// Pinger reports whether the primary database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Services struct {
	Auth     *service.AuthService
	Groups   *service.GroupService
	Sessions *service.SessionService
	Clock    *service.ClockService
	Reports  *service.ReportService
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     *service.AuthService
	groups   *service.GroupService
	sessions *service.SessionService
	clock    *service.ClockService
	reports  *service.ReportService
	db       Pinger
	cache    redis.UniversalClient
	ws       *notify.WSServer
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, svc Services, db Pinger, cache redis.UniversalClient, ws *notify.WSServer) HandlerSet {
	return HandlerSet{
		log:      log,
		cfg:      cfg,
		auth:     svc.Auth,
		groups:   svc.Groups,
		sessions: svc.Sessions,
		clock:    svc.Clock,
		reports:  svc.Reports,
		db:       db,
		cache:    cache,
		ws:       ws,
	}
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.Auth(h.cfg.Security.TokenPrefix, h.auth)
	limited := middleware.RateLimit(h.cfg.RateLimit, h.cache, h.log)

	auth := router.Group("/auth")
	{
		auth.POST("/register", limited, h.RegisterUser)
		auth.POST("/login", limited, h.Login)
		auth.POST("/reset", limited, h.RequestReset)
		auth.PATCH("/reset", h.ConfirmReset)

		auth.GET("/refresh", requireAuth, h.Refresh)
		auth.PATCH("/activate", requireAuth, h.Activate)
		auth.PATCH("/", requireAuth, h.ChangePassword)
		auth.DELETE("/", requireAuth, h.DeleteAccount)
	}

	group := router.Group("/group", requireAuth)
	{
		group.POST("/create", h.CreateGroup)
		group.GET("/", h.GetGroup)
		group.GET("/list", h.ListGroups)
		group.POST("/invite", h.Invite)
		group.POST("/invite/accept", h.AcceptInvite)
		group.PATCH("/:group_id", h.EditGroup)
		group.DELETE("/:group_id", h.DeleteGroup)
		group.GET("/:group_id/users", h.ListMembers)
		group.DELETE("/:group_id/leave", h.LeaveGroup)
		group.DELETE("/:group_id/users/:user_id", h.KickMember)
		group.PATCH("/:group_id/users/:user_id/role", h.AssignRole)
	}

	clock := router.Group("/clock", requireAuth)
	{
		clock.POST("/entry", h.ClockEntry)
		clock.POST("/:group_id", h.CreateSession)
		clock.GET("/:group_id/sessions", h.ListSessions)
		clock.GET("/:group_id/sessions/report", h.Report)
		clock.POST("/:group_id/schedule", h.CreateSchedule)
		clock.GET("/:group_id/schedule", h.ListSchedules)
		clock.PATCH("/:group_id/schedule/:schedule_id", h.UpdateSchedule)
		clock.DELETE("/:group_id/schedule/:schedule_id", h.DeleteSchedule)
		clock.GET("/:group_id/:session_id/qr", h.IssueQR)
	}

	router.GET("/notification/", requireAuth, h.Notifications)
}
