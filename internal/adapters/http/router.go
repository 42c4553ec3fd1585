package http

import (
	"crypto/rand"

	signaladapter "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable "ct" cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func cookieSecret(secret string) []byte {
	if secret != "" {
		return []byte(secret)
	}
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	log.Warn().Str("module", "adapters.http").Msg("no cookie secret configured, sessions will not survive restart")
	return b
}

// SetupRouter builds the engine. The call signaling socket is mounted only
// when sig is not nil.
func SetupRouter(cfg *config.Config, o *orch.Orchestrator, limiter *JoinLimiter, sig *signaladapter.SignalWSController) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore(cookieSecret(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24, HttpOnly: true})
	r.Use(sessions.Sessions("MeetSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &Handlers{Orch: o, Limiter: limiter}

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/whoami", h.WhoAmI)
	if sig != nil {
		api.GET("/ws/signal", sig.HandleSignal)
	}

	rooms := api.Group("/rooms")
	rooms.GET("", h.ListRooms)
	rooms.POST("", h.CreateRoom)
	rooms.GET("/:id", h.RoomStatus)
	rooms.POST("/:id/join", h.JoinRoom)
	rooms.POST("/:id/approve/:userId", h.ApproveUser)
	rooms.GET("/:id/user/:userId/status", h.UserStatus)
	rooms.GET("/:id/waiting", h.WaitingList)
	rooms.GET("/:id/participants", h.Participants)
	rooms.GET("/:id/participant/:userId", h.Locate)
	rooms.POST("/:id/participants/:userId/media", h.UpdateMedia)
	rooms.POST("/:id/leave/:userId", h.LeaveRoom)
	rooms.POST("/:id/end", h.EndRoom)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
