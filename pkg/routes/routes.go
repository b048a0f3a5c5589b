package pkg

import (
	"context"
	"log"

	"github.com/casbin/casbin/v2"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"VersatileShare/internal/auth"
	"VersatileShare/internal/config"
	"VersatileShare/internal/notification"
	"VersatileShare/internal/realtime"
	"VersatileShare/pkg/middleware"
)

var EchoModules = fx.Module("echo",
	fx.Provide(NewLogger),
	fx.Provide(NewEchoServer),
	fx.Provide(config.NewMongoDBConfig),
	fx.Provide(config.NewMongoDBClient),
	fx.Provide(config.NewResendConfig),
	fx.Provide(config.NewEmailService),
	fx.Provide(auth.NewUserRepository),
	fx.Provide(auth.NewUserService),
	fx.Provide(auth.NewAuthHandler),
	fx.Provide(NewHub),
	fx.Provide(realtime.NewSocketHandler),
	fx.Provide(notification.NewNotificationRepository),
	fx.Provide(NewNotificationService),
	fx.Provide(notification.NewNotificationHandler),
	fx.Provide(middleware.NewEnforcer),
	fx.Invoke(config.EnsureIndexes),
	fx.Invoke(RegisterRoutes),
	fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: logger}
	}),
)

func NewLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// NewHub ties the connection registry to the server lifecycle so every live
// session is torn down on shutdown.
func NewHub(lc fx.Lifecycle, logger *zap.Logger) *realtime.Hub {
	hub := realtime.NewHub(logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			hub.CloseAll()
			return nil
		},
	})
	return hub
}

// NewNotificationService wires the dispatcher to its collaborators. The email
// channel is optional and stays nil when no Resend credentials are set.
func NewNotificationService(
	repo *notification.NotificationRepository,
	users *auth.UserRepository,
	hub *realtime.Hub,
	email *config.EmailService,
	logger *zap.Logger,
) *notification.Service {
	var emailer notification.Emailer
	if email != nil {
		emailer = email
	}
	return notification.NewService(repo, users, hub, emailer, logger)
}

func NewEchoServer(lc fx.Lifecycle) *echo.Echo {
	e := echo.New()
	middleware.SetupMiddleware(e)
	port := ":8080"
	log.Println("Server running on http://localhost" + port[1:])
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(port); err != nil {
					log.Fatal("Failed to start the server:", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("shutting down the server ...")
			return e.Shutdown(ctx)
		},
	})
	return e
}

func RegisterRoutes(
	e *echo.Echo,
	authHandler *auth.AuthHandler,
	notificationHandler *notification.NotificationHandler,
	socketHandler *realtime.SocketHandler,
	enforcer *casbin.Enforcer,
	logger *zap.Logger,
) {
	e.POST("/register", authHandler.Register)
	e.POST("/login", authHandler.Login)
	e.GET("/ws", socketHandler.Serve)

	protected := e.Group("/api")
	protected.Use(middleware.JWTMiddleware)
	protected.GET("/profile", authHandler.Profile)
	protected.GET("/notifications", notificationHandler.List)
	protected.PUT("/notifications/read", notificationHandler.MarkRead)
	protected.POST("/notifications/interaction", notificationHandler.Interaction)
	protected.POST("/notifications/dispatch", notificationHandler.Dispatch, middleware.Casbin(enforcer, logger))
}
