package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/quickmart/quickmart-auth/internal/config"
	"github.com/quickmart/quickmart-auth/internal/http/handler"
	"github.com/quickmart/quickmart-auth/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, users *handler.UserHandler, auth *middleware.Auth, throttle *middleware.Throttle, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	if throttle != nil {
		r.Use(throttle.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", users.Register)
		authGroup.POST("/login", users.Login)
		authGroup.GET("/me", auth.ValidateJWT, users.Me)

		password := authGroup.Group("/password")
		{
			password.POST("/forgot", users.ForgotPassword)
			password.POST("/reset", users.ResetPassword)
		}
	}

	userGroup := r.Group("/users", auth.ValidateJWT)
	{
		userGroup.GET("", auth.RequireRoles("Admin", "Manager"), users.ListUsers)
		userGroup.GET("/deleted", auth.RequireRoles("Admin", "Manager"), users.ListSoftDeleted)
		userGroup.GET("/:id", auth.RequireRoles("Admin", "Manager"), users.GetUser)
		userGroup.PUT("/:id", users.UpdateUser)
		userGroup.DELETE("/:id", auth.RequireRoles("Admin"), users.DeleteUser)
		userGroup.PUT("/:id/role", auth.RequireRoles("Admin"), users.AssignRole)
	}

	roleGroup := r.Group("/roles", auth.ValidateJWT, auth.RequireRoles("Admin"))
	{
		roleGroup.GET("", users.ListRoles)
		roleGroup.POST("", users.CreateRole)
	}

	return r
}
