package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/fetchd/fetchd/internal/api/controllers"
	"github.com/fetchd/fetchd/internal/app"
)

// RegisterRoutes mounts the control API over ctx.Queue (spec §4.9).
func RegisterRoutes(e *echo.Echo, ctx *app.Context) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			ctx.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	q := &controllers.QueueController{App: ctx}

	e.POST("/downloads", q.Add)
	e.GET("/downloads", q.List)
	e.GET("/downloads/:id", q.Get)
	e.POST("/downloads/:id/pause", q.Pause)
	e.POST("/downloads/:id/resume", q.Resume)
	e.POST("/downloads/:id/cancel", q.Cancel)
	e.GET("/stats", q.Stats)
}
