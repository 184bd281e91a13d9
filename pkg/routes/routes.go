// Package routes assembles the HTTP API.
package routes

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/contact"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/identity"
)

type ServerConfig struct {
	AppName      string
	AllowOrigins []string
	AllowMethods []string
}

// Dependencies are the services behind the routes. The identify service
// serves both the identify and contact routes.
type Dependencies struct {
	Identifier identity.Identifier
	Lister     contact.Lister
	Checker    *health.Checker
	Logger     ectologger.Logger
}

func NewServer(cfg ServerConfig, deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(deps.Logger)

	e.Use(echomw.Recover())
	if len(cfg.AllowOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: cfg.AllowMethods,
		}))
	}
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(deps.Logger))

	e.GET("/", hello)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if deps.Checker != nil {
		deps.Checker.RegisterRoutes(e)
	}

	api := e.Group("/api")
	identity.NewHandler(deps.Identifier, deps.Logger).Register(api)
	contact.NewHandler(deps.Lister).Register(api)

	return e
}

func hello(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Hello World!"})
}
