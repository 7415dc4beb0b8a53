package status

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Server is the HTTP status API
type Server struct {
	echo   *echo.Echo
	addr   string
	logger pipeline.Logger
}

// NewServer builds the echo instance and routes. A non-empty token is
// required as a bearer token on the mutating routes.
func NewServer(addr, token string, p pipeline.PipelineManager, answers AnswerSource, logger pipeline.Logger) *Server {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	logger = logger.With(pipeline.String("component", "status_api"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("HTTP request",
				pipeline.String("method", v.Method),
				pipeline.String("uri", v.URI),
				pipeline.Int("status", v.Status),
				pipeline.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	api := e.Group("/api")
	write := api.Group("")
	if token != "" {
		write.Use(middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		}))
	}

	NewController(api, p, answers).InitRoutes(write)

	return &Server{echo: e, addr: addr, logger: logger}
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("Status API listening", pipeline.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
