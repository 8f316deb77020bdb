// Package devserver serves a catalog directory over HTTP so a catalog can be
// tried locally before it is published. It also validates documents posted
// to it against the catalog schemas.
package devserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/schema"
	"github.com/huanfeng/corehub/pkg/utils"
)

// DefaultAddr matches the local test well-known catalog.
const DefaultAddr = ":8081"

// MaxDocumentSize bounds the body accepted by the validation endpoint.
const MaxDocumentSize = 64 << 20

// Server is the development catalog server.
type Server struct {
	echo *echo.Echo
	root string
}

// ValidationResult is the body returned by the validation endpoint.
type ValidationResult struct {
	Kind   string                 `json:"kind"`
	Valid  bool                   `json:"valid"`
	Errors []apperrors.FieldError `json:"errors,omitempty"`
}

// New creates a server for the catalog rooted at root.
func New(root string) (*Server, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "CATALOG_DIR", "cannot read catalog directory").
			WithContext("root", root)
	}
	if !info.IsDir() {
		return nil, apperrors.NewFileSystemError("CATALOG_DIR", "catalog root is not a directory").
			WithContext("root", root)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, root: root}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
		Output: logWriter{},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(fmt.Sprintf("%dB", MaxDocumentSize)))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/_kinds", s.listKinds)
	s.echo.POST("/_validate/:kind", s.validateDocument)
	s.echo.Use(middleware.StaticWithConfig(middleware.StaticConfig{
		Root:   s.root,
		Browse: true,
	}))
}

// Handler exposes the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.echo.Server.ReadTimeout = 30 * time.Second
	s.echo.Server.WriteTimeout = 5 * time.Minute
	utils.Info("serving catalog %s on %s", s.root, addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}

func (s *Server) listKinds(c echo.Context) error {
	return c.JSON(http.StatusOK, schema.Kinds())
}

func (s *Server) validateDocument(c echo.Context) error {
	kind := c.Param("kind")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	fields, err := schema.ValidateJSON(kind, body)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	result := ValidationResult{Kind: kind, Valid: len(fields) == 0, Errors: fields}
	if !result.Valid {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

// logWriter routes request logs through the debug logger.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	utils.Debug("%s", string(trimNewline(p)))
	return len(p), nil
}

func trimNewline(p []byte) []byte {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		return p[:n-1]
	}
	return p
}
