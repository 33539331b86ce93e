package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cosmicds/cosmicds/internal/store"
)

// Server is the reference remote store.
type Server struct {
	store  *store.Store
	logger *slog.Logger
	router *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer routes the protocol onto st.
func NewServer(st *store.Store, opts ...Option) *Server {
	s := &Server{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	// Story names arrive percent-encoded and may contain reserved
	// characters.
	router.UseRawPath = true
	router.Use(gin.Recovery(), s.logRequests())
	SetupRouter(router, s)
	s.router = router
	return s
}

// SetupRouter registers the protocol routes on router.
func SetupRouter(router *gin.Engine, s *Server) {
	router.GET("/healthz", s.health)

	states := router.Group("/story-state")
	{
		states.GET("/:student/:story", s.getStoryState)
		states.PUT("/:student/:story", s.putStoryState)
	}
	router.POST("/new-dummy-student", s.newDummyStudent)
	router.PUT("/submit-measurement", s.submitMeasurement)
	router.GET("/measurements/:student", s.listMeasurements)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Serve answers requests on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	s.logger.Info("listening", "addr", l.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
