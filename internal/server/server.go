// Package server exposes the study pipeline over HTTP with gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
)

// Options configure the HTTP server.
type Options struct {
	Addr            string
	Mode            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// NewRouter registers the API routes on a new gin engine.
func NewRouter(h *Handler, mode string) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.MaxMultipartMemory = h.maxUploadBytes
	engine.Use(gin.Recovery(), RequestID(), AccessLog("/healthz"))

	engine.GET("/healthz", h.Health)

	api := engine.Group("/api")
	{
		api.POST("/documents", h.Upload)
		api.GET("/documents", h.ListDocuments)
		api.GET("/documents/:id", h.GetDocument)
		api.DELETE("/documents/:id", h.DeleteDocument)

		api.POST("/chat", h.Chat)
		api.POST("/quiz", h.Quiz)
		api.POST("/hint", h.Hint)
		api.POST("/answer", h.Answer)
	}
	return engine
}

// Server runs the HTTP API until its context is cancelled.
type Server struct {
	opts   Options
	server *http.Server
}

// New creates a Server for answerer and catalog.
func New(answerer Answerer, catalog Catalog, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	h := NewHandler(answerer, catalog, opts.RequestTimeout, opts.MaxUploadBytes)
	return &Server{
		opts: opts,
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(h, opts.Mode),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("http server listening", "addr", s.opts.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infow("http server shutting down", "timeout", s.opts.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
