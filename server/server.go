// Package server exposes the admin triggers over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	Logger "github.com/Luismorlan/community/utils/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Name string
	Addr string
}

// Server is an engine module serving the admin API until its context ends.
type Server struct {
	Config Config

	router *gin.Engine
	http   *http.Server
}

// NewRouter returns the admin router with its middlewares attached.
func NewRouter(enqueuer TaskEnqueuer) *gin.Engine {
	// Default With the Logger and Recovery middleware already attached
	router := gin.Default()
	router.Use(cors.Default())
	AddRoutes(router.Group("/api"), enqueuer)
	return router
}

func NewServer(config Config, enqueuer TaskEnqueuer) *Server {
	return &Server{Config: config, router: NewRouter(enqueuer)}
}

func (s *Server) RunModule(ctx context.Context) error {
	s.http = &http.Server{Addr: s.Config.Addr, Handler: s.router}
	errs := make(chan error, 1)
	go func() {
		Logger.Log.Infof("admin api listens on %s", s.Config.Addr)
		errs <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "admin api stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) Name() string {
	return s.Config.Name
}

func (s *Server) Shutdown() {
	Logger.Log.Infoln("Module ", s.Config.Name, " gracefully shutdown")
}
