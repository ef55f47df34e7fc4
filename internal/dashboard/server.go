// Package dashboard implements the local long-running HTTP+WebSocket
// service: a single well-known port exposing read/write
// endpoints over the store, a shutdown endpoint, a CLI notification
// ingress, and a WebSocket broadcaster for live client refresh.
package dashboard

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/intent-engine/ie/internal/app"
	"github.com/intent-engine/ie/internal/discovery"
)

// Port is the single well-known TCP port the dashboard binds; there is no
// auto-allocation. A second start on the same host fails loudly, which is
// exactly what binding an already-bound port does.
const Port = 11391

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	EnableCORS   bool
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ProjectRoot  string
}

// DefaultServerConfig binds all interfaces on the well-known port.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         Port,
		EnableCORS:   true,
		Debug:        false,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the dashboard process: a gin engine over the store, a
// WebSocket broadcast hub, and a cron sweeper for background maintenance.
type Server struct {
	engine *gin.Engine
	host   string
	port   int
	db     *sql.DB
	root   string
	logger zerolog.Logger
	hub    *hub
	sweep  *cron.Cron
	srv    *http.Server

	walChanged chan struct{}

	shuttingDown atomic.Bool
}

// NewServer wires the gin engine, CORS middleware, WebSocket hub, and
// routes against db. It does not start listening; call Run for that.
func NewServer(db *sql.DB, cfg ServerConfig) (*Server, error) {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "dashboard").Logger()

	s := &Server{
		engine:     gin.New(),
		host:       cfg.Host,
		port:       cfg.Port,
		db:         db,
		root:       cfg.ProjectRoot,
		logger:     logger,
		hub:        newHub(),
		walChanged: make(chan struct{}, 1),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(zerologMiddleware(logger))
	if cfg.EnableCORS {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		s.engine.Use(cors.New(corsCfg))
	}

	s.registerRoutes(cfg.ProjectRoot)

	s.sweep = cron.New()
	if _, err := s.sweep.AddFunc("@every 1h", s.sweepOnce); err != nil {
		return nil, fmt.Errorf("schedule sweeper: %w", err)
	}

	return s, nil
}

// zerologMiddleware logs each request at info level, the dashboard's own
// register distinct from the CLI's slog-to-stderr ambient logging.
func zerologMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Run starts the HTTP listener, the WebSocket broadcast pump, and the cron
// sweeper, blocking until ctx is canceled or a shutdown request is served.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.engine,
	}
	s.sweep.Start()
	defer s.sweep.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		go s.hub.run(gctx)
		return nil
	})

	if stopWatch, werr := discovery.WatchWAL(s.root, s.walChanged); werr == nil {
		g.Go(func() error {
			<-gctx.Done()
			stopWatch()
			return nil
		})
	} else {
		s.logger.Warn().Err(werr).Msg("wal watcher unavailable, dashboard will rely on CLI notifications only")
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-s.walChanged:
				s.notify(WSTypeWorkspaceChanged, nil)
			}
		}
	})

	g.Go(func() error {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("dashboard listening")
		err := s.srv.ListenAndServe()
		// A served shutdown request closes the listener; cancel so the other
		// goroutines return as well.
		stop()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// requestShutdown marks the server as shutting down and asynchronously
// cancels its run loop via the stored http.Server's Shutdown, idempotently:
// a second call while already shutting down is a no-op.
func (s *Server) requestShutdown() (alreadyShuttingDown bool) {
	if !s.shuttingDown.CompareAndSwap(false, true) {
		return true
	}
	if s.srv == nil {
		return false
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}()
	return false
}

func (s *Server) sweepOnce() {
	settings := app.EffectiveEventMaintenanceSettings(s.root)
	res, err := s.db.Exec(`
		DELETE FROM events WHERE id IN (
			SELECT id FROM events WHERE timestamp < datetime('now', ?) ORDER BY timestamp ASC LIMIT ?
		)
	`, fmt.Sprintf("-%d days", settings.RetentionDays), settings.PruneBatch)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sweeper: prune events failed")
		return
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info().Int64("pruned", n).Msg("sweeper: pruned old events")
	}
}
