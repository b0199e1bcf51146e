// Package server implements the Parley broker: the login and chat REST
// endpoints, the websocket messaging channel, and the retention sweep.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Opts holds configuration for the broker.
type Opts struct {
	DB        *gorm.DB
	Addr      string
	JWTSecret string
	TokenTTL  time.Duration
	// Retention prunes messages older than this on a nightly sweep.
	// Zero disables pruning.
	Retention time.Duration
	Out       io.Writer
}

// server wires the handlers to their shared dependencies.
type server struct {
	db        *gorm.DB
	hub       *Hub
	jwtSecret string
	tokenTTL  time.Duration
}

func newServer(opts Opts) (*server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.JWTSecret == "" {
		return nil, fmt.Errorf("server: jwt secret is required")
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	return &server{
		db:        opts.DB,
		hub:       NewHub(),
		jwtSecret: opts.JWTSecret,
		tokenTTL:  ttl,
	}, nil
}

// routes builds the Gin router with all endpoints registered.
func (s *server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/api/auth/login", s.handleLogin)

	authed := router.Group("/", s.authRequired())
	authed.GET("/api/chat/history/:counterpartID", s.handleHistory)
	authed.GET("/api/chat/agent", s.handleAgent)
	authed.GET("/api/admin/customers", agentOnly(), s.handleCustomers)

	// The websocket endpoint authenticates inside the handler so a bad
	// credential is refused with 401 before the upgrade.
	router.GET("/ws", s.handleWS)

	return router
}

// Start launches the broker. It blocks until ctx is cancelled, then shuts
// down gracefully.
func Start(ctx context.Context, opts Opts) error {
	s, err := newServer(opts)
	if err != nil {
		return err
	}

	addr := opts.Addr
	if addr == "" {
		addr = ":8084"
	}

	if c := startRetention(opts.DB, opts.Retention); c != nil {
		defer c.Stop()
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Parley broker listening on %s\n", addr)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
