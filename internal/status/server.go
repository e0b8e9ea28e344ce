// Package status serves the operational JSON surface for the bus: store
// health, composite health score, blocker matches and the impact report.
package status

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/davisfield/switchboard/internal/detect"
	"github.com/davisfield/switchboard/internal/impact"
	"github.com/davisfield/switchboard/internal/store"
	"github.com/gin-gonic/gin"
)

// Provider exposes the monitor's cached cycle results.
type Provider interface {
	Health() detect.HealthScore
	Blockers() []detect.Match
	Risk() detect.Risk
	Impact() impact.Report
	Cycles() int
}

// StartOpts holds configuration for the status server.
type StartOpts struct {
	Store    *store.Store
	Provider Provider
	Port     int
	Out      io.Writer
}

// Start launches the status HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("status: store is required")
	}
	if opts.Provider == nil {
		return fmt.Errorf("status: provider is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts.Store, opts.Provider)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Status server running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}

func registerRoutes(router *gin.Engine, st *store.Store, p Provider) {
	router.GET("/healthz", func(c *gin.Context) {
		h := st.HealthCheck()
		code := http.StatusOK
		if h.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, h)
	})

	api := router.Group("/api")
	api.GET("/score", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"health": p.Health(),
			"risk":   p.Risk(),
			"cycles": p.Cycles(),
		})
	})
	api.GET("/blockers", func(c *gin.Context) {
		blockers := p.Blockers()
		if blockers == nil {
			blockers = []detect.Match{}
		}
		c.JSON(http.StatusOK, gin.H{
			"count":    len(blockers),
			"blockers": blockers,
		})
	})
	api.GET("/impact", func(c *gin.Context) {
		c.JSON(http.StatusOK, p.Impact())
	})
}
