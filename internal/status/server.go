// Package status exposes an optional HTTP surface for operators: health,
// metrics, and a JSON stats snapshot.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AiryPlays/roblox-ranking-system/internal/catalog"
	"github.com/AiryPlays/roblox-ranking-system/internal/dedup"
	"github.com/AiryPlays/roblox-ranking-system/internal/logger"
	"github.com/AiryPlays/roblox-ranking-system/internal/metrics"
)

// Server serves the status endpoints.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// NewServer builds the status server on addr.
func NewServer(addr string, m *metrics.Metrics, seen *dedup.Store, cat *catalog.Catalog) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"metrics":      m.Snapshot(),
			"dedup_size":   seen.Len(),
			"catalog_size": cat.Len(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger.For("status"),
	}
}

// requestID tags every request with an X-Request-ID, generating one when the
// caller did not supply it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.log.Infof("status server listening on %s", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("status server failed: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
