package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"renogy-dcc/internal/collector"
	"renogy-dcc/internal/renogy"
)

// StatusSource is the collector view the API reads from.
type StatusSource interface {
	Status() collector.Status
	GetLatestData() *renogy.Snapshot
}

// PathSource is the published path table.
type PathSource interface {
	Name() string
	Get(path string) (any, bool)
	Snapshot() map[string]any
	SortedPaths() []string
}

type Server struct {
	router    *gin.Engine
	server    *http.Server
	collector StatusSource
	paths     PathSource
	log       logrus.FieldLogger
	port      int
}

type ServerConfig struct {
	Port      int
	Collector StatusSource
	Paths     PathSource
	Gatherer  prometheus.Gatherer
	Log       logrus.FieldLogger
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		collector: cfg.Collector,
		paths:     cfg.Paths,
		log:       cfg.Log,
		port:      cfg.Port,
	}

	s.setupRoutes(cfg.Gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/health", s.healthHandler)

	if gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1")
	{
		api.GET("/status", s.statusHandler)
		api.GET("/snapshot", s.snapshotHandler)
		api.GET("/paths", s.pathsHandler)
		api.GET("/paths/*path", s.pathHandler)
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.WithField("port", s.port).Info("API server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	st := s.collector.Status()

	code := http.StatusOK
	status := "healthy"
	if !st.Connected {
		code = http.StatusServiceUnavailable
		status = "disconnected"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"connected":  st.Connected,
		"collecting": st.Collecting,
		"timestamp":  time.Now(),
	})
}

func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   s.paths.Name(),
		"collector": s.collector.Status(),
	})
}

func (s *Server) snapshotHandler(c *gin.Context) {
	data := s.collector.GetLatestData()
	if data == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No data available yet",
		})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) pathsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.paths.Snapshot())
}

func (s *Server) pathHandler(c *gin.Context) {
	path := c.Param("path")
	if path == "" || path == "/" {
		s.pathsHandler(c)
		return
	}
	path = "/" + strings.TrimPrefix(path, "/")

	value, ok := s.paths.Get(path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown path %s", path)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "value": value})
}
