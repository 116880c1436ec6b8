package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moyoez/multiparter/adapters"
	"github.com/moyoez/multiparter/api/controllers"
	"github.com/moyoez/multiparter/api/middlewares"
	"github.com/moyoez/multiparter/api/models"
	"github.com/moyoez/multiparter/filters"
	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/tool"
	"github.com/moyoez/multiparter/transformers"
	"github.com/moyoez/multiparter/types"
)

// Server is the HTTP upload server.
type Server struct {
	cfg     types.AppConfig
	factory adapters.Factory[adapters.StoredFile]
	opts    []multiparter.Option
	hub     *models.Hub

	mu     sync.RWMutex
	engine *gin.Engine
	server *http.Server
}

// NewServer creates a server storing uploads with adapters from factory.
func NewServer(cfg types.AppConfig, factory adapters.Factory[adapters.StoredFile]) (*Server, error) {
	opts, err := SessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	ttl, err := tool.ParseReceiptTTL(cfg.ReceiptTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid receiptTTL: %w", err)
	}
	models.SetReceiptTTL(ttl)

	hub := models.NewHub()
	models.SetNotifyHub(hub)

	return &Server{
		cfg:     cfg,
		factory: factory,
		opts:    opts,
		hub:     hub,
	}, nil
}

// SessionOptions turns the config into the options every upload session runs with.
func SessionOptions(cfg types.AppConfig) ([]multiparter.Option, error) {
	limits, err := tool.ParseLimits(cfg.Limits)
	if err != nil {
		return nil, err
	}
	opts := []multiparter.Option{
		multiparter.WithExactLimits(limits),
		multiparter.WithLogger(tool.DefaultLogger),
	}
	if len(cfg.Filter.AllowedMimeTypes) > 0 || len(cfg.Filter.AllowedExtensions) > 0 {
		opts = append(opts, multiparter.WithFilter(filters.All(
			filters.AllowMimeTypes(cfg.Filter.AllowedMimeTypes...),
			filters.AllowExtensions(cfg.Filter.AllowedExtensions...),
		)))
	}
	if cfg.Compress {
		opts = append(opts, multiparter.WithTransformer(transformers.Zstd()))
	}
	tool.DefaultLogger.Infof("[Server] Upload limits: %s", tool.FormatLimits(limits))
	return opts, nil
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	if s.cfg.OnlyLocal {
		engine.Use(middlewares.OnlyAllowLocal)
	}

	uploadCtrl := controllers.NewUploadController()
	cancelCtrl := controllers.NewCancelController()
	statusCtrl := controllers.NewStatusController(s.cfg)

	v1 := engine.Group("/api/v1", middlewares.ErrorHandler())
	{
		v1.POST("/upload",
			middlewares.RateLimit(s.cfg.RateLimit.PerSecond, s.cfg.RateLimit.Burst),
			middlewares.MultipartWithHooks(s.factory, uploadCtrl.Hooks(), s.opts...),
			uploadCtrl.HandleUpload)
		v1.GET("/uploads/:id", uploadCtrl.HandleGetUpload)
		v1.POST("/cancel", cancelCtrl.HandleCancel)
	}
	self := engine.Group("/api/v1", middlewares.OnlyAllowLocal)
	{
		self.GET("/notify-ws", controllers.HandleNotifyWS(s.hub))
		self.GET("/status", statusCtrl.HandleStatus)
		self.GET("/config", statusCtrl.HandleConfig)
	}
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}

// Engine builds the router once and returns it.
func (s *Server) Engine() *gin.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	engine := s.Engine()

	s.mu.Lock()
	s.server = &http.Server{
		Addr:    s.cfg.Listen,
		Handler: engine,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting upload server on %s", s.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting uploads and waits for running ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
