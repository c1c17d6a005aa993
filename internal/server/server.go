package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/service/reading"
)

type Readings interface {
	Modes() []domain.ReadingMode
	NewReading(req reading.Request) (domain.Reading, error)
	Stats(r domain.Reading) (domain.TarotInsights, error)
	Insight(ctx context.Context, action string, r domain.Reading) (domain.Prediction, error)
	StoryTell(ctx context.Context, user domain.UserRef, r domain.Reading) (reading.Story, error)
	Predict(ctx context.Context, req reading.PredictionRequest) (domain.Prediction, error)
}

type Astrologer interface {
	Compute(ctx context.Context, profile domain.UserProfile) (domain.Astrology, error)
}

type ModelStatus interface {
	Setup(ctx context.Context) error
	Model() string
	ProviderName() string
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      bool
	Debug          bool
}

type Deps struct {
	Readings  Readings
	Astrology Astrologer
	Model     ModelStatus
	Logger    *zap.Logger
}

// Server is the HTTP surface. Handlers share only the read-only
// dependencies passed to New.
type Server struct {
	cfg       Config
	engine    *gin.Engine
	http      *http.Server
	readings  Readings
	astrology Astrologer
	model     ModelStatus
	limiter   *IPRateLimiter
	logger    *zap.Logger
}

func New(cfg Config, deps Deps) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		engine:    gin.New(),
		readings:  deps.Readings,
		astrology: deps.Astrology,
		model:     deps.Model,
		logger:    deps.Logger,
	}
	if cfg.RateLimit {
		s.limiter = NewDefaultIPRateLimiter()
	}

	s.engine.Use(
		RequestID(),
		AccessLog(s.logger),
		Recovery(s.logger),
		cors.New(corsConfig(cfg.AllowedOrigins)),
		BodyLimit(constants.InputLimits.MaxBodyBytes),
	)
	s.routes()

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: constants.Timeouts.ServerRead,
	}
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Accept", requestIDHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/modes", s.handleModes)
	s.engine.POST("/insight_stats/", s.handleStats)

	model := s.engine.Group("/")
	if s.limiter != nil {
		model.Use(RateLimitMiddleware(s.limiter))
	}
	model.POST("/user_astrology/", s.handleUserAstrology)
	model.POST("/insight_combination/", s.handleInsight("insight_combination"))
	model.POST("/insight_numerology/", s.handleInsight("insight_numerology"))
	model.POST("/story_tell/", s.handleStoryTell)
	model.POST("/prediction/", s.handlePrediction)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
