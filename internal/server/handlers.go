package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/service/reading"
	"github.com/kapu/taro-go/internal/util"
)

type storyRequest struct {
	User    domain.UserRef  `json:"user"`
	Reading reading.Request `json:"reading"`
}

type predictionRequest struct {
	User     domain.UserRef   `json:"user"`
	Reading  reading.Request  `json:"reading"`
	Feedback *domain.Feedback `json:"feedback,omitempty"`
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, fmt.Sprintf("Taro Active. Debug mode: %t", s.cfg.Debug))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReady verifies the model is loaded; the first success is cached by
// the model client.
func (s *Server) handleReady(c *gin.Context) {
	if err := s.model.Setup(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"provider": s.model.ProviderName(),
		"model":    s.model.Model(),
	})
}

func (s *Server) handleModes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modes": s.readings.Modes()})
}

func (s *Server) handleUserAstrology(c *gin.Context) {
	var in domain.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}

	profile, err := domain.ParseProfile(in)
	if err != nil {
		s.writeError(c, err)
		return
	}

	astro, err := s.astrology.Compute(c.Request.Context(), profile)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, domain.NewUserAstrology(profile, astro))
}

func (s *Server) handleStats(c *gin.Context) {
	r, ok := s.bindReading(c)
	if !ok {
		return
	}
	insights, err := s.readings.Stats(r)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

func (s *Server) handleInsight(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.bindReading(c)
		if !ok {
			return
		}

		ctx, cancel := modelContext(c)
		defer cancel()

		out, err := s.readings.Insight(ctx, action, r)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) handleStoryTell(c *gin.Context) {
	var req storyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}
	r, err := s.readings.NewReading(req.Reading)
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := modelContext(c)
	defer cancel()

	story, err := s.readings.StoryTell(ctx, cleanUser(req.User), r)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (s *Server) handlePrediction(c *gin.Context) {
	var req predictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, invalidBody(err))
		return
	}
	if util.CleanText(req.User.Username) == "" {
		s.writeError(c, invalidBody(fmt.Errorf("user.username is required")))
		return
	}
	r, err := s.readings.NewReading(req.Reading)
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := modelContext(c)
	defer cancel()

	out, err := s.readings.Predict(ctx, reading.PredictionRequest{
		User:     cleanUser(req.User),
		Reading:  r,
		Feedback: req.Feedback,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.Debug("Prediction served",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.Bool("feedback", req.Feedback.HasSignal()),
	)
	c.JSON(http.StatusOK, out)
}

func (s *Server) bindReading(c *gin.Context) (domain.Reading, bool) {
	var req reading.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, invalidBody(err))
		return domain.Reading{}, false
	}
	r, err := s.readings.NewReading(req)
	if err != nil {
		s.writeError(c, err)
		return domain.Reading{}, false
	}
	return r, true
}

func modelContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), constants.Timeouts.ModelRequest)
}

func cleanUser(u domain.UserRef) domain.UserRef {
	return domain.UserRef{
		ID:        util.CleanText(u.ID),
		Username:  util.CleanText(u.Username),
		FirstName: domain.DisplayName(util.CleanText(u.FirstName)),
		LastName:  domain.DisplayName(util.CleanText(u.LastName)),
		BirthDate: util.CleanText(u.BirthDate),
	}
}
