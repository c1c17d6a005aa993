package reading

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
)

type PredictionRequest struct {
	User     domain.UserRef
	Reading  domain.Reading
	Feedback *domain.Feedback
}

// Predict answers the question with the user's own decoder state. Feedback
// that asks for more or less creativity drifts that state first and stores
// the new row. The completed session is persisted in the background; a
// persistence failure is logged and never reaches the caller.
func (s *Service) Predict(ctx context.Context, req PredictionRequest) (domain.Prediction, error) {
	insights, err := s.Stats(req.Reading)
	if err != nil {
		return domain.Prediction{}, err
	}

	opts, err := s.decoderOptions(ctx, req.User, req.Feedback)
	if err != nil {
		return domain.Prediction{}, err
	}

	text, err := s.run(ctx, prompt.ActionPrediction, readingValues(req.Reading), opts)
	if err != nil {
		return domain.Prediction{}, err
	}

	prediction := domain.Prediction{Action: prompt.ActionPrediction, Response: text}

	s.persist(domain.Session{
		ID:         s.newID(),
		User:       req.User,
		Reading:    req.Reading,
		Insights:   insights,
		Prediction: prediction,
		Feedback:   req.Feedback,
		Decode:     opts,
		CreatedAt:  s.now().UTC(),
	})

	return prediction, nil
}

func (s *Service) decoderOptions(ctx context.Context, user domain.UserRef, fb *domain.Feedback) (domain.DecodeOptions, error) {
	opts := s.model.Defaults()

	latest, err := s.decoders.Latest(ctx, user)
	if err != nil {
		s.logger.Warn("Decoder state lookup failed, using defaults",
			zap.String("username", user.Username),
			zap.Error(err),
		)
	} else if latest != nil {
		opts = latest.Options
	}

	if fb.Drift() == 0 {
		return opts, nil
	}

	drifted := domain.ApplyFeedback(opts, fb)
	state := domain.DecoderState{
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Options:   drifted,
		CreatedAt: s.now().UTC(),
	}
	if err := s.decoders.Insert(ctx, state); err != nil {
		s.logger.Warn("Decoder state not stored",
			zap.String("username", user.Username),
			zap.Error(err),
		)
	}

	s.logger.Info("Decoder state drifted",
		zap.String("username", user.Username),
		zap.Int("direction", fb.Drift()),
		zap.Float64("temperature", drifted.Temperature),
	)
	return drifted, nil
}

// persist writes the session on a detached context so a finished request
// does not cancel it. Wait drains these writes on shutdown.
func (s *Service) persist(session domain.Session) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), constants.Timeouts.Persist)
		defer cancel()

		if err := s.sessions.UpsertUser(ctx, session.User); err != nil {
			s.logger.Warn("User not stored", zap.String("session_id", session.ID), zap.Error(err))
		}
		if err := s.sessions.SaveSession(ctx, session); err != nil {
			s.logger.Error("Session not stored", zap.String("session_id", session.ID), zap.Error(err))
			return
		}
		s.logger.Debug("Session stored", zap.String("session_id", session.ID))
	}()
}
