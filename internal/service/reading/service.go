package reading

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
	"github.com/kapu/taro-go/internal/util"
	"github.com/kapu/taro-go/pkg/errors"
)

const TimestampLayout = "2006-01-02 15:04:05"

// Model is the part of ai.ModelClient the reading flows use.
type Model interface {
	Chat(ctx context.Context, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error)
	Defaults() domain.DecodeOptions
	DecodeWith(overrides map[string]any) (domain.DecodeOptions, error)
}

type Templates interface {
	Get(action string) (*prompt.Template, error)
}

type SessionStore interface {
	SaveSession(ctx context.Context, session domain.Session) error
	UpsertUser(ctx context.Context, user domain.UserRef) error
}

type DecoderStates interface {
	Latest(ctx context.Context, user domain.UserRef) (*domain.DecoderState, error)
	Insert(ctx context.Context, state domain.DecoderState) error
}

type Deps struct {
	Catalog   *domain.Catalog
	Templates Templates
	Model     Model
	Sessions  SessionStore
	Decoders  DecoderStates
	Logger    *zap.Logger
}

// Service orchestrates the reading flows on top of the catalog, the
// template registry and the model client. It holds no per-request state.
type Service struct {
	catalog   *domain.Catalog
	templates Templates
	model     Model
	sessions  SessionStore
	decoders  DecoderStates
	logger    *zap.Logger

	pending sync.WaitGroup
	now     func() time.Time
	newID   func() string
}

func NewService(deps Deps) *Service {
	return &Service{
		catalog:   deps.Catalog,
		templates: deps.Templates,
		model:     deps.Model,
		sessions:  deps.Sessions,
		decoders:  deps.Decoders,
		logger:    deps.Logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Request is the reading body shared by every reading route.
type Request struct {
	Timestamp   string   `json:"timestamp,omitempty"`
	Question    string   `json:"question"`
	ReadingMode string   `json:"reading_mode"`
	DrawnCards  []string `json:"drawn_cards"`
}

func (s *Service) Modes() []domain.ReadingMode {
	return s.catalog.All()
}

// NewReading validates a request: the mode must exist and the draw must fill
// it exactly. Text is NFC-normalized and stripped of control characters.
func (s *Service) NewReading(req Request) (domain.Reading, error) {
	question := util.CleanText(req.Question)
	if len([]rune(question)) > constants.InputLimits.MaxQuestionLength {
		return domain.Reading{}, errors.NewValidationError("question is too long", "question", len([]rune(question)))
	}

	if len(req.DrawnCards) == 0 {
		return domain.Reading{}, domain.ErrEmptySpread
	}

	mode, err := s.catalog.Resolve(req.ReadingMode)
	if err != nil {
		return domain.Reading{}, err
	}

	cards := util.CleanAll(req.DrawnCards)
	for i, card := range cards {
		if len([]rune(card)) > constants.InputLimits.MaxCardNameLength {
			return domain.Reading{}, errors.NewValidationError("card name is too long", "drawn_cards", i)
		}
	}

	spread, err := domain.NewCardSpread(mode, cards)
	if err != nil {
		return domain.Reading{}, err
	}

	timestamp := strings.TrimSpace(req.Timestamp)
	if timestamp == "" {
		timestamp = s.now().Format(TimestampLayout)
	}

	return domain.Reading{Timestamp: timestamp, Question: question, Spread: spread}, nil
}

// Stats counts suits and courts in the spread. It never calls the model.
func (s *Service) Stats(reading domain.Reading) (domain.TarotInsights, error) {
	return reading.Spread.Insights()
}

// Insight runs one single-call action (insight_combination or
// insight_numerology) with the default decode options.
func (s *Service) Insight(ctx context.Context, action string, reading domain.Reading) (domain.Prediction, error) {
	text, err := s.run(ctx, action, readingValues(reading), s.model.Defaults())
	if err != nil {
		return domain.Prediction{}, err
	}
	return domain.Prediction{Action: action, Response: text}, nil
}

func (s *Service) run(ctx context.Context, action string, values map[string]any, opts domain.DecodeOptions) (string, error) {
	tmpl, err := s.templates.Get(action)
	if err != nil {
		return "", err
	}
	messages, err := prompt.Compose(tmpl, values)
	if err != nil {
		return "", err
	}

	start := s.now()
	text, err := s.model.Chat(ctx, messages, opts)
	if err != nil {
		s.logger.Warn("Model call failed", zap.String("action", action), zap.Error(err))
		return "", err
	}
	s.logger.Info("Action completed",
		zap.String("action", action),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return text, nil
}

func readingValues(reading domain.Reading) map[string]any {
	return map[string]any{
		"current_timestamp": reading.Timestamp,
		"question":          reading.Question,
		"tarot_draw_input":  reading.Spread.PositionDraw(),
	}
}

// Wait blocks until background persistence has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
