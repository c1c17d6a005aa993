package reading

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
	"github.com/kapu/taro-go/internal/service/database"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	system string
	user   string
	opts   domain.DecodeOptions
}

type fakeModel struct {
	mu    sync.Mutex
	calls []call
	reply func(system, user string) (string, error)
}

func (f *fakeModel) Chat(ctx context.Context, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{system: messages[0].Content, user: messages[1].Content, opts: opts})
	f.mu.Unlock()
	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(messages[0].Content, messages[1].Content)
}

func (f *fakeModel) Defaults() domain.DecodeOptions {
	return domain.DefaultDecodeOptions()
}

func (f *fakeModel) DecodeWith(overrides map[string]any) (domain.DecodeOptions, error) {
	return domain.DefaultDecodeOptions().Apply(overrides)
}

func (f *fakeModel) callsMatching(fragment string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if strings.Contains(c.system, fragment) {
			out = append(out, c)
		}
	}
	return out
}

type failingStore struct{}

func (failingStore) SaveSession(ctx context.Context, session domain.Session) error {
	return errors.New("db down")
}

func (failingStore) UpsertUser(ctx context.Context, user domain.UserRef) error {
	return errors.New("db down")
}

func newTestService(t *testing.T, model *fakeModel, sessions SessionStore, decoders DecoderStates) *Service {
	t.Helper()
	registry, err := prompt.LoadRegistry("", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	svc := NewService(Deps{
		Catalog:   domain.DefaultCatalog(),
		Templates: registry,
		Model:     model,
		Sessions:  sessions,
		Decoders:  decoders,
		Logger:    zap.NewNop(),
	})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	svc.newID = func() string { return "session-1" }
	return svc
}

func threeCardRequest() Request {
	return Request{
		Question:    "Should I move abroad?",
		ReadingMode: "three_card",
		DrawnCards:  []string{"ace of wands", " nine of cups ", "king of swords"},
	}
}

func TestNewReading(t *testing.T) {
	svc := newTestService(t, &fakeModel{}, database.NewMemoryStore(), database.NewMemoryStore())

	reading, err := svc.NewReading(threeCardRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Timestamp != "2026-03-01 09:30:00" {
		t.Fatalf("unexpected default timestamp: %q", reading.Timestamp)
	}
	if reading.Spread.DrawnCards[1] != "nine of cups" {
		t.Fatalf("card not cleaned: %q", reading.Spread.DrawnCards[1])
	}

	req := threeCardRequest()
	req.DrawnCards = req.DrawnCards[:2]
	_, err = svc.NewReading(req)
	var mismatch *domain.MismatchedCardsError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchedCardsError, got %v", err)
	}

	req = threeCardRequest()
	req.ReadingMode = "tea_leaves"
	_, err = svc.NewReading(req)
	var notFound *domain.ModeNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ModeNotFoundError, got %v", err)
	}

	req = threeCardRequest()
	req.Question = strings.Repeat("?", 1001)
	if _, err = svc.NewReading(req); err == nil {
		t.Fatal("expected an error for an overlong question")
	}
}

func TestStatsDoesNotCallModel(t *testing.T) {
	model := &fakeModel{}
	svc := newTestService(t, model, database.NewMemoryStore(), database.NewMemoryStore())
	reading, _ := svc.NewReading(threeCardRequest())

	insights, err := svc.Stats(reading)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if insights.TotalCourts != 1 || insights.WandCount != 1 || insights.CupCount != 1 || insights.SwordCount != 1 {
		t.Fatalf("unexpected insights: %+v", insights)
	}
	if len(model.calls) != 0 {
		t.Fatal("stats must not call the model")
	}
}

func TestInsightUsesDefaults(t *testing.T) {
	model := &fakeModel{}
	svc := newTestService(t, model, database.NewMemoryStore(), database.NewMemoryStore())
	reading, _ := svc.NewReading(threeCardRequest())

	got, err := svc.Insight(context.Background(), prompt.ActionNumerology, reading)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != prompt.ActionNumerology || got.Response != "ok" {
		t.Fatalf("unexpected prediction: %+v", got)
	}
	if len(model.calls) != 1 || model.calls[0].opts.NumPredict != 300 {
		t.Fatalf("unexpected calls: %+v", model.calls)
	}
	if !strings.Contains(model.calls[0].user, "Past:\tace of wands") {
		t.Fatalf("position draw missing from user turn: %q", model.calls[0].user)
	}

	_, err = svc.Insight(context.Background(), "pred_combination", reading)
	var unavailable *prompt.ActionUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ActionUnavailableError, got %v", err)
	}
}

func TestStoryTell(t *testing.T) {
	model := &fakeModel{reply: func(system, user string) (string, error) {
		switch {
		case strings.Contains(system, "Read the spread as a whole"):
			return "**Overview**\nyes\n\n**Combination Highlights**\n- Ace and King: drive\n\n**Possible insights**\nact", nil
		case strings.Contains(system, "specialises in numerology"):
			return "numbers favour you", nil
		default:
			return "once upon a time", nil
		}
	}}
	svc := newTestService(t, model, database.NewMemoryStore(), database.NewMemoryStore())
	reading, _ := svc.NewReading(threeCardRequest())
	user := domain.UserRef{Username: "ana", FirstName: "ana", LastName: "lee", BirthDate: "1990-02-14"}

	story, err := svc.StoryTell(context.Background(), user, reading)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if story.Response != "once upon a time" || story.CombinationHighlights != "- Ace and King: drive" {
		t.Fatalf("unexpected story: %+v", story)
	}

	final := model.callsMatching("storyteller")
	if len(final) != 1 {
		t.Fatalf("expected one story call, got %d", len(final))
	}
	if final[0].opts.NumPredict != 500 {
		t.Fatalf("story call should use 500 tokens, got %d", final[0].opts.NumPredict)
	}
	for _, want := range []string{"Full Name: Ana Lee", "Birth Date: 1990-02-14", "numbers favour you", "Ace and King"} {
		if !strings.Contains(final[0].user, want) {
			t.Fatalf("story input missing %q:\n%s", want, final[0].user)
		}
	}
	if len(model.calls) != 3 {
		t.Fatalf("expected three model calls, got %d", len(model.calls))
	}
}

func TestStoryTellFallbackHighlights(t *testing.T) {
	svc := newTestService(t, &fakeModel{}, database.NewMemoryStore(), database.NewMemoryStore())
	reading, _ := svc.NewReading(threeCardRequest())

	story, err := svc.StoryTell(context.Background(), domain.UserRef{Username: "ana"}, reading)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if story.CombinationHighlights != "No combination highlights found." {
		t.Fatalf("unexpected fallback: %q", story.CombinationHighlights)
	}
}

func TestStoryTellFailsWhenSubStepFails(t *testing.T) {
	boom := errors.New("model unavailable")
	model := &fakeModel{reply: func(system, user string) (string, error) {
		if strings.Contains(system, "specialises in numerology") {
			return "", boom
		}
		return "ok", nil
	}}
	svc := newTestService(t, model, database.NewMemoryStore(), database.NewMemoryStore())
	reading, _ := svc.NewReading(threeCardRequest())

	_, err := svc.StoryTell(context.Background(), domain.UserRef{Username: "ana"}, reading)
	if !errors.Is(err, boom) {
		t.Fatalf("expected sub-step error, got %v", err)
	}
	if len(model.callsMatching("storyteller")) != 0 {
		t.Fatal("story_tell must not run after a failed sub-step")
	}
}

func TestPredictPersistsSession(t *testing.T) {
	store := database.NewMemoryStore()
	model := &fakeModel{reply: func(system, user string) (string, error) { return "a calm crossing", nil }}
	svc := newTestService(t, model, store, store)
	reading, _ := svc.NewReading(threeCardRequest())
	user := domain.UserRef{Username: "ana", FirstName: "Ana", LastName: "Lee"}

	got, err := svc.Predict(context.Background(), PredictionRequest{User: user, Reading: reading})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != prompt.ActionPrediction || got.Response != "a calm crossing" {
		t.Fatalf("unexpected prediction: %+v", got)
	}

	if err := svc.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	sessions := store.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected one stored session, got %d", len(sessions))
	}
	if sessions[0].ID != "session-1" || sessions[0].Insights.NumCards != 3 || sessions[0].Decode.Temperature != 0.8 {
		t.Fatalf("unexpected session: %+v", sessions[0])
	}
	if _, ok := store.User("ana"); !ok {
		t.Fatal("user not upserted")
	}
}

func TestPredictFeedbackDriftsDecoderState(t *testing.T) {
	store := database.NewMemoryStore()
	model := &fakeModel{}
	svc := newTestService(t, model, store, store)
	reading, _ := svc.NewReading(threeCardRequest())
	user := domain.UserRef{Username: "ana", FirstName: "Ana", LastName: "Lee"}

	_, err := svc.Predict(context.Background(), PredictionRequest{
		User:     user,
		Reading:  reading,
		Feedback: &domain.Feedback{MoreCreative: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.calls[0].opts.Temperature != 1.3 || model.calls[0].opts.TopK != 60 {
		t.Fatalf("drift not applied: %+v", model.calls[0].opts)
	}

	// The next request without feedback reuses the stored state.
	_, _ = svc.Predict(context.Background(), PredictionRequest{User: user, Reading: reading})
	if model.calls[1].opts.Temperature != 1.3 {
		t.Fatalf("stored state not reused: %v", model.calls[1].opts.Temperature)
	}

	// Upvote alone carries no drift.
	_, _ = svc.Predict(context.Background(), PredictionRequest{User: user, Reading: reading, Feedback: &domain.Feedback{Upvote: true}})
	if model.calls[2].opts.Temperature != 1.3 {
		t.Fatalf("upvote changed the state: %v", model.calls[2].opts.Temperature)
	}

	_ = svc.Wait(context.Background())
}

func TestPredictPersistenceFailureIsNotFatal(t *testing.T) {
	svc := newTestService(t, &fakeModel{}, failingStore{}, database.NewMemoryStore())
	reading, _ := svc.NewReading(threeCardRequest())

	if _, err := svc.Predict(context.Background(), PredictionRequest{User: domain.UserRef{Username: "ana"}, Reading: reading}); err != nil {
		t.Fatalf("persistence failure leaked to caller: %v", err)
	}
	if err := svc.Wait(context.Background()); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
}
