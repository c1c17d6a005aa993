package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
	"github.com/kapu/taro-go/internal/service/ai"
	"github.com/kapu/taro-go/internal/service/astrology"
	"github.com/kapu/taro-go/internal/service/database"
	"github.com/kapu/taro-go/internal/service/reading"
)

type stubModel struct {
	reply    string
	err      error
	setupErr error
}

func (m *stubModel) Chat(ctx context.Context, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error) {
	return m.reply, m.err
}

func (m *stubModel) Defaults() domain.DecodeOptions { return domain.DefaultDecodeOptions() }

func (m *stubModel) DecodeWith(overrides map[string]any) (domain.DecodeOptions, error) {
	return domain.DefaultDecodeOptions().Apply(overrides)
}

func (m *stubModel) Setup(ctx context.Context) error { return m.setupErr }
func (m *stubModel) Model() string                   { return "llama3.2" }
func (m *stubModel) ProviderName() string            { return "ollama" }

type stubAstrologer struct {
	err error
}

func (a stubAstrologer) Compute(ctx context.Context, profile domain.UserProfile) (domain.Astrology, error) {
	if a.err != nil {
		return domain.Astrology{}, a.err
	}
	return domain.Astrology{SunSign: "Aquarius", MoonSign: "Leo", RisingSign: "Unknown"}, nil
}

type fixture struct {
	server   *Server
	readings *reading.Service
	store    *database.MemoryStore
	model    *stubModel
}

func newFixture(t *testing.T, cfg Config, astro Astrologer) *fixture {
	t.Helper()
	registry, err := prompt.LoadRegistry("", zap.NewNop())
	require.NoError(t, err)

	model := &stubModel{reply: "the cards say yes"}
	store := database.NewMemoryStore()
	readings := reading.NewService(reading.Deps{
		Catalog:   domain.DefaultCatalog(),
		Templates: registry,
		Model:     model,
		Sessions:  store,
		Decoders:  store,
		Logger:    zap.NewNop(),
	})
	t.Cleanup(func() { _ = readings.Wait(context.Background()) })

	srv := New(cfg, Deps{Readings: readings, Astrology: astro, Model: model, Logger: zap.NewNop()})
	return &fixture{server: srv, readings: readings, store: store, model: model}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

var threeCards = map[string]any{
	"question":     "Will it rain?",
	"reading_mode": "THREE_CARD",
	"drawn_cards":  []string{"ace of wands", " nine of cups ", "two of swords"},
}

func TestRoot(t *testing.T) {
	f := newFixture(t, Config{Debug: true}, stubAstrologer{})
	rec := f.do(http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Taro Active. Debug mode: true", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestReady(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.model.setupErr = ai.NewBadSetupError("ollama", "llama3.2", []string{"mistral"})
	rec = f.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ai.CodeBadSetup, decodeError(t, rec).Code)
}

func TestModes(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodGet, "/modes", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Modes []domain.ReadingMode `json:"modes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Modes, 11)
}

func TestInsightStats(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodPost, "/insight_stats/", threeCards)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var insights domain.TarotInsights
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &insights))
	assert.Equal(t, 1, insights.WandCount)
	assert.Equal(t, 1, insights.CupCount)
	assert.Equal(t, 1, insights.SwordCount)
	assert.Equal(t, 0, insights.TotalCourts)
	assert.InDelta(t, 1.0/3.0, insights.Stats["wand"], 1e-9)
}

func TestInsightStatsRejectsEmptyDraw(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodPost, "/insight_stats/", map[string]any{"reading_mode": "three_card", "drawn_cards": []string{}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReadingValidationErrors(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})

	rec := f.do(http.MethodPost, "/insight_combination/", map[string]any{
		"question": "q", "reading_mode": "one_card", "drawn_cards": []string{"a", "b", "c"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, domain.CodeCardCountMismatch, decodeError(t, rec).Code)

	rec = f.do(http.MethodPost, "/insight_combination/", map[string]any{
		"question": "q", "reading_mode": "tea_leaves", "drawn_cards": []string{"a"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.CodeModeNotFound, decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/insight_numerology/", strings.NewReader("{not json"))
	out := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(out, req)
	assert.Equal(t, http.StatusUnprocessableEntity, out.Code)
}

func TestInsightCombination(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodPost, "/insight_combination/", threeCards)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out domain.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "insight_combination", out.Action)
	assert.Equal(t, "the cards say yes", out.Response)
}

func TestModelFailureMapsToStatus(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	f.model.err = ai.NewConnectionError("http://localhost:11434", context.DeadlineExceeded)

	rec := f.do(http.MethodPost, "/insight_numerology/", threeCards)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStoryTell(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodPost, "/story_tell/", map[string]any{
		"user":    map[string]any{"username": "ana", "first_name": "ana", "last_name": "lee"},
		"reading": threeCards,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out reading.Story
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "story_tell", out.Action)
	assert.Equal(t, "No combination highlights found.", out.CombinationHighlights)
}

func TestPredictionPersistsSession(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodPost, "/prediction/", map[string]any{
		"user":     map[string]any{"username": "ana", "first_name": "Ana", "last_name": "Lee"},
		"reading":  threeCards,
		"feedback": map[string]any{"more_creative": true},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, f.readings.Wait(context.Background()))

	sessions := f.store.Sessions()
	require.Len(t, sessions, 1)
	assert.InDelta(t, 1.3, sessions[0].Decode.Temperature, 1e-9)
	assert.True(t, sessions[0].Feedback.MoreCreative)
}

func TestPredictionRequiresUsername(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodPost, "/prediction/", map[string]any{"reading": threeCards})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUserAstrology(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodPost, "/user_astrology/", map[string]any{
		"username":    "ana",
		"first_name":  "ana",
		"last_name":   "lee",
		"birth_date":  "14-02-1990",
		"birth_place": "Australia/Sydney",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Ana", out["first_name"])
	assert.Equal(t, "1990-02-14", out["birth_date"])
	assert.Equal(t, "Australia/Sydney", out["timezone"])
	assert.Equal(t, "Aquarius", out["sun_sign"])
	assert.NotContains(t, out, "birth_time")
}

func TestUserAstrologyErrors(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	rec := f.do(http.MethodPost, "/user_astrology/", map[string]any{"username": "ana", "birth_date": "1990/02/14"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	f = newFixture(t, Config{}, stubAstrologer{err: astrology.NewGeocodeError("Atlantis", nil)})
	rec = f.do(http.MethodPost, "/user_astrology/", map[string]any{"username": "ana", "birth_date": "14-02-1990", "birth_place": "Atlantis"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, astrology.CodeGeocode, decodeError(t, rec).Code)
}

func TestRateLimitOnModelRoutes(t *testing.T) {
	f := newFixture(t, Config{RateLimit: true}, stubAstrologer{})

	var limited int
	for i := 0; i < 8; i++ {
		if f.do(http.MethodPost, "/insight_numerology/", threeCards).Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Positive(t, limited)

	// Stats never touch the model and are not limited.
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/insight_stats/", threeCards).Code)
}

func TestIPRateLimiterForgetsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(rate.Limit(1), 1, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(2 * time.Minute)
	assert.True(t, l.Allow("10.0.0.3"))
	assert.Equal(t, 1, l.Len())
}

func TestRecoveryReturnsErrorPayload(t *testing.T) {
	f := newFixture(t, Config{}, stubAstrologer{})
	f.server.engine.GET("/panic", func(c *gin.Context) { panic("boom") })

	rec := f.do(http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec).Error)
}
