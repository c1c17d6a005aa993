package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/internal/prompt"
	taroerrors "github.com/kapu/taro-go/pkg/errors"
)

func newOllamaServer(t *testing.T, models []string, reply string, gotOptions *map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		var resp api.ListResponse
		for _, m := range models {
			resp.Models = append(resp.Models, api.ListModelResponse{Name: m, Model: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Stream == nil || *req.Stream {
			http.Error(w, "stream must be false", http.StatusBadRequest)
			return
		}
		if gotOptions != nil {
			*gotOptions = req.Options
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func mustOllama(t *testing.T, baseURL string, httpClient *http.Client, logger *zap.Logger) *OllamaProvider {
	t.Helper()
	p, err := NewOllamaProvider(baseURL, httpClient, logger)
	if err != nil {
		t.Fatalf("unexpected provider error: %v", err)
	}
	return p
}

func newClient(p Provider, model string) *ModelClient {
	return NewModelClient(p, ClientConfig{
		ModelID:        model,
		Defaults:       domain.DefaultDecodeOptions(),
		MaxConcurrency: 2,
	}, zap.NewNop())
}

var testMessages = []prompt.ChatMessage{
	{Role: prompt.RoleSystem, Content: "sys"},
	{Role: prompt.RoleUser, Content: "hi"},
}

func TestSetupSucceedsWhenModelListed(t *testing.T) {
	srv := newOllamaServer(t, []string{"llama3.2:latest"}, "", nil)
	client := newClient(mustOllama(t, srv.URL, srv.Client(), zap.NewNop()), "llama3.2")

	if err := client.Setup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !client.Ready() {
		t.Fatal("expected client to be ready")
	}
}

func TestSetupBadSetupWhenModelMissing(t *testing.T) {
	srv := newOllamaServer(t, []string{"mistral:latest"}, "", nil)
	client := newClient(mustOllama(t, srv.URL, srv.Client(), zap.NewNop()), "llama3.2")

	err := client.Setup(context.Background())

	var badSetup *BadSetupError
	if !errors.As(err, &badSetup) {
		t.Fatalf("expected BadSetupError, got %v", err)
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		t.Fatal("bad setup must not look like a connection error")
	}
	if badSetup.Model != "llama3.2" {
		t.Fatalf("unexpected model in error: %s", badSetup.Model)
	}
}

func TestSetupConnectionErrorWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := newClient(mustOllama(t, url, nil, zap.NewNop()), "llama3.2")
	err := client.Setup(context.Background())

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	var badSetup *BadSetupError
	if errors.As(err, &badSetup) {
		t.Fatal("connection failure must not look like a bad setup")
	}
	if status, _ := taroerrors.StatusOf(err); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
}

func TestOllamaChatSendsDecodeOptions(t *testing.T) {
	var options map[string]any
	srv := newOllamaServer(t, []string{"llama3.2"}, "the cards say yes", &options)
	client := newClient(mustOllama(t, srv.URL, srv.Client(), zap.NewNop()), "llama3.2")

	opts, err := client.DecodeWith(map[string]any{"num_predict": 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := client.Chat(context.Background(), testMessages, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "the cards say yes" {
		t.Fatalf("unexpected reply: %q", got)
	}
	if options["num_predict"] != float64(500) || options["seed"] != float64(42) || options["num_ctx"] != float64(2048) {
		t.Fatalf("unexpected options on the wire: %v", options)
	}
	if client.Defaults().NumPredict != 300 {
		t.Fatal("per-call override leaked into defaults")
	}
}

func TestOllamaChatServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"m","model":"m"}]}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model crashed"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newClient(mustOllama(t, srv.URL, srv.Client(), zap.NewNop()), "m")
	_, err := client.Chat(context.Background(), testMessages, client.Defaults())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
	if status, _ := taroerrors.StatusOf(err); status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
}

func TestOllamaChatErrorCarriesUpstreamMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'ghost' not found"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	provider := mustOllama(t, srv.URL, srv.Client(), zap.NewNop())
	_, err := provider.Chat(context.Background(), "ghost", testMessages, domain.DefaultDecodeOptions())

	var apiErr *taroerrors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Context["status"] != http.StatusNotFound {
		t.Fatalf("unexpected upstream status: %v", apiErr.Context["status"])
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		t.Fatal("an upstream answer must not look like a connection failure")
	}
}

func TestResponseErrorTruncatesBody(t *testing.T) {
	body := strings.Repeat("x", constants.InputLimits.MaxLoggedBody*2)
	err := newResponseError("Ollama", http.StatusInternalServerError, body)

	got, _ := err.Context["body"].(string)
	if len([]rune(got)) != constants.InputLimits.MaxLoggedBody+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("body not truncated: %d runes", len([]rune(got)))
	}
}

func TestNewOllamaProviderRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost", "://nope"} {
		if _, err := NewOllamaProvider(raw, nil, zap.NewNop()); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestDecodeWithUnknownKey(t *testing.T) {
	client := newClient(&fakeProvider{}, "m")

	_, err := client.DecodeWith(map[string]any{"mirostat_eta": 0.1})

	var unknown *domain.UnknownDecodeOptionError
	if !errors.As(err, &unknown) || unknown.Key != "mirostat_eta" {
		t.Fatalf("expected UnknownDecodeOptionError, got %v", err)
	}
}

type fakeProvider struct {
	models   []string
	reply    string
	err      error
	delay    time.Duration
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) Endpoint() string { return "fake://" }

func (f *fakeProvider) ListModels(ctx context.Context) ([]string, error) {
	return f.models, nil
}

func (f *fakeProvider) Chat(ctx context.Context, model string, messages []prompt.ChatMessage, opts domain.DecodeOptions) (string, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return f.reply, f.err
}

func TestChatBoundsConcurrency(t *testing.T) {
	provider := &fakeProvider{models: []string{"m"}, reply: "ok", delay: 20 * time.Millisecond}
	client := newClient(provider, "m")

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Chat(context.Background(), testMessages, client.Defaults())
		}()
	}
	wg.Wait()

	if provider.peak > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", provider.peak)
	}
}

func TestCircuitBreakerSuspendsCalls(t *testing.T) {
	provider := &fakeProvider{models: []string{"m"}, err: errors.New("boom")}
	client := NewModelClient(provider, ClientConfig{
		ModelID:        "m",
		Defaults:       domain.DefaultDecodeOptions(),
		MaxConcurrency: 1,
		CircuitBreaker: true,
	}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, _ = client.Chat(context.Background(), testMessages, client.Defaults())
	}

	_, err := client.Chat(context.Background(), testMessages, client.Defaults())
	if _, code := taroerrors.StatusOf(err); code != CodeModelClosed {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
}

func TestOpenAIProviderRoundTrip(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama-3.2-3b","object":"model","created":0,"owned_by":"local"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"llama-3.2-3b",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"reply"}}],` +
			`"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newClient(NewOpenAIProvider(srv.URL+"/v1", "", srv.Client(), zap.NewNop()), "llama-3.2-3b")

	got, err := client.Chat(context.Background(), testMessages, client.Defaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "reply" {
		t.Fatalf("unexpected reply: %q", got)
	}
	if body["top_k"] != float64(50) || body["seed"] != float64(42) || body["max_tokens"] != float64(300) {
		t.Fatalf("unexpected request body: %v", body)
	}
}

func TestHasModel(t *testing.T) {
	cases := []struct {
		available []string
		model     string
		want      bool
	}{
		{[]string{"llama3.2:latest"}, "llama3.2", true},
		{[]string{"llama3.2"}, "llama3.2:latest", true},
		{[]string{"models/gemini-2.5-flash"}, "gemini-2.5-flash", true},
		{[]string{"llama3.2:1b"}, "llama3.2", false},
		{nil, "llama3.2", false},
	}
	for _, tc := range cases {
		if got := hasModel(tc.available, tc.model); got != tc.want {
			t.Fatalf("hasModel(%v, %q) = %v", tc.available, tc.model, got)
		}
	}
}
