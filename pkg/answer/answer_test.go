package answer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier_Categories(t *testing.T) {
	c := NewKeywordClassifier(nil)
	ctx := context.Background()

	tests := []struct {
		text     string
		category string
	}{
		{"Explain quicksort and its complexity using recursion", CategoryAlgorithm},
		{"How would you implement a trie and a heap?", CategoryDataStructure},
		{"Design a URL shortener with a load balancer and sharding", CategorySystemDesign},
		{"Tell me about a time you had a conflict with your team", CategoryBehavioral},
		{"What is a deadlock between two threads holding a mutex?", CategoryOS},
		{"Walk me through the TCP handshake and DNS lookup", CategoryNetworking},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			result, err := c.Classify(ctx, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.category, result.Category)
			assert.GreaterOrEqual(t, result.Confidence, 0.7)
			assert.NotEmpty(t, result.Keywords)
		})
	}
}

func TestKeywordClassifier_Confidence(t *testing.T) {
	c := NewKeywordClassifier(nil)
	ctx := context.Background()

	unknown, err := c.Classify(ctx, "what did you have for lunch")
	require.NoError(t, err)
	assert.Equal(t, CategoryUnknown, unknown.Category)
	assert.Zero(t, unknown.Confidence)

	single, err := c.Classify(ctx, "say something about recursion")
	require.NoError(t, err)
	assert.Equal(t, CategoryAlgorithm, single.Category)
	assert.Less(t, single.Confidence, 0.7, "one keyword stays below the default gate")

	plural, err := c.Classify(ctx, "compare stacks and queues")
	require.NoError(t, err)
	assert.Equal(t, CategoryDataStructure, plural.Category)
	assert.Equal(t, 0.75, plural.Confidence)
}

func TestKeywordClassifier_TieIsPenalized(t *testing.T) {
	c := NewKeywordClassifier(map[string][]string{
		"a": {"alpha"},
		"b": {"beta"},
	})

	result, err := c.Classify(context.Background(), "alpha beta")
	require.NoError(t, err)
	assert.Equal(t, "a", result.Category, "ties go to the first category")
	assert.InDelta(t, 0.5-tiePenalty, result.Confidence, 1e-9)
}

func TestKeywordClassifier_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewKeywordClassifier(nil).Classify(ctx, "quicksort")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LanguageCPP, DetectLanguage("reverse a linked list in C++"))
	assert.Equal(t, LanguageJava, DetectLanguage("Write it in Java please"))
	assert.Equal(t, LanguagePython, DetectLanguage("python solution for two sum"))
	assert.Equal(t, LanguageGo, DetectLanguage("implement it in golang"))
	assert.Equal(t, LanguageGeneric, DetectLanguage("explain the approach"))
}

func TestTemplateGenerator(t *testing.T) {
	g, err := NewTemplateGenerator(nil)
	require.NoError(t, err)

	classification := pipeline.Classification{Category: CategoryAlgorithm, Confidence: 0.9, Keywords: []string{"binary search"}}
	answer, err := g.Generate(context.Background(), classification, "binary search in java")
	require.NoError(t, err)

	assert.Equal(t, CategoryAlgorithm, answer.Category)
	assert.Equal(t, "binary search in java", answer.Question)
	assert.Contains(t, answer.Body, "using binary search")
	assert.Contains(t, answer.Body, "Language: java")
	assert.False(t, answer.GeneratedAt.IsZero())

	fallback, err := g.Generate(context.Background(), pipeline.Classification{Category: "astrology"}, "what is my sign")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fallback.Body, "Answer outline for: what is my sign"))
}

func TestTemplateGenerator_RequiresDefault(t *testing.T) {
	_, err := NewTemplateGenerator(map[string]string{"algorithm": "x"})
	assert.Error(t, err)

	_, err = NewTemplateGenerator(map[string]string{"default": "{{.Missing"})
	assert.Error(t, err)
}

func newChatServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIGenerator(t *testing.T) {
	server := newChatServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Use two pointers.  "}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14}
	}`)

	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/"}, nil, nil)
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), pipeline.Classification{Category: CategoryAlgorithm, Confidence: 0.8}, "two sum")
	require.NoError(t, err)
	assert.Equal(t, "Use two pointers.", answer.Body)
	assert.Equal(t, 0.8, answer.Confidence)
}

func TestOpenAIGenerator_FallsBackToTemplates(t *testing.T) {
	server := newChatServer(t, http.StatusBadRequest, `{"error": {"message": "bad request", "type": "invalid_request_error"}}`)

	templates, err := NewTemplateGenerator(nil)
	require.NoError(t, err)

	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/"}, templates, nil)
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), pipeline.Classification{Category: CategoryBehavioral}, "tell me about a time you failed")
	require.NoError(t, err)
	assert.Contains(t, answer.Body, "Situation:")

	noFallback, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/"}, nil, nil)
	require.NoError(t, err)
	_, err = noFallback.Generate(context.Background(), pipeline.Classification{Category: CategoryBehavioral}, "x")
	assert.Error(t, err)
}

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{}, nil, nil)
	assert.Error(t, err)
}
