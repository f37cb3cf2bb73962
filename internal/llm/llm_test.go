package llm

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

	"github.com/Harshitk-cp/speclens/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArray(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"plain", `[{"a":1},{"a":2}]`, 2},
		{"empty", `[]`, 0},
		{"fenced", "```json\n[{\"a\":1}]\n```", 1},
		{"trailing commas", `[{"a":1,},{"a":2},]`, 2},
		{"prose around", "Here you go:\n[{\"a\":1}, {\"a\":2}]\nLet me know.", 2},
		{"wrapped object", `{"statements":[{"a":1}]}`, 1},
		{"single array field", `{"facts":[{"a":1},{"a":2}],"note":"x"}`, 2},
		{"statements preferred", `{"notes":[{"a":1}],"statements":[{"a":1},{"a":2},{"a":3}]}`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArray(tt.input)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestParseArray_Garbage(t *testing.T) {
	_, err := ParseArray("I could not find any facts.")
	assert.Error(t, err)
}

func TestParseArray_AmbiguousObject(t *testing.T) {
	_, err := ParseArray(`{"a":[{"x":1}],"b":[{"x":2},{"x":3}]}`)
	assert.ErrorIs(t, err, ErrAmbiguousArray)

	_, err = ParseArray(`{"count":2,"label":"none"}`)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestParseJSON_Object(t *testing.T) {
	q, err := ParseJSON[GeneratedQuestion]("```\n{\"text\":\"Which regions?\",\"help_text\":\"h\",\"example_answer\":\"EU\",}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Which regions?", q.Text)
	assert.Equal(t, "EU", q.ExampleAnswer)
}

func TestMockClient_QueueThenDefault(t *testing.T) {
	m := NewMockClient()
	m.Response = "default"
	m.Enqueue("first", nil).Enqueue("", errors.New("boom"))

	ctx := context.Background()
	out, err := m.Complete(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	_, err = m.Complete(ctx, "p2", 10)
	assert.EqualError(t, err, "boom")

	out, err = m.Complete(ctx, "p3", 10)
	require.NoError(t, err)
	assert.Equal(t, "default", out)

	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, "p2", m.Calls[1].Prompt)
}

func TestGuardedClient_Timeout(t *testing.T) {
	m := NewMockClient()
	m.Handler = func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	g := NewGuardedClient(m, 20*time.Millisecond, 2, nil)

	_, err := g.Complete(context.Background(), "slow", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLLMTimeout)
	assert.Equal(t, domain.KindLLMTimeout, domain.KindOf(err))
}

func TestGuardedClient_CallerCancel(t *testing.T) {
	m := NewMockClient()
	m.Handler = func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	g := NewGuardedClient(m, time.Minute, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := g.Complete(ctx, "cancelled", 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrLLMTimeout)
}

func TestGuardedClient_CapsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	m := NewMockClient()
	m.Handler = func(ctx context.Context, _ string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "[]", nil
	}
	g := NewGuardedClient(m, time.Second, 2, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Complete(context.Background(), "p", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  hello  "}}]}`))
	}))
	defer srv.Close()

	c := NewCerebrasClient("key", Options{BaseURL: srv.URL, Model: "test-model"})
	out, err := c.Complete(context.Background(), "prompt", 64)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Equal(t, "prompt", got.Messages[0].Content)
}

func TestGeminiClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/gemini-test:generateContent"))
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[]"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("key", Options{BaseURL: srv.URL, Model: "gemini-test"})
	out, err := c.Complete(context.Background(), "prompt", 64)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ProviderAnthropic, "", Options{})
	assert.Error(t, err)

	c, err := NewClient(ProviderMock, "", Options{})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	_, err = NewClient("bogus", "k", Options{})
	assert.Error(t, err)
}

func TestExtractionPrompt(t *testing.T) {
	p := ExtractionPrompt(ExtractionPromptInput{
		DomainName:   "Software Project",
		Categories:   []string{"goals", "tech_stack"},
		QuestionID:   "tech-database",
		QuestionText: "Which database?",
		Answer:       "Postgres",
		Existing:     []string{"goals.problem = booking"},
	})
	assert.Contains(t, p, "goals, tech_stack")
	assert.Contains(t, p, "- goals.problem = booking")
	assert.Contains(t, p, "Postgres")
}
