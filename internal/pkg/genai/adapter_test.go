package genai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/devhance_server/internal/pkg/apperr"
	"github.com/qs3c/devhance_server/internal/pkg/logger"
)

type memArchiver struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memArchiver) Archive(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func TestAdapter_GenerateCaseStudy(t *testing.T) {
	var calls int
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		assert.Contains(t, prompt, "Repository: acme/widget")
		return "```json\n{\"title\":\"Widget\"}\n```", nil
	})

	a := NewAdapter(gen, nil, logger.Nop())
	out, err := a.GenerateCaseStudy(context.Background(), CaseStudyInput{Context: "Repository: acme/widget"})

	require.NoError(t, err)
	assert.Equal(t, "Widget", out.Title)
	assert.Equal(t, 1, calls)
}

func TestAdapter_ServiceError(t *testing.T) {
	var calls int
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", errors.New("503 unavailable")
	})

	a := NewAdapter(gen, nil, nil)
	_, err := a.GenerateVCReport(context.Background(), VCReportInput{})

	var svcErr *apperr.GenerationServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, ModeVCReport, svcErr.Mode)
	assert.Equal(t, 1, calls, "no automatic retry")
}

func TestAdapter_ParseErrorArchivesReply(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return `{"title":"Widget"} and some closing remarks`, nil
	})
	archive := &memArchiver{}

	a := NewAdapter(gen, archive, logger.Nop())
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, err := a.GenerateCaseStudy(context.Background(), CaseStudyInput{})

	var parseErr *apperr.GenerationParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, ModeCaseStudy, parseErr.Mode)

	data, ok := archive.objects["generation/case_study/20260102T030405.000Z.txt"]
	require.True(t, ok)
	assert.Contains(t, string(data), "closing remarks")
}

func TestGeminiClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"title\":"},{"text":"\"W\"}"}]}}]}`))
	}))
	defer server.Close()

	g := NewGeminiClient(server.URL, "gemini-test", "k", 5*time.Second)
	out, err := g.Generate(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, `{"title":"W"}`, out)
}

func TestGeminiClient_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		g := NewGeminiClient("http://unused", "m", "", time.Second)
		_, err := g.Generate(context.Background(), "hi")
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})

	t.Run("non 2xx", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := NewGeminiClient(server.URL, "m", "k", time.Second).Generate(context.Background(), "hi")
		assert.ErrorContains(t, err, "429")
	})

	t.Run("no candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates":[]}`))
		}))
		defer server.Close()

		_, err := NewGeminiClient(server.URL, "m", "k", time.Second).Generate(context.Background(), "hi")
		assert.Error(t, err)
	})
}
