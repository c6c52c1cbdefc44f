package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/interview-engine/internal/adapter/ai/provider"
	"github.com/prepwise/interview-engine/internal/domain"
)

func TestNewOpenAICompatRequiresKey(t *testing.T) {
	t.Parallel()
	_, err := provider.NewOpenAICompat("groq", "", "", "llama")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestOpenAICompatGenerate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	p, err := provider.NewOpenAICompat("groq", "test-key", srv.URL, "llama-3.3-70b-versatile")
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name())

	out, err := p.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestOpenAICompatGenerateRateLimited(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"tokens"}}`))
	}))
	defer srv.Close()

	p, err := provider.NewOpenAICompat("together", "k", srv.URL, "m")
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderRateLimited)
}

func TestOpenAICompatGenerateServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := provider.NewOpenAICompat("groq", "k", srv.URL, "m")
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestOpenAICompatGenerateNoChoices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p, err := provider.NewOpenAICompat("groq", "k", srv.URL, "m")
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrProvider)
}
