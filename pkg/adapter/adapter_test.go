package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/taskgate/pkg/registry"
)

func TestMockAdapter(t *testing.T) {
	mock := NewMockAdapterWithResponses(map[string]string{
		"known prompt": "canned answer",
	}, "fallback:")

	got, err := mock.Generate(context.Background(), "mock-1", "known prompt")
	require.NoError(t, err)
	require.Equal(t, "canned answer", got)

	got, err = mock.Generate(context.Background(), "mock-1", "other prompt")
	require.NoError(t, err)
	require.Contains(t, got, "fallback:")
	require.Contains(t, got, "other prompt")

	require.Equal(t, []string{"known prompt", "other prompt"}, mock.Calls)

	mock.Err = errors.New("injected")
	_, err = mock.Generate(context.Background(), "mock-1", "prompt")
	require.Error(t, err)
}

func TestDispatcher(t *testing.T) {
	mock := NewMockAdapter()
	d := NewDispatcher(map[string]Adapter{"local": mock}, time.Second)

	t.Run("routes to owning adapter", func(t *testing.T) {
		got, err := d.CallModel(context.Background(),
			registry.Model{ID: "mock-1", Provider: registry.ProviderLocal}, "hello")
		require.NoError(t, err)
		require.Contains(t, got, "hello")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := d.CallModel(context.Background(),
			registry.Model{ID: "x", Provider: "nonexistent"}, "hello")
		require.Error(t, err)
		require.Contains(t, err.Error(), "nonexistent")
	})
}

func TestCatalog(t *testing.T) {
	local := NewMockAdapter()
	paid := NewMockAdapter()
	paid.Catalog = []registry.Model{
		{ID: "paid-1", Provider: registry.ProviderOpenAI,
			Cost: registry.TokenCost{Prompt: 0.001, Completion: 0.002}},
	}

	c := NewCatalog(map[string]Adapter{"local": local, "openai": paid})

	all, err := c.AvailableModels(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)

	free, err := c.FreeModels(context.Background())
	require.NoError(t, err)
	require.Len(t, free, 1)
	require.Equal(t, "mock-1", free[0].ID)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"rate limited", &ProviderError{Status: 429}, true},
		{"server error", &ProviderError{Status: 503}, true},
		{"bad request", &ProviderError{Status: 400}, false},
		{"temporary flag", &ProviderError{Temporary: true}, true},
		{"plain error", errors.New("boom"), false},
		{"wrapped provider error", &ProviderError{Status: 500, Err: errors.New("internal")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestOllamaAdapterRefreshAndGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"phi3:mini-q4"}]}`))
		case "/api/generate":
			w.Write([]byte(`{"response":"generated text","done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a, err := NewOllamaAdapter(srv.URL)
	require.NoError(t, err)
	require.Empty(t, a.Models(), "catalog is empty before refresh")

	require.NoError(t, a.Refresh(context.Background()))
	models := a.Models()
	require.Len(t, models, 2)
	require.Equal(t, registry.ProviderLocal, models[0].Provider)
	require.True(t, models[0].IsFree())
	require.Equal(t, defaultLocalContextWindow, models[0].ContextWindow)

	got, err := a.Generate(context.Background(), "llama3:8b", "hi")
	require.NoError(t, err)
	require.Equal(t, "generated text", got)
}

func TestOllamaAdapterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, err := NewOllamaAdapter(srv.URL)
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), "llama3:8b", "hi")
	require.Error(t, err)
	require.True(t, IsTransient(err), "a 503 must be retryable")
	require.Contains(t, err.Error(), "local/llama3:8b")

	err = a.Refresh(context.Background())
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusServiceUnavailable, perr.Status)
	require.Equal(t, registry.ProviderLocal, perr.Provider)
}

func TestProviderErrorMessageNamesBackend(t *testing.T) {
	err := &ProviderError{Provider: "openrouter", Model: "deepseek/deepseek-coder", Status: 429,
		Err: errors.New("rate limited")}
	require.Equal(t, "openrouter/deepseek/deepseek-coder: rate limited", err.Error())

	bare := &ProviderError{Provider: "local", Status: 500}
	require.Equal(t, "local: status 500", bare.Error())
}

func TestOpenRouterAdapterGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"router says hi"}}]}`))
	}))
	defer srv.Close()

	a, err := NewOpenRouterAdapter("test-key")
	require.NoError(t, err)
	a.baseURL = srv.URL

	got, err := a.Generate(context.Background(), "deepseek/deepseek-chat:free", "hi")
	require.NoError(t, err)
	require.Equal(t, "router says hi", got)
}

func TestOpenRouterFreeCatalog(t *testing.T) {
	a, err := NewOpenRouterAdapter("test-key")
	require.NoError(t, err)

	var free int
	for _, m := range a.Models() {
		if m.IsFree() {
			free++
		}
	}
	require.NotZero(t, free, "openrouter must expose free-tier models")
}

func TestNewAdapterRequiresCredentials(t *testing.T) {
	_, err := NewOpenRouterAdapter("")
	require.Error(t, err)
	_, err = NewOllamaAdapter("")
	require.Error(t, err)
}
