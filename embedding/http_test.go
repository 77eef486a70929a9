package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackend_Embed(t *testing.T) {
	var got []Item
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"results":{"1111":[0.1,0.2,0.3],"bad":"nope","empty":[]}}`))
	}))
	defer srv.Close()

	backend, err := NewHTTPBackend(srv.URL)
	require.NoError(t, err)

	vectors, err := backend.Embed(context.Background(), []Item{
		{ID: "1111", Content: "alpha"},
		{ID: "bad", Content: "beta"},
		{ID: "empty", Content: "gamma"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float32{"1111": {0.1, 0.2, 0.3}}, vectors)
	assert.Equal(t, []Item{{"1111", "alpha"}, {"bad", "beta"}, {"empty", "gamma"}}, got)
}

func TestHTTPBackend_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "overloaded", wantMsg: "status 500: overloaded"},
		{name: "not json", status: http.StatusOK, body: "<html>", wantMsg: "malformed"},
		{name: "missing results", status: http.StatusOK, body: `{"error":"model loading"}`, wantMsg: "no results object"},
		{name: "null results", status: http.StatusOK, body: `{"results":null}`, wantMsg: "no results object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			backend, err := NewHTTPBackend(srv.URL)
			require.NoError(t, err)

			_, err = backend.Embed(context.Background(), []Item{{ID: "1", Content: "x"}})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBatchFailed)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestHTTPBackend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	backend, err := NewHTTPBackend(url)
	require.NoError(t, err)

	_, err = backend.Embed(context.Background(), []Item{{ID: "1", Content: "x"}})
	assert.ErrorIs(t, err, ErrBatchFailed)
}

func TestNewHTTPBackend_RequiresURL(t *testing.T) {
	_, err := NewHTTPBackend("")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
