// ABOUTME: Tests for the remote API client against an httptest server
// ABOUTME: Covers Basic/Bearer headers, JSONPath extraction and error kinds

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		TokenURL: srv.URL + "/sessions",
		DataURL:  srv.URL + "/records",
		Timeout:  5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresURLs(t *testing.T) {
	_, err := NewClient(Config{DataURL: "http://x"}, nil)
	assert.Error(t, err)

	_, err = NewClient(Config{TokenURL: "http://x"}, nil)
	assert.Error(t, err)
}

func TestAuthenticate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "muhasebe", user)
		assert.Equal(t, "s3cret", pass)
		_, _ = w.Write([]byte(`{"response":{"token":"tok-1"},"messages":[{"code":"0"}]}`))
	}))
	defer srv.Close()

	token, err := newTestClient(t, srv).Authenticate(context.Background(), "muhasebe", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestAuthenticate_TokenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Authenticate(context.Background(), "u", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "token not found")
}

func TestAuthenticate_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Authenticate(context.Background(), "u", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	// A rejected credential is not a stale token; retrying would not help.
	assert.False(t, IsUnauthorized(err))
	assert.NotErrorIs(t, err, ErrNetwork)
}

func TestAuthenticate_ServerErrorIsAuthOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Authenticate(context.Background(), "u", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.NotErrorIs(t, err, ErrBadStatus)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestAuthenticate_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.Authenticate(context.Background(), "u", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrAuth)
}

func TestFetchScriptResult_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "getData", body["script"])
		assert.Equal(t, map[string]any{}, body["fieldData"])

		_, _ = w.Write([]byte(`{"response":{"scriptResult":"[{\"hesap_kodu\":\"300\",\"borc\":\"75.5\"}]"}}`))
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv).FetchScriptResult(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, `[{"hesap_kodu":"300","borc":"75.5"}]`, result)
}

func TestFetchScriptResult_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchScriptResult(context.Background(), "stale")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrBadStatus)
}

func TestFetchScriptResult_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchScriptResult(context.Background(), "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.False(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "boom")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestFetchScriptResult_MissingResult(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no scriptResult", `{"response":{}}`},
		{"empty scriptResult", `{"response":{"scriptResult":""}}`},
		{"non-string scriptResult", `{"response":{"scriptResult":42}}`},
		{"not json", `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).FetchScriptResult(context.Background(), "tok")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDataFormat)
		})
	}
}

func TestFetchScriptResult_CustomPathAndScript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body dataRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hesapPlani", body.Script)
		_, _ = w.Write([]byte(`{"data":{"result":"[]"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		TokenURL:   srv.URL,
		DataURL:    srv.URL,
		Script:     "hesapPlani",
		ResultPath: "$.data.result",
	}, nil)
	require.NoError(t, err)

	result, err := c.FetchScriptResult(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "[]", result)
}

func TestFetchScriptResult_InsecureTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"scriptResult":"[]"}}`))
	}))
	defer srv.Close()

	strict, err := NewClient(Config{TokenURL: srv.URL, DataURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = strict.FetchScriptResult(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrNetwork)

	lax, err := NewClient(Config{TokenURL: srv.URL, DataURL: srv.URL, InsecureSkipVerify: true}, nil)
	require.NoError(t, err)
	result, err := lax.FetchScriptResult(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "[]", result)
}
