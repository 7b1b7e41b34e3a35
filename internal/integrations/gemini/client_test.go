package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/domain"
)

// ---------------------------------------------------------------------------
// generateURL helper
// ---------------------------------------------------------------------------

func TestGenerateURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://generativelanguage.googleapis.com/v1beta", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"},
		{"https://generativelanguage.googleapis.com/v1beta/", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"},
		{"http://localhost:8080", "http://localhost:8080/v1beta/models/gemini-2.0-flash:generateContent"},
		{"http://localhost:8080/v1", "http://localhost:8080/v1/models/gemini-2.0-flash:generateContent"},
		{"", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, generateURL(tc.base, "gemini-2.0-flash"), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient()
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, c.baseURL)
	require.Equal(t, defaultModel, c.model)
	require.Equal(t, 30*time.Second, c.httpClient.Timeout)
	require.Equal(t, DefaultGenerationConfig(), c.genConfig)
	require.False(t, c.HasCredentialSource())
}

func TestNewClient_EmptyModel(t *testing.T) {
	_, err := NewClient(WithModel(" "))
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}

func TestNewClient_ParamStoreNeedsPrefix(t *testing.T) {
	_, err := NewClient(WithParamStore(&fakeGetter{}, " / "))
	require.Error(t, err)
	require.Contains(t, err.Error(), "prefix")
}

// ---------------------------------------------------------------------------
// resolveAPIKey
// ---------------------------------------------------------------------------

// fakeGetter is a minimal Getter stub for use within this package.
type fakeGetter struct {
	val    string
	err    error
	onCall func() // optional; called on each GetParameter invocation
	name   string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.name = name
	if f.onCall != nil {
		f.onCall()
	}
	return f.val, f.err
}

func TestResolveAPIKey_StaticKeyWins(t *testing.T) {
	g := &fakeGetter{val: `{"token":"from-ssm"}`}
	c, err := NewClient(WithAPIKey("from-env"), WithParamStore(g, "/chat-relay"))
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-env", key)
	require.Empty(t, g.name, "SSM must not be read when a static key is configured")
}

func TestResolveAPIKey_FetchedOnceFromParamStore(t *testing.T) {
	calls := 0
	g := &fakeGetter{val: `{"token":"from-ssm"}`}
	g.onCall = func() { calls++ }
	c, err := NewClient(WithParamStore(g, "/chat-relay/"))
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-ssm", key)
	require.Equal(t, "/chat-relay/gemini-api-key", g.name)

	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, calls, "SSM must only be called once per process lifetime")
}

func TestResolveAPIKey_RetriesAfterLookupFailure(t *testing.T) {
	calls := 0
	g := &fakeGetter{err: errors.New("ssm throttled")}
	g.onCall = func() {
		calls++
		if calls > 1 {
			g.val, g.err = `{"token":"from-ssm"}`, nil
		}
	}
	c, err := NewClient(WithParamStore(g, "/chat-relay"))
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "ssm throttled")

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-ssm", key)

	key, err = c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-ssm", key)
	require.Equal(t, 2, calls, "a resolved key must be cached")
}

func TestResolveAPIKey_RetriesAfterCancelledLookup(t *testing.T) {
	g := &ctxGetter{val: `{"token":"from-ssm"}`}
	c, err := NewClient(WithParamStore(g, "/chat-relay"))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.resolveAPIKey(cancelled)
	require.ErrorIs(t, err, context.Canceled)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from-ssm", key)
}

// ctxGetter fails when the lookup context is already done.
type ctxGetter struct {
	val string
}

func (g *ctxGetter) GetParameter(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.val, nil
}

func TestResolveAPIKey_NoSource(t *testing.T) {
	c, err := NewClient()
	require.NoError(t, err)
	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Empty(t, key)
}

func TestFetchAPIKey(t *testing.T) {
	cases := []struct {
		name    string
		getter  Getter
		param   string
		want    string
		wantErr string
	}{
		{name: "json token", getter: &fakeGetter{val: `{"token":"abc"}`}, param: "/p/gemini-api-key", want: "abc"},
		{name: "missing token", getter: &fakeGetter{val: `{"other":"v"}`}, param: "/p/gemini-api-key", wantErr: "API key is empty"},
		{name: "malformed json", getter: &fakeGetter{val: `{"broken`}, param: "/p/gemini-api-key", wantErr: "unmarshal"},
		{name: "getter error", getter: &fakeGetter{err: errors.New("ssm unavailable")}, param: "/p/gemini-api-key", wantErr: "ssm unavailable"},
		{name: "nil getter", getter: nil, param: "/p/gemini-api-key", wantErr: "nil"},
		{name: "empty name", getter: &fakeGetter{val: `{"token":"abc"}`}, param: " ", wantErr: "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := fetchAPIKeyFromParamStore(context.Background(), tc.getter, tc.param)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, key)
		})
	}
}

// ---------------------------------------------------------------------------
// Client.Generate
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithAPIKey("test-key"),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	}, opts...)
	c, err := NewClient(opts...)
	require.NoError(t, err)
	return c
}

func TestClient_Generate_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.Len(t, got.Contents, 1)
		require.Equal(t, "user", got.Contents[0].Role)
		require.Equal(t, []Part{{Text: "hello there"}}, got.Contents[0].Parts)
		require.Equal(t, DefaultGenerationConfig(), got.GenerationConfig)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Olá! 😊"}]}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	text, err := c.Generate(context.Background(), "hello there")
	require.NoError(t, err)
	require.Equal(t, "Olá! 😊", text)
}

func TestClient_Generate_WireFieldNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{
			"contents":[{"role":"user","parts":[{"text":"p"}]}],
			"generationConfig":{"temperature":0.7,"maxOutputTokens":1000,"topK":40,"topP":0.95}
		}`, string(raw))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), "p")
	require.NoError(t, err)
}

func TestClient_Generate_MalformedShapes(t *testing.T) {
	bodies := map[string]string{
		"empty object":     `{}`,
		"empty candidates": `{"candidates":[]}`,
		"no content":       `{"candidates":[{"finishReason":"SAFETY"}]}`,
		"no parts":         `{"candidates":[{"content":{"parts":[]}}]}`,
		"empty text":       `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`,
		"all parts empty":  `{"candidates":[{"content":{"parts":[{"text":""},{}]}}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Generate(context.Background(), "p")
			require.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestClient_Generate_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
	require.NotErrorIs(t, err, domain.ErrMalformedResponse)
	require.ErrorIs(t, err, domain.ErrUpstreamTransport)
}

func TestClient_Generate_SkipsEmptyLeadingParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":""},{"text":"second"},{"text":"third"}]}}]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(t, srv).Generate(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "second", text)
}

func TestClient_Generate_RecoversAfterKeyLookupFailure(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	calls := 0
	g := &fakeGetter{err: errors.New("ssm throttled")}
	g.onCall = func() {
		calls++
		if calls > 1 {
			g.val, g.err = `{"token":"k-123"}`, nil
		}
	}
	c, err := NewClient(WithBaseURL(srv.URL), WithParamStore(g, "/chat-relay"))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.ErrorContains(t, err, "ssm throttled")

	for i := 0; i < 2; i++ {
		text, err := c.Generate(context.Background(), "p")
		require.NoError(t, err)
		require.Equal(t, "ok", text)
	}
	require.Equal(t, "k-123", gotKey)
	require.Equal(t, 2, calls)
}

func TestClient_Generate_Non200(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusCreated} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
		}))

		_, err := newTestClient(t, srv).Generate(context.Background(), "p")
		srv.Close()

		require.Error(t, err)
		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.HTTPStatusCode())
		require.ErrorIs(t, err, domain.ErrUpstreamTransport)
		require.NotContains(t, err.Error(), "test-key")
	}
}

func TestClient_Generate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithTimeout(50*time.Millisecond))
	_, err := c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	require.NotErrorIs(t, err, domain.ErrUpstreamTransport)
	require.NotContains(t, err.Error(), "test-key")
}

func TestClient_Generate_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestClient(t, srv).Generate(ctx, "p")
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestClient_Generate_ConnectionRefused(t *testing.T) {
	c, err := NewClient(
		WithBaseURL("http://127.0.0.1:1"),
		WithAPIKey("test-key"),
		WithTimeout(500*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrUpstreamTransport)
	require.Contains(t, err.Error(), "request failed")
	require.NotContains(t, err.Error(), "test-key")
}

func TestClient_Generate_KeyLookupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("upstream must not be called without a key")
	}))
	defer srv.Close()

	c, err := NewClient(WithBaseURL(srv.URL), WithParamStore(&fakeGetter{err: errors.New("access denied")}, "/chat-relay"))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "access denied")
}
