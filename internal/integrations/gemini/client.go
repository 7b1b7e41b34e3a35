package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/metrics"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 30 * time.Second
)

// Part is a single text fragment of a content block.
type Part struct {
	Text string `json:"text"`
}

// Content is one role-tagged message in the generateContent envelope.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig holds the sampling parameters sent with every request.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
}

// DefaultGenerationConfig returns the fixed parameters used by the relay.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		MaxOutputTokens: 1000,
		TopK:            40,
		TopP:            0.95,
	}
}

type generateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content *Content `json:"content"`
	} `json:"candidates"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API key.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-200 upstream responses. URL never includes the
// API key.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func (e *HTTPStatusError) Unwrap() error {
	return domain.ErrUpstreamTransport
}

// Client calls the generateContent endpoint of the generative-language API.
type Client struct {
	baseURL     string
	model       string
	httpClient  *http.Client
	genConfig   GenerationConfig
	staticKey   string
	getter      Getter
	paramPrefix string

	keyMu       sync.Mutex
	apiKey      string
	keyResolved bool
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds the whole upstream exchange, body read included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithGenerationConfig(gc GenerationConfig) Option {
	return func(c *Client) {
		c.genConfig = gc
	}
}

// WithAPIKey sets a key taken from the environment. It wins over the
// parameter store.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.staticKey = strings.TrimSpace(key)
	}
}

// WithParamStore makes the client read its key from <prefix>/gemini-api-key
// when no static key is set.
func WithParamStore(g Getter, paramPrefix string) Option {
	return func(c *Client) {
		c.getter = g
		c.paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	}
}

// NewClient creates a Client. The API key is resolved on the first successful
// lookup and reused for the lifetime of the process; failed lookups are retried
// on the next call.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
		genConfig:  DefaultGenerationConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	if c.getter != nil && c.paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	return c, nil
}

// HasCredentialSource reports whether any key source is configured. Calls
// without one reach the upstream unauthenticated and fail there.
func (c *Client) HasCredentialSource() bool {
	return c.staticKey != "" || c.getter != nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.keyResolved {
		return c.apiKey, nil
	}

	switch {
	case c.staticKey != "":
		c.apiKey = c.staticKey
	case c.getter != nil:
		key, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
		if err != nil {
			return "", err
		}
		c.apiKey = key
	}
	c.keyResolved = true
	return c.apiKey, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/gemini-api-key"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func generateURL(baseURL, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1beta") && !strings.HasSuffix(base, "/v1") {
		base += "/v1beta"
	}
	return base + "/models/" + model + ":generateContent"
}

// Generate sends prompt as a single user turn and returns the first non-empty
// part text of the first candidate. A 200 body that is not JSON counts as a
// transport failure.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Contents: []Content{{
			Role:  "user",
			Parts: []Part{{Text: prompt}},
		}},
		GenerationConfig: c.genConfig,
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := generateURL(c.baseURL, c.model)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+url.Values{"key": {apiKey}}.Encode(), bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("gemini: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	raw, err := c.doJSONRequest(req, endpoint)
	metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}

	var payload generateResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		metrics.UpstreamErrors.WithLabelValues("transport").Inc()
		return "", fmt.Errorf("gemini: decode response: %w: %w", domain.ErrUpstreamTransport, decErr)
	}
	text, ok := firstText(payload)
	if !ok {
		metrics.UpstreamErrors.WithLabelValues("malformed").Inc()
		return "", fmt.Errorf("gemini: %w", domain.ErrMalformedResponse)
	}
	return text, nil
}

func firstText(payload generateResponse) (string, bool) {
	if len(payload.Candidates) == 0 {
		return "", false
	}
	content := payload.Candidates[0].Content
	if content == nil {
		return "", false
	}
	for _, p := range content.Parts {
		if p.Text != "" {
			return p.Text, true
		}
	}
	return "", false
}

func (c *Client) doJSONRequest(req *http.Request, endpoint string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, classifyTransportError(doErr)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		metrics.UpstreamErrors.WithLabelValues("status").Inc()
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, classifyTransportError(fmt.Errorf("read response body: %w", err))
	}
	return buf, nil
}

// classifyTransportError tags err with the timeout or transport sentinel.
// *url.Error from the client carries the request URL, key included, so only
// its inner error is kept.
func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	if isTimeout(err) {
		metrics.UpstreamErrors.WithLabelValues("timeout").Inc()
		return fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
	}
	metrics.UpstreamErrors.WithLabelValues("transport").Inc()
	return fmt.Errorf("%w: %w", domain.ErrUpstreamTransport, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("gemini: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("gemini: key parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("gemini: fetch key from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("gemini: unmarshal paramstore key value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("gemini: API key is empty")
	}
	return tp.Token, nil
}
