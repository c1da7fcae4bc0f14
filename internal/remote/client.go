// ABOUTME: HTTP client for the remote finance API auth and data endpoints
// ABOUTME: Extracts the token and the embedded scriptResult with JSONPath expressions

package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

const (
	// DefaultTokenPath locates the bearer token in the auth response.
	DefaultTokenPath = "$.response.token"

	// DefaultResultPath locates the string-encoded payload in the data response.
	DefaultResultPath = "$.response.scriptResult"

	// DefaultScript is the server-side script that returns the account list.
	DefaultScript = "getData"

	// maxErrorBody bounds how much of a failed response is kept for messages.
	maxErrorBody = 512
)

// Config holds connection settings for the remote API.
type Config struct {
	TokenURL           string
	DataURL            string
	Script             string
	TokenPath          string
	ResultPath         string
	Timeout            time.Duration
	InsecureSkipVerify bool

	// HTTPClient overrides the client built from Timeout and InsecureSkipVerify.
	HTTPClient *http.Client
}

// Client talks to the auth and data endpoints.
type Client struct {
	tokenURL   string
	dataURL    string
	script     string
	tokenPath  string
	resultPath string
	http       *http.Client
	logger     *slog.Logger
}

// dataRequest is the PATCH body sent to the data endpoint.
type dataRequest struct {
	FieldData map[string]any `json:"fieldData"`
	Script    string         `json:"script"`
}

// NewClient creates a client from cfg, filling defaults for empty fields.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token url is required")
	}
	if cfg.DataURL == "" {
		return nil, fmt.Errorf("data url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		tokenURL:   cfg.TokenURL,
		dataURL:    cfg.DataURL,
		script:     cfg.Script,
		tokenPath:  cfg.TokenPath,
		resultPath: cfg.ResultPath,
		http:       cfg.HTTPClient,
		logger:     logger.With("component", "remote"),
	}
	if c.script == "" {
		c.script = DefaultScript
	}
	if c.tokenPath == "" {
		c.tokenPath = DefaultTokenPath
	}
	if c.resultPath == "" {
		c.resultPath = DefaultResultPath
	}
	if c.http == nil {
		c.http = newHTTPClient(cfg.Timeout, cfg.InsecureSkipVerify)
	}

	return c, nil
}

func newHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		// The finance API is commonly deployed with a self-signed certificate.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Authenticate exchanges username and password for a bearer token using
// Basic auth against the token endpoint.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("creating auth request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "auth")
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			statusErr.Kind = ErrAuth
			return "", fmt.Errorf("%w: %w", ErrAuth, statusErr)
		}
		return "", err
	}

	val, err := extract(body, c.tokenPath)
	if err != nil {
		return "", fmt.Errorf("%w: token not found in response", ErrAuth)
	}
	token, ok := val.(string)
	if !ok || token == "" {
		return "", fmt.Errorf("%w: token not found in response", ErrAuth)
	}

	return token, nil
}

// FetchScriptResult runs the configured script on the data endpoint and
// returns the string-encoded payload it produced. A 401 is reported as a
// *StatusError matching ErrUnauthorized.
func (c *Client) FetchScriptResult(ctx context.Context, token string) (string, error) {
	payload, err := json.Marshal(dataRequest{FieldData: map[string]any{}, Script: c.script})
	if err != nil {
		return "", fmt.Errorf("encoding data request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.dataURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating data request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "data")
	if err != nil {
		return "", err
	}

	val, err := extract(body, c.resultPath)
	if err != nil {
		return "", fmt.Errorf("%w: no data found in response", ErrDataFormat)
	}
	result, ok := val.(string)
	if !ok || result == "" {
		return "", fmt.Errorf("%w: no data found in response", ErrDataFormat)
	}

	return result, nil
}

// do sends req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s request: %w", ErrNetwork, endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote call",
		"endpoint", endpoint,
		"method", req.Method,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", ErrNetwork, endpoint, err)
	}
	return body, nil
}

// extract decodes body and evaluates a JSONPath expression against it.
func extract(body []byte, path string) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrDataFormat, err)
	}

	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, err
	}
	// Wildcard paths yield a list; keep the first match.
	if list, ok := val.([]any); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("no match for %s", path)
		}
		val = list[0]
	}
	return val, nil
}
