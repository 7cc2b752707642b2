// Package api is the HTTP client for the platform's backend services.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/chordsync/errors"
	"github.com/grovetools/chordsync/logging"
	"github.com/grovetools/chordsync/version"
)

// DefaultTimeout bounds every request when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps the response body kept in error details.
const maxErrorBody = 2048

// Options configures a Client.
type Options struct {
	// BaseURL is the node origin, e.g. https://chord.example.org.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Cookie is forwarded verbatim when set.
	Cookie  string
	Timeout time.Duration
	Routes  Routes
	// HTTPClient overrides the default client. Its Timeout is left untouched.
	HTTPClient *http.Client
}

// Client issues requests against the backend services of one node.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	token      string
	cookie     string
	routes     Routes
	logger     *logrus.Entry
}

// NewClient creates a Client for the node at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.InvalidInput("base URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("invalid base URL '%s'", opts.BaseURL))
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.InvalidInput(fmt.Sprintf("base URL '%s' must be absolute", opts.BaseURL))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	routes := opts.Routes.withDefaults()

	return &Client{
		base:       base,
		httpClient: httpClient,
		token:      opts.Token,
		cookie:     opts.Cookie,
		routes:     routes,
		logger:     logging.NewLogger("api"),
	}, nil
}

// Routes returns the route table used by the client.
func (c *Client) Routes() Routes { return c.routes }

// Origin returns the node origin without a trailing slash.
func (c *Client) Origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// URL resolves a route path against the node.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

// Request is a single backend call.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
}

// Get builds a GET request.
func Get(path string) Request {
	return Request{Method: http.MethodGet, Path: path}
}

// Delete builds a DELETE request.
func Delete(path string) Request {
	return Request{Method: http.MethodDelete, Path: path}
}

// PostJSON builds a POST request with a JSON body.
func PostJSON(path string, v interface{}) (Request, error) {
	return jsonRequest(http.MethodPost, path, v)
}

// PutJSON builds a PUT request with a JSON body.
func PutJSON(path string, v interface{}) (Request, error) {
	return jsonRequest(http.MethodPut, path, v)
}

func jsonRequest(method, path string, v interface{}) (Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Request{}, fmt.Errorf("failed to encode request body: %w", err)
	}
	return Request{Method: method, Path: path, Body: body, ContentType: "application/json"}, nil
}

// WithQuery returns a copy of r with a query parameter added.
func (r Request) WithQuery(key, value string) Request {
	q := url.Values{}
	for k, v := range r.Query {
		q[k] = append([]string(nil), v...)
	}
	q.Add(key, value)
	r.Query = q
	return r
}

// String renders the request as "METHOD path?query" for logs and errors.
func (r Request) String() string {
	s := r.Method + " " + r.Path
	if len(r.Query) > 0 {
		s += "?" + r.Query.Encode()
	}
	return s
}

// Response is a completed 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// IsNull reports whether the body is empty or the JSON literal null.
func (r *Response) IsNull() bool {
	b := bytes.TrimSpace(r.Body)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

// Do performs req. Non-2xx responses are returned as errors: 401 and 403 as
// UNAUTHENTICATED, everything else as TRANSPORT_FAILURE with a "status" detail.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target := c.URL(req.Path)
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, errors.Transport(req.Method, target, fmt.Errorf("failed to create request: %w", err))
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != "" {
		httpReq.Header.Set("Cookie", c.cookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WithError(err).WithField("request", req.String()).Debug("Request failed")
		return nil, errors.Transport(req.Method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transport(req.Method, target, fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.WithFields(logrus.Fields{
		"request":  req.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Request completed")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Unauthenticated(target, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.HTTPStatus(req.Method, target, resp.StatusCode, errorMessage(data))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		URL:        target,
	}, nil
}

// errorMessage extracts a readable message from an error body. JSON bodies with
// a "message" field yield that field; anything else is truncated.
func errorMessage(body []byte) string {
	var msg struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != nil {
		return *msg.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

// Decode unmarshals a response body into T.
func Decode[T any](resp *Response) (T, error) {
	var v T
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return v, errors.MalformedResponse(resp.URL, err)
	}
	return v, nil
}

// DoJSON performs req and decodes the response body into T.
func DoJSON[T any](ctx context.Context, c *Client, req Request) (T, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](resp)
}
