package crm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.getbase.com"
	defaultAgent   = "crm-workflow/1.0"
	perPage        = 100
)

// ErrNotFound is matched by API errors carrying a 404 status.
var ErrNotFound = errors.New("not found")

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	LogRef     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("crm api: status %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Config holds client connection settings.
type Config struct {
	BaseURL           string
	AccessToken       string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client talks to the CRM REST API v2.
type Client struct {
	baseURL string
	token   string
	agent   string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a Client. An access token is mandatory.
func New(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("crm: missing access token")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("crm: base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = defaultAgent
	}
	return &Client{
		baseURL: base,
		token:   cfg.AccessToken,
		agent:   agent,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type collection[T any] struct {
	Items []envelope[T] `json:"items"`
}

type errorBody struct {
	Errors []struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details string `json:"details"`
		} `json:"error"`
	} `json:"errors"`
	Meta struct {
		LogRef string `json:"logref"`
	} `json:"meta"`
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	header http.Header
}

// do performs the request and decodes a successful body into out. It returns
// the response status so callers can distinguish 200 from 204.
func (c *Client) do(ctx context.Context, r request, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		payload, err := sonic.Marshal(envelope[any]{Data: r.body})
		if err != nil {
			return 0, fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return 0, err
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.agent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s %s: %w", r.method, r.path, err)
	}
	log.WithFields(log.Fields{
		"method": r.method,
		"path":   r.path,
		"status": resp.StatusCode,
		"ms":     time.Since(start).Milliseconds(),
	}).Trace("crm request")

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, decodeError(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return resp.StatusCode, nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
	}
	return resp.StatusCode, nil
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	var eb errorBody
	if err := sonic.Unmarshal(data, &eb); err == nil {
		apiErr.LogRef = eb.Meta.LogRef
		if len(eb.Errors) > 0 {
			e := eb.Errors[0].Error
			apiErr.Code = e.Code
			apiErr.Message = e.Message
			if e.Details != "" {
				apiErr.Message += " (" + e.Details + ")"
			}
		}
	}
	return apiErr
}

func getOne[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var env envelope[T]
	if _, err := c.do(ctx, request{method: http.MethodGet, path: path}, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("per_page", fmt.Sprint(perPage))
	var out []T
	for page := 1; ; page++ {
		q.Set("page", fmt.Sprint(page))
		var coll collection[T]
		if _, err := c.do(ctx, request{method: http.MethodGet, path: path, query: q}, &coll); err != nil {
			return nil, err
		}
		for _, it := range coll.Items {
			out = append(out, it.Data)
		}
		if len(coll.Items) < perPage {
			return out, nil
		}
	}
}
