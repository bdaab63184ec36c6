// Package client is a Go client for the clusterdeck API.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout applies to every request unless WithTimeout is given.
const DefaultTimeout = 30 * time.Second

// Client talks to one clusterdeck server with one API token.
type Client struct {
	baseURL string
	token   string
	opts    options
	http    *resty.Client
}

type options struct {
	insecure  bool
	headers   http.Header
	timeout   time.Duration
	userAgent string
}

// Option configures a Client.
type Option func(*options)

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() Option {
	return func(o *options) { o.insecure = true }
}

// WithHeader adds a header sent on every request, including the
// WebSocket handshake.
func WithHeader(key, value string) Option {
	return func(o *options) { o.headers.Add(key, value) }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// New creates a client. baseURL is the server root; a trailing "/v3" is
// accepted. token is a full "name:key" API token.
func New(baseURL, token string, opts ...Option) *Client {
	o := options{headers: http.Header{}, timeout: DefaultTimeout, userAgent: "clusterdeck-client"}
	for _, opt := range opts {
		opt(&o)
	}

	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v3")

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", o.userAgent)
	if token != "" {
		rc.SetAuthToken(token)
	}
	if o.insecure {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	for k, vs := range o.headers {
		for _, v := range vs {
			rc.Header.Add(k, v)
		}
	}

	return &Client{baseURL: baseURL, token: token, opts: o, http: rc}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("clusterdeck: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("clusterdeck: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// do runs req against path and decodes a 2xx body into result.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}, query map[string]string) error {
	req := c.http.R().
		SetContext(ctx).
		SetError(&APIError{})
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr, _ := resp.Error().(*APIError)
	if apiErr == nil {
		apiErr = &APIError{}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	apiErr.Status = resp.StatusCode()
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	return apiErr
}

// Cluster is a managed cluster.
type Cluster struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Provider          string            `json:"provider"`
	State             string            `json:"state"`
	KubernetesVersion string            `json:"kubernetesVersion,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	CreatorID         string            `json:"creatorId,omitempty"`
	Created           time.Time         `json:"created"`
	Updated           time.Time         `json:"updated"`
	Links             map[string]string `json:"links,omitempty"`
}

// ClusterSpec is the input for CreateCluster.
type ClusterSpec struct {
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Provider          string            `json:"provider,omitempty"`
	KubernetesVersion string            `json:"kubernetesVersion,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// ClusterUpdate is the input for UpdateCluster. Nil fields are unchanged.
type ClusterUpdate struct {
	Description       *string           `json:"description,omitempty"`
	State             *string           `json:"state,omitempty"`
	KubernetesVersion *string           `json:"kubernetesVersion,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
}

// ListOptions filters ListClusters.
type ListOptions struct {
	Name   string
	State  string
	Labels map[string]string
}

func (o ListOptions) query() map[string]string {
	q := map[string]string{}
	if o.Name != "" {
		q["name"] = o.Name
	}
	if o.State != "" {
		q["state"] = o.State
	}
	if len(o.Labels) > 0 {
		pairs := make([]string, 0, len(o.Labels))
		for k, v := range o.Labels {
			pairs = append(pairs, k+"="+v)
		}
		sort.Strings(pairs)
		q["labelSelector"] = strings.Join(pairs, ",")
	}
	return q
}

type collection[T any] struct {
	Data []T `json:"data"`
}

// ListClusters returns clusters matching opts.
func (c *Client) ListClusters(ctx context.Context, opts ListOptions) ([]Cluster, error) {
	var out collection[Cluster]
	if err := c.do(ctx, http.MethodGet, "/v3/clusters", nil, &out, opts.query()); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetCluster returns one cluster.
func (c *Client) GetCluster(ctx context.Context, id string) (*Cluster, error) {
	var out Cluster
	if err := c.do(ctx, http.MethodGet, "/v3/clusters/"+id, nil, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCluster registers a cluster.
func (c *Client) CreateCluster(ctx context.Context, spec ClusterSpec) (*Cluster, error) {
	var out Cluster
	if err := c.do(ctx, http.MethodPost, "/v3/clusters", spec, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCluster changes a cluster.
func (c *Client) UpdateCluster(ctx context.Context, id string, update ClusterUpdate) (*Cluster, error) {
	var out Cluster
	if err := c.do(ctx, http.MethodPut, "/v3/clusters/"+id, update, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCluster removes a cluster.
func (c *Client) DeleteCluster(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v3/clusters/"+id, nil, nil, nil)
}

// Token is an API token. Secret is only set by CreateToken.
type Token struct {
	Name        string     `json:"name"`
	UserID      string     `json:"userId"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	UsageCount  int64      `json:"usageCount"`
	Created     time.Time  `json:"created"`
	Secret      string     `json:"token,omitempty"`
}

// TokenSpec is the input for CreateToken. A zero TTL uses the server
// default.
type TokenSpec struct {
	Description string
	TTL         time.Duration
}

// ListTokens returns the caller's tokens.
func (c *Client) ListTokens(ctx context.Context) ([]Token, error) {
	var out collection[Token]
	if err := c.do(ctx, http.MethodGet, "/v3/tokens", nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateToken issues a new token for the caller.
func (c *Client) CreateToken(ctx context.Context, spec TokenSpec) (*Token, error) {
	body := struct {
		Description string `json:"description,omitempty"`
		TTL         *int64 `json:"ttl,omitempty"`
	}{Description: spec.Description}
	if spec.TTL > 0 {
		ms := spec.TTL.Milliseconds()
		body.TTL = &ms
	}

	var out Token
	if err := c.do(ctx, http.MethodPost, "/v3/tokens", body, &out, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteToken removes one of the caller's tokens.
func (c *Client) DeleteToken(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/v3/tokens/"+name, nil, nil, nil)
}
