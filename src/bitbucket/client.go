// Package bitbucket provides a client for triggering and watching Bitbucket
// Pipelines builds.
package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// APIBaseURL is the base URL for the Bitbucket Cloud API.
	APIBaseURL = "https://api.bitbucket.org/2.0"

	// WebBaseURL is where build pages are served.
	WebBaseURL = "https://bitbucket.org"
)

// Client is a Bitbucket Pipelines API client scoped to one repository.
type Client struct {
	workspace  string
	repo       string
	repoAPI    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root. Used by tests and
// proxies; the workspace and repo are still appended.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.repoAPI = fmt.Sprintf("%s/repositories/%s/%s", strings.TrimRight(base, "/"), c.workspace, c.repo)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new Bitbucket API client authenticated with a username
// and app password.
func NewClient(workspace, repo, username, password string, opts ...Option) *Client {
	c := &Client{
		workspace: workspace,
		repo:      repo,
		repoAPI:   fmt.Sprintf("%s/repositories/%s/%s", APIBaseURL, workspace, repo),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &basicAuthTransport{
				base:     http.DefaultTransport,
				username: username,
				password: password,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Workspace returns the workspace slug.
func (c *Client) Workspace() string { return c.workspace }

// Repo returns the repository slug.
func (c *Client) Repo() string { return c.repo }

// basicAuthTransport adds HTTP basic auth to every request.
type basicAuthTransport struct {
	base     http.RoundTripper
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(cloned)
}

// Get issues an authenticated GET against the repository API and decodes the
// JSON response into out.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.repoAPI + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, out)
}

// Post issues an authenticated POST with a JSON body and decodes the JSON
// response into out.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.repoAPI+endpoint, data, out)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return &HTTPError{
			Method:     method,
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetPipeline fetches the current state of a pipeline.
func (c *Client) GetPipeline(ctx context.Context, id string) (Pipeline, error) {
	var p Pipeline
	if err := c.Get(ctx, "/pipelines/"+url.PathEscape(id), nil, &p); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// pipelinePage is one page of GET /pipelines/.
type pipelinePage struct {
	Values  []Pipeline `json:"values"`
	PageLen int        `json:"pagelen"`
}

func (c *Client) listPipelines(ctx context.Context, pageLen int) ([]Pipeline, error) {
	query := url.Values{}
	query.Set("pagelen", fmt.Sprintf("%d", pageLen))
	query.Set("sort", "-created_on")

	var page pipelinePage
	if err := c.Get(ctx, "/pipelines/", query, &page); err != nil {
		return nil, err
	}
	return page.Values, nil
}

// Variable is a pipeline variable sent when starting a build.
type Variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type selector struct {
	Type    string `json:"type"`
	Pattern string `json:"pattern"`
}

type startTarget struct {
	Type     string   `json:"type"`
	RefType  string   `json:"ref_type"`
	RefName  string   `json:"ref_name"`
	Selector selector `json:"selector"`
}

type startRequest struct {
	Target    startTarget `json:"target"`
	Variables []Variable  `json:"variables"`
}

// Variables coerces arbitrary values to string key/value pairs, sorted by key.
// Values are rendered by VariableValue.
func Variables(extras map[string]any) []Variable {
	vars := make([]Variable, 0, len(extras))
	for k, v := range extras {
		vars = append(vars, Variable{Key: k, Value: VariableValue(v)})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Key < vars[j].Key })
	return vars
}

// VariableValue renders one extras value as the string Bitbucket receives.
// Strings pass through, nil becomes empty, and objects and arrays are sent as
// compact JSON. Other scalars use their default formatting.
func VariableValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	default:
		return fmt.Sprint(val)
	}
}

// StartPipeline runs the custom pipeline named pipelineName on branch.
func (c *Client) StartPipeline(ctx context.Context, branch, pipelineName string, extras map[string]any) (Pipeline, error) {
	payload := startRequest{
		Target: startTarget{
			Type:    "pipeline_ref_target",
			RefType: RefTypeBranch,
			RefName: branch,
			Selector: selector{
				Type:    "custom",
				Pattern: pipelineName,
			},
		},
		Variables: Variables(extras),
	}

	var p Pipeline
	if err := c.Post(ctx, "/pipelines/", payload, &p); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// BuildURL returns the web page for a build number.
func (c *Client) BuildURL(buildNumber int) string {
	return BuildURL(c.workspace, c.repo, buildNumber)
}

// BuildURL returns the web page for a build in workspace/repo.
func BuildURL(workspace, repo string, buildNumber int) string {
	return fmt.Sprintf("%s/%s/%s/addon/pipelines/home#!/results/%d", WebBaseURL, workspace, repo, buildNumber)
}

// PipelineURL is BuildURL for a record, returning "" when the record has no
// build number.
func (c *Client) PipelineURL(p Pipeline) string {
	n, err := p.BuildNumber()
	if err != nil {
		return ""
	}
	return c.BuildURL(n)
}
