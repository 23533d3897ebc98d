package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/observability"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRESTBaseURL = "https://api.github.com"
	DefaultUserAgent   = "github-trend-analyzer/1.0"

	// MaxPerPage is the largest page the search endpoints serve
	MaxPerPage = 100
)

// ClientConfig configures a GitHub transport
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Limiter   *RateLimiter
	Metrics   *observability.Metrics
}

func (c *ClientConfig) applyDefaults(baseURL string) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// GitHubREST implements RESTSearcher against the GitHub search REST API
type GitHubREST struct {
	client  *resty.Client
	limiter *RateLimiter
	metrics *observability.Metrics
}

var _ RESTSearcher = (*GitHubREST)(nil)

type restSearchResponse struct {
	TotalCount        int        `json:"total_count"`
	IncompleteResults bool       `json:"incomplete_results"`
	Items             []restRepo `json:"items"`
}

type restRepo struct {
	ID     int64  `json:"id"`
	NodeID string `json:"node_id"`
	Name   string `json:"name"`
	Owner  struct {
		Login string `json:"login"`
	} `json:"owner"`
	HTMLURL         string    `json:"html_url"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewGitHubREST creates the REST transport
func NewGitHubREST(cfg ClientConfig) *GitHubREST {
	cfg.applyDefaults(DefaultRESTBaseURL)

	return &GitHubREST{
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("User-Agent", cfg.UserAgent).
			SetHeader("Accept", "application/vnd.github+json").
			SetHeader("X-GitHub-Api-Version", "2022-11-28"),
		limiter: cfg.Limiter,
		metrics: cfg.Metrics,
	}
}

func (g *GitHubREST) GetName() string {
	return "rest"
}

// SearchRepositories fetches one page of /search/repositories
func (g *GitHubREST) SearchRepositories(ctx context.Context, credential string, req SearchRequest) (*SearchPage, error) {
	perPage := req.PerPage
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	page := req.Page
	if page < 1 {
		page = 1
	}

	params := map[string]string{
		"q":        req.Query,
		"page":     strconv.Itoa(page),
		"per_page": strconv.Itoa(perPage),
	}
	if req.Sort != "" {
		params["sort"] = req.Sort
		params["order"] = req.Order
		if req.Order == "" {
			params["order"] = "desc"
		}
	}

	var searchResp restSearchResponse
	if err := g.get(ctx, credential, "/search/repositories", params, &searchResp); err != nil {
		return nil, err
	}

	if searchResp.IncompleteResults {
		logrus.Debugf("GitHub search for %q returned incomplete results (page %d)", req.Query, page)
	}

	items := make([]models.Repository, 0, len(searchResp.Items))
	for _, item := range searchResp.Items {
		items = append(items, item.toRepository())
	}

	return &SearchPage{Items: items, TotalCount: searchResp.TotalCount}, nil
}

// CountMatches returns the total match count of query for kind.
// Discussions have no REST search endpoint.
func (g *GitHubREST) CountMatches(ctx context.Context, credential string, kind models.SearchKind, query string) (int, error) {
	var path string
	switch kind {
	case models.KindRepositories:
		path = "/search/repositories"
	case models.KindPullRequests, models.KindIssues:
		path = "/search/issues"
	default:
		return 0, &models.PreconditionError{Operation: string(kind) + " count", Requirement: "the GraphQL transport"}
	}

	var countResp struct {
		TotalCount int `json:"total_count"`
	}
	params := map[string]string{"q": query, "per_page": "1"}
	if err := g.get(ctx, credential, path, params, &countResp); err != nil {
		return 0, err
	}

	return countResp.TotalCount, nil
}

func (g *GitHubREST) get(ctx context.Context, credential, path string, params map[string]string, out interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	request := g.client.R().
		SetContext(ctx).
		SetQueryParams(params)
	if credential != "" {
		request.SetAuthToken(credential)
	}

	start := time.Now()
	resp, err := request.Get(path)
	if err != nil {
		g.metrics.ObserveUpstream(g.GetName(), 0, time.Since(start))
		return fmt.Errorf("GitHub REST request %s failed: %w", path, err)
	}
	g.metrics.ObserveUpstream(g.GetName(), resp.StatusCode(), time.Since(start))

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &models.UpstreamError{
			Transport:  g.GetName(),
			StatusCode: resp.StatusCode(),
			Message:    string(resp.Body()),
		}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode GitHub REST response: %w", err)
	}

	return nil
}

func (r restRepo) toRepository() models.Repository {
	id := r.NodeID
	if id == "" {
		id = strconv.FormatInt(r.ID, 10)
	}
	return models.Repository{
		ID:         id,
		Name:       r.Name,
		OwnerLogin: r.Owner.Login,
		URL:        r.HTMLURL,
		StarCount:  r.StargazersCount,
		ForkCount:  r.ForksCount,
		CreatedAt:  r.CreatedAt,
	}
}
