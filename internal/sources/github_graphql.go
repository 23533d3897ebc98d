package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/domage/github-trend-analyzer/internal/observability"
	"github.com/go-resty/resty/v2"
)

const DefaultGraphQLURL = "https://api.github.com/graphql"

const rankedSearchQuery = `
query RankedRepositories($q: String!, $first: Int!, $after: String) {
	search(query: $q, type: REPOSITORY, first: $first, after: $after) {
		repositoryCount
		pageInfo {
			hasNextPage
			endCursor
		}
		nodes {
			... on Repository {
				id
				name
				url
				stargazerCount
				forkCount
				createdAt
				owner {
					login
				}
			}
		}
	}
}`

var aliasPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// GitHubGraphQL implements GraphQLSearcher against the GitHub GraphQL API
type GitHubGraphQL struct {
	client  *resty.Client
	url     string
	limiter *RateLimiter
	metrics *observability.Metrics
}

var _ GraphQLSearcher = (*GitHubGraphQL)(nil)

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type searchConnection struct {
	RepositoryCount int `json:"repositoryCount"`
	PageInfo        struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pageInfo"`
	Nodes []graphQLRepo `json:"nodes"`
}

type graphQLRepo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	StargazerCount int       `json:"stargazerCount"`
	ForkCount      int       `json:"forkCount"`
	CreatedAt      time.Time `json:"createdAt"`
	Owner          struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type countConnection struct {
	RepositoryCount *int `json:"repositoryCount"`
	IssueCount      *int `json:"issueCount"`
	DiscussionCount *int `json:"discussionCount"`
}

// NewGitHubGraphQL creates the GraphQL transport
func NewGitHubGraphQL(cfg ClientConfig) *GitHubGraphQL {
	cfg.applyDefaults(DefaultGraphQLURL)

	return &GitHubGraphQL{
		client: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("User-Agent", cfg.UserAgent).
			SetHeader("Content-Type", "application/json"),
		url:     cfg.BaseURL,
		limiter: cfg.Limiter,
		metrics: cfg.Metrics,
	}
}

func (g *GitHubGraphQL) GetName() string {
	return "graphql"
}

// SearchRepositories fetches one cursor page of repositories matching req.Query
func (g *GitHubGraphQL) SearchRepositories(ctx context.Context, credential string, req CursorRequest) (*CursorPage, error) {
	first := req.First
	if first <= 0 || first > MaxPerPage {
		first = MaxPerPage
	}

	variables := map[string]interface{}{
		"q":     req.Query,
		"first": first,
	}
	if req.After != "" {
		variables["after"] = req.After
	}

	data, err := g.execute(ctx, credential, &graphQLRequest{Query: rankedSearchQuery, Variables: variables})
	if err != nil {
		return nil, err
	}

	var result struct {
		Search searchConnection `json:"search"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode GraphQL search: %w", err)
	}

	items := make([]models.Repository, 0, len(result.Search.Nodes))
	for _, node := range result.Search.Nodes {
		if node.ID == "" {
			// non-repository node
			continue
		}
		items = append(items, node.toRepository())
	}

	return &CursorPage{
		Items:       items,
		TotalCount:  result.Search.RepositoryCount,
		HasNextPage: result.Search.PageInfo.HasNextPage,
		EndCursor:   result.Search.PageInfo.EndCursor,
	}, nil
}

// BatchCounts sends all queries as aliased sub-queries of one request and returns the
// count per alias. The call fails as a whole if any sub-query is missing from the response.
func (g *GitHubGraphQL) BatchCounts(ctx context.Context, credential string, queries []CountQuery) (map[string]int, error) {
	if len(queries) == 0 {
		return map[string]int{}, nil
	}

	document, variables, err := BuildCountDocument(queries)
	if err != nil {
		return nil, err
	}

	data, err := g.execute(ctx, credential, &graphQLRequest{Query: document, Variables: variables})
	if err != nil {
		return nil, err
	}

	var raw map[string]countConnection
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode GraphQL counts: %w", err)
	}

	counts := make(map[string]int, len(queries))
	for _, q := range queries {
		conn, ok := raw[q.Alias]
		if !ok {
			return nil, &models.UpstreamError{Transport: g.GetName(), Message: fmt.Sprintf("missing result for %s", q.Alias)}
		}
		value := conn.countFor(q.Kind)
		if value == nil {
			return nil, &models.UpstreamError{Transport: g.GetName(), Message: fmt.Sprintf("missing count for %s", q.Alias)}
		}
		counts[q.Alias] = *value
	}

	return counts, nil
}

// BuildCountDocument renders queries as one GraphQL document with one variable per alias
func BuildCountDocument(queries []CountQuery) (string, map[string]interface{}, error) {
	seen := make(map[string]bool, len(queries))
	variables := make(map[string]interface{}, len(queries))
	var params, fields []string

	for _, q := range queries {
		if !aliasPattern.MatchString(q.Alias) {
			return "", nil, fmt.Errorf("invalid alias %q", q.Alias)
		}
		if seen[q.Alias] {
			return "", nil, fmt.Errorf("duplicate alias %q", q.Alias)
		}
		seen[q.Alias] = true

		searchType, countField, err := searchTypeFor(q.Kind)
		if err != nil {
			return "", nil, err
		}

		variable := "q_" + q.Alias
		variables[variable] = q.Query
		params = append(params, fmt.Sprintf("$%s: String!", variable))
		fields = append(fields, fmt.Sprintf("\t%s: search(query: $%s, type: %s, first: 1) { %s }", q.Alias, variable, searchType, countField))
	}

	sort.Strings(params)
	document := fmt.Sprintf("query BatchCounts(%s) {\n%s\n}", strings.Join(params, ", "), strings.Join(fields, "\n"))
	return document, variables, nil
}

func searchTypeFor(kind models.SearchKind) (string, string, error) {
	switch kind {
	case models.KindRepositories:
		return "REPOSITORY", "repositoryCount", nil
	case models.KindPullRequests, models.KindIssues:
		return "ISSUE", "issueCount", nil
	case models.KindDiscussions:
		return "DISCUSSION", "discussionCount", nil
	}
	return "", "", fmt.Errorf("unsupported search kind %q", kind)
}

func (g *GitHubGraphQL) execute(ctx context.Context, credential string, req *graphQLRequest) (json.RawMessage, error) {
	if credential == "" {
		return nil, models.NewCredentialRequired("GraphQL search")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	start := time.Now()
	resp, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(credential).
		SetBody(req).
		Post(g.url)
	if err != nil {
		g.metrics.ObserveUpstream(g.GetName(), 0, time.Since(start))
		return nil, fmt.Errorf("GitHub GraphQL request failed: %w", err)
	}
	g.metrics.ObserveUpstream(g.GetName(), resp.StatusCode(), time.Since(start))

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &models.UpstreamError{
			Transport:  g.GetName(),
			StatusCode: resp.StatusCode(),
			Message:    string(resp.Body()),
		}
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(resp.Body(), &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		messages := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			messages[i] = e.Message
		}
		return nil, &models.UpstreamError{Transport: g.GetName(), Message: strings.Join(messages, "; ")}
	}

	if len(gqlResp.Data) == 0 || string(gqlResp.Data) == "null" {
		return nil, &models.UpstreamError{Transport: g.GetName(), Message: "empty data"}
	}

	return gqlResp.Data, nil
}

func (c countConnection) countFor(kind models.SearchKind) *int {
	switch kind {
	case models.KindRepositories:
		return c.RepositoryCount
	case models.KindDiscussions:
		return c.DiscussionCount
	}
	return c.IssueCount
}

func (r graphQLRepo) toRepository() models.Repository {
	return models.Repository{
		ID:         r.ID,
		Name:       r.Name,
		OwnerLogin: r.Owner.Login,
		URL:        r.URL,
		StarCount:  r.StargazerCount,
		ForkCount:  r.ForkCount,
		CreatedAt:  r.CreatedAt,
	}
}
