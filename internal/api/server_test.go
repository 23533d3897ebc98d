package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/domage/github-trend-analyzer/internal/analysis"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAnalyzer is a mock implementation of the Analyzer interface
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) HIndex(ctx context.Context, term string, createdAfter time.Time, field models.ScoreField, credential string) (*models.HIndexResult, error) {
	args := m.Called(term, createdAfter, field, credential)
	result, _ := args.Get(0).(*models.HIndexResult)
	return result, args.Error(1)
}

func (m *MockAnalyzer) Compare(ctx context.Context, terms []string, createdAfter time.Time, credential string) (*models.ComparisonReport, error) {
	args := m.Called(terms, createdAfter, credential)
	report, _ := args.Get(0).(*models.ComparisonReport)
	return report, args.Error(1)
}

func (m *MockAnalyzer) Trends(ctx context.Context, q analysis.TrendQuery, credential string) ([]models.TermTrend, error) {
	args := m.Called(q, credential)
	results, _ := args.Get(0).([]models.TermTrend)
	return results, args.Error(1)
}

func (m *MockAnalyzer) Windows(startYear, endYear int, granularity models.Granularity) ([]models.TimeWindow, error) {
	args := m.Called(startYear, endYear, granularity)
	ws, _ := args.Get(0).([]models.TimeWindow)
	return ws, args.Error(1)
}

func (m *MockAnalyzer) RunDigest(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockAnalyzer) GetStats() string {
	return m.Called().String(0)
}

func newTestRouter(analyzer *MockAnalyzer) http.Handler {
	return NewRouter(analyzer, prometheus.NewRegistry())
}

func do(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestHealthAndRequestID(t *testing.T) {
	router := newTestRouter(&MockAnalyzer{})

	rec := do(t, router, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, router, "GET", "/health", "", map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestMetricsAndStats(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("GetStats").Return(`{"comparisons": 3}`)
	router := newTestRouter(analyzer)

	rec := do(t, router, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, "GET", "/stats", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"comparisons": 3}`, rec.Body.String())
}

func TestTrigger(t *testing.T) {
	done := make(chan struct{})
	analyzer := &MockAnalyzer{}
	analyzer.On("RunDigest").Run(func(mock.Arguments) { close(done) }).Return(nil)
	router := newTestRouter(analyzer)

	rec := do(t, router, "POST", "/trigger", "", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("digest was not triggered")
	}
}

func TestHIndexHandler(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		headers    map[string]string
		setup      func(m *MockAnalyzer)
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing term",
			target:     "/api/v1/hindex",
			wantStatus: http.StatusBadRequest,
			wantError:  "term is required",
		},
		{
			name:       "bad field",
			target:     "/api/v1/hindex?term=go&field=watchers",
			wantStatus: http.StatusBadRequest,
			wantError:  "field must be one of: stars forks",
		},
		{
			name:       "bad date",
			target:     "/api/v1/hindex?term=go&created_after=2024/01/01",
			wantStatus: http.StatusBadRequest,
			wantError:  "created_after must be YYYY-MM-DD",
		},
		{
			name:    "success with bearer token",
			target:  "/api/v1/hindex?term=go&field=forks&created_after=2024-01-01",
			headers: map[string]string{"Authorization": "Bearer ghp_abc"},
			setup: func(m *MockAnalyzer) {
				m.On("HIndex", "go", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), models.FieldForks, "ghp_abc").
					Return(&models.HIndexResult{Value: 42, Field: models.FieldForks}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "upstream failure",
			target: "/api/v1/hindex?term=go",
			setup: func(m *MockAnalyzer) {
				m.On("HIndex", "go", time.Time{}, models.FieldStars, "").
					Return(nil, &models.UpstreamError{Transport: "rest", StatusCode: 403, Message: "rate limited"})
			},
			wantStatus: http.StatusBadGateway,
			wantError:  "rate limited",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &MockAnalyzer{}
			if tt.setup != nil {
				tt.setup(analyzer)
			}

			rec := do(t, newTestRouter(analyzer), "GET", tt.target, "", tt.headers)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Contains(t, errorMessage(t, rec), tt.wantError)
			}
			analyzer.AssertExpectations(t)
		})
	}
}

func TestComparisonsHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(m *MockAnalyzer)
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed body",
			body:       `{"terms": "go"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "unknown field",
			body:       `{"terms": ["go"], "since": "2024-01-01"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "no terms",
			body:       `{"terms": []}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "terms",
		},
		{
			name:       "too many terms",
			body:       `{"terms": ["a","b","c","d","e","f","g","h","i","j","k"]}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "at most 10 terms",
		},
		{
			name:       "blank term",
			body:       `{"terms": ["go", "  "]}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "terms[1] is required",
		},
		{
			name: "success",
			body: `{"terms": [" go ", "rust"], "created_after": "2023-01-01"}`,
			setup: func(m *MockAnalyzer) {
				m.On("Compare", []string{"go", "rust"}, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "").
					Return(&models.ComparisonReport{Transport: "rest", Entries: []models.ComparisonEntry{{Rank: 1, Term: "go"}}}, nil)
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &MockAnalyzer{}
			if tt.setup != nil {
				tt.setup(analyzer)
			}

			rec := do(t, newTestRouter(analyzer), "POST", "/api/v1/comparisons", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.Contains(t, errorMessage(t, rec), tt.wantError)
			}
			analyzer.AssertExpectations(t)
		})
	}
}

func TestTrendsHandler(t *testing.T) {
	t.Run("defaults are applied", func(t *testing.T) {
		analyzer := &MockAnalyzer{}
		analyzer.On("Trends", mock.MatchedBy(func(q analysis.TrendQuery) bool {
			return q.StartYear == 2022 &&
				q.EndYear == time.Now().Year() &&
				q.Granularity == models.GranularityQuarter &&
				q.Metric == models.MetricRepositories &&
				len(q.Terms) == 2
		}), "tok").Return([]models.TermTrend{
			{Term: "go", Points: []models.TrendPoint{{PeriodLabel: "2022-Q1", RepositoryCount: 10}}},
			{Term: "rust", Error: "upstream error"},
		}, nil)

		rec := do(t, newTestRouter(analyzer), "POST", "/api/v1/trends", `{"terms": ["go", "rust"], "start_year": 2022}`,
			map[string]string{"Authorization": "Bearer tok"})
		require.Equal(t, http.StatusOK, rec.Code)

		var body trendResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Results, 2)
		assert.Equal(t, "upstream error", body.Results[1].Error)
		analyzer.AssertExpectations(t)
	})

	t.Run("missing credential", func(t *testing.T) {
		analyzer := &MockAnalyzer{}
		analyzer.On("Trends", mock.Anything, "").Return(nil, models.NewCredentialRequired("trend comparison"))

		rec := do(t, newTestRouter(analyzer), "POST", "/api/v1/trends",
			`{"terms": ["go"], "start_year": 2022, "end_year": 2023, "granularity": "month", "metric": "all"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "credential")
	})

	t.Run("invalid granularity", func(t *testing.T) {
		rec := do(t, newTestRouter(&MockAnalyzer{}), "POST", "/api/v1/trends",
			`{"terms": ["go"], "start_year": 2022, "granularity": "week"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, errorMessage(t, rec), "granularity must be one of")
	})
}

func TestWindowsHandler(t *testing.T) {
	analyzer := &MockAnalyzer{}
	analyzer.On("Windows", 2021, 2021, models.GranularityYear).Return([]models.TimeWindow{{
		Start: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
		Label: "2021",
	}}, nil)
	analyzer.On("Windows", 2023, 2020, models.GranularityQuarter).Return(nil, nil)
	router := newTestRouter(analyzer)

	rec := do(t, router, "GET", "/api/v1/windows?start_year=2021&end_year=2021&granularity=year", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body windowsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Windows, 1)
	assert.Equal(t, "2021", body.Windows[0].Label)

	rec = do(t, router, "GET", "/api/v1/windows?start_year=2023&end_year=2020", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"windows":[]`)

	rec = do(t, router, "GET", "/api/v1/windows?start_year=soon", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, "GET", "/api/v1/windows", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "start_year is required")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer  xyz ", "xyz"},
		{"token abc", ""},
		{"Bearer", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, bearerToken(req))
	}
}
