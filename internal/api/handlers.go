package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/domage/github-trend-analyzer/internal/analysis"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const maxTerms = 10

type hindexRequest struct {
	Term         string `json:"term" validate:"required,max=256"`
	CreatedAfter string `json:"created_after" validate:"omitempty,datetime=2006-01-02"`
	Field        string `json:"field" validate:"omitempty,oneof=stars forks"`
}

type comparisonRequest struct {
	Terms        []string `json:"terms" validate:"required,min=1,max=10,dive,required,max=256"`
	CreatedAfter string   `json:"created_after" validate:"omitempty,datetime=2006-01-02"`
}

type trendRequest struct {
	Terms       []string `json:"terms" validate:"required,min=1,max=10,dive,required,max=256"`
	StartYear   int      `json:"start_year" validate:"required,gte=2008,lte=9999"`
	EndYear     int      `json:"end_year" validate:"omitempty,gte=2008,lte=9999"`
	Granularity string   `json:"granularity" validate:"omitempty,oneof=year quarter month"`
	Metric      string   `json:"metric" validate:"omitempty,oneof=repositories pull_requests issues all"`
}

type windowsRequest struct {
	StartYear   int    `json:"start_year" validate:"required,gte=1970,lte=9999"`
	EndYear     int    `json:"end_year" validate:"omitempty,gte=1970,lte=9999"`
	Granularity string `json:"granularity" validate:"omitempty,oneof=year quarter month"`
}

type trendResponse struct {
	Granularity models.Granularity `json:"granularity"`
	Metric      models.Metric      `json:"metric"`
	StartYear   int                `json:"start_year"`
	EndYear     int                `json:"end_year"`
	Results     []models.TermTrend `json:"results"`
}

type windowsResponse struct {
	Granularity models.Granularity  `json:"granularity"`
	Windows     []models.TimeWindow `json:"windows"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.analyzer.GetStats()))
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	go func() {
		if err := s.analyzer.RunDigest(context.WithoutCancel(r.Context())); err != nil {
			logrus.WithField("request_id", requestID).Errorf("Manual digest trigger failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Digest triggered successfully"})
}

func (s *Server) hindex(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := hindexRequest{
		Term:         strings.TrimSpace(query.Get("term")),
		CreatedAfter: query.Get("created_after"),
		Field:        query.Get("field"),
	}
	if !s.check(w, req) {
		return
	}

	field, err := models.ParseScoreField(req.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.analyzer.HIndex(r.Context(), req.Term, parseDate(req.CreatedAfter), field, bearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) comparisons(w http.ResponseWriter, r *http.Request) {
	var req comparisonRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Terms = trimTerms(req.Terms)
	if !s.check(w, req) {
		return
	}

	report, err := s.analyzer.Compare(r.Context(), req.Terms, parseDate(req.CreatedAfter), bearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) trends(w http.ResponseWriter, r *http.Request) {
	var req trendRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Terms = trimTerms(req.Terms)
	if !s.check(w, req) {
		return
	}

	q := analysis.TrendQuery{
		Terms:       req.Terms,
		StartYear:   req.StartYear,
		EndYear:     req.EndYear,
		Granularity: models.Granularity(req.Granularity),
		Metric:      models.Metric(req.Metric),
	}
	if q.EndYear == 0 {
		q.EndYear = s.now().Year()
	}
	if q.Granularity == "" {
		q.Granularity = models.GranularityQuarter
	}
	if q.Metric == "" {
		q.Metric = models.MetricRepositories
	}

	results, err := s.analyzer.Trends(r.Context(), q, bearerToken(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, trendResponse{
		Granularity: q.Granularity,
		Metric:      q.Metric,
		StartYear:   q.StartYear,
		EndYear:     q.EndYear,
		Results:     results,
	})
}

func (s *Server) windows(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := windowsRequest{Granularity: query.Get("granularity")}

	var err error
	if req.StartYear, err = optionalInt(query.Get("start_year")); err != nil {
		writeError(w, http.StatusBadRequest, "start_year must be a number")
		return
	}
	if req.EndYear, err = optionalInt(query.Get("end_year")); err != nil {
		writeError(w, http.StatusBadRequest, "end_year must be a number")
		return
	}
	if !s.check(w, req) {
		return
	}

	if req.EndYear == 0 {
		req.EndYear = s.now().Year()
	}
	granularity := models.Granularity(req.Granularity)
	if granularity == "" {
		granularity = models.GranularityQuarter
	}

	ws, err := s.analyzer.Windows(req.StartYear, req.EndYear, granularity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if ws == nil {
		ws = []models.TimeWindow{}
	}

	writeJSON(w, http.StatusOK, windowsResponse{Granularity: granularity, Windows: ws})
}

// decode reads a JSON body, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// check validates v, writing a 400 on failure
func (s *Server) check(w http.ResponseWriter, v interface{}) bool {
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Field()))
		case "max":
			if fe.Kind() == reflect.Slice {
				messages = append(messages, fmt.Sprintf("%s accepts at most %d terms", fe.Field(), maxTerms))
			} else {
				messages = append(messages, fmt.Sprintf("%s is too long", fe.Field()))
			}
		case "datetime":
			messages = append(messages, fmt.Sprintf("%s must be YYYY-MM-DD", fe.Field()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}

func trimTerms(terms []string) []string {
	trimmed := make([]string, 0, len(terms))
	for _, term := range terms {
		trimmed = append(trimmed, strings.TrimSpace(term))
	}
	return trimmed
}

// parseDate expects a value already validated as YYYY-MM-DD
func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, _ := time.Parse(models.DateLayout, value)
	return t
}

func optionalInt(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
