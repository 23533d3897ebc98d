// Package api exposes the analyzer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/domage/github-trend-analyzer/internal/analysis"
	"github.com/domage/github-trend-analyzer/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Analyzer is the application surface served by the API
type Analyzer interface {
	HIndex(ctx context.Context, term string, createdAfter time.Time, field models.ScoreField, credential string) (*models.HIndexResult, error)
	Compare(ctx context.Context, terms []string, createdAfter time.Time, credential string) (*models.ComparisonReport, error)
	Trends(ctx context.Context, q analysis.TrendQuery, credential string) ([]models.TermTrend, error)
	Windows(startYear, endYear int, granularity models.Granularity) ([]models.TimeWindow, error)
	RunDigest(ctx context.Context) error
	GetStats() string
}

type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// Server holds the handlers' dependencies
type Server struct {
	analyzer Analyzer
	gatherer prometheus.Gatherer
	validate *validator.Validate
	now      func() time.Time
}

// NewRouter builds the HTTP routes
func NewRouter(analyzer Analyzer, gatherer prometheus.Gatherer) *mux.Router {
	s := &Server{
		analyzer: analyzer,
		gatherer: gatherer,
		validate: newValidator(),
		now:      time.Now,
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware, loggingMiddleware)

	router.HandleFunc("/health", s.healthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/stats", s.stats).Methods("GET")
	router.HandleFunc("/trigger", s.trigger).Methods("POST")

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/hindex", s.hindex).Methods("GET")
	v1.HandleFunc("/comparisons", s.comparisons).Methods("POST")
	v1.HandleFunc("/trends", s.trends).Methods("POST")
	v1.HandleFunc("/windows", s.windows).Methods("GET")

	return router
}

// newValidator reports fields by their json names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestIDMiddleware keeps an incoming X-Request-ID or assigns a new one
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logrus.WithFields(logrus.Fields{
			"request_id": requestIDFrom(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
		}).Info("HTTP request")
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// bearerToken returns the token of an Authorization: Bearer header, or ""
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeServiceError maps the error taxonomy to status codes
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrPrecondition):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	logrus.WithField("request_id", requestIDFrom(r.Context())).Errorf("Request failed: %v", err)
	writeError(w, status, err.Error())
}
