// Package windows splits a range of years into contiguous calendar windows.
//
// Only completed periods are produced: a window whose last day is today or later is
// dropped, so counts for different windows stay comparable.
package windows

import (
	"fmt"
	"strings"
	"time"

	"github.com/domage/github-trend-analyzer/internal/models"
)

// ParseGranularity validates a granularity name
func ParseGranularity(s string) (models.Granularity, error) {
	switch g := models.Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case models.GranularityYear, models.GranularityQuarter, models.GranularityMonth:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q (want year, quarter or month)", s)
}

// Generate returns the completed windows between startYear and endYear inclusive
func Generate(startYear, endYear int, granularity models.Granularity) ([]models.TimeWindow, error) {
	return GenerateAt(time.Now(), startYear, endYear, granularity)
}

// GenerateAt is Generate with an explicit current time.
// startYear > endYear yields an empty result.
func GenerateAt(now time.Time, startYear, endYear int, granularity models.Granularity) ([]models.TimeWindow, error) {
	var monthsPer int
	switch granularity {
	case models.GranularityYear:
		monthsPer = 12
	case models.GranularityQuarter:
		monthsPer = 3
	case models.GranularityMonth:
		monthsPer = 1
	default:
		return nil, fmt.Errorf("unknown granularity %q", granularity)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var result []models.TimeWindow
	for year := startYear; year <= endYear; year++ {
		for first := 1; first <= 12; first += monthsPer {
			last := first + monthsPer - 1
			start := time.Date(year, time.Month(first), 1, 0, 0, 0, 0, time.UTC)
			end := time.Date(year, time.Month(last), DaysIn(year, time.Month(last)), 0, 0, 0, 0, time.UTC)

			if !end.Before(today) {
				// the current period and everything after it are incomplete
				return result, nil
			}

			result = append(result, models.TimeWindow{
				Start: start,
				End:   end,
				Label: label(year, first, granularity),
			})
		}
	}

	return result, nil
}

// DaysIn returns the number of days in month, counting February 29 on leap years
func DaysIn(year int, month time.Month) int {
	switch month {
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	}
	return 31
}

// IsLeapYear reports whether year has a February 29
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func label(year, firstMonth int, granularity models.Granularity) string {
	switch granularity {
	case models.GranularityQuarter:
		return fmt.Sprintf("%d-Q%d", year, (firstMonth-1)/3+1)
	case models.GranularityMonth:
		return fmt.Sprintf("%d-%02d", year, firstMonth)
	}
	return fmt.Sprintf("%d", year)
}
