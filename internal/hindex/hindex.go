// Package hindex computes H-Index values over scored repositories.
package hindex

import (
	"sort"

	"github.com/domage/github-trend-analyzer/internal/models"
)

// Compute returns the largest k such that at least k repositories have a score >= k.
// The input is not modified.
func Compute(items []models.Repository, field models.ScoreField) int {
	return ComputeSorted(SortByField(items, field), field)
}

// ComputeSorted is Compute for input already sorted descending by field
func ComputeSorted(sorted []models.Repository, field models.ScoreField) int {
	h := 0
	for i, item := range sorted {
		if item.Score(field) < i+1 {
			break
		}
		h = i + 1
	}
	return h
}

// SortByField returns a copy sorted descending by field. Equal scores keep their input order.
func SortByField(items []models.Repository, field models.ScoreField) []models.Repository {
	sorted := make([]models.Repository, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score(field) > sorted[j].Score(field)
	})
	return sorted
}

// Merge combines repository sets keeping each id once. Order is first appearance;
// a later duplicate replaces the earlier value in place.
func Merge(sets ...[]models.Repository) []models.Repository {
	index := make(map[string]int)
	var merged []models.Repository

	for _, set := range sets {
		for _, item := range set {
			if pos, ok := index[item.ID]; ok {
				merged[pos] = item
				continue
			}
			index[item.ID] = len(merged)
			merged = append(merged, item)
		}
	}

	return merged
}

// Top returns at most n repositories with the highest score for field
func Top(items []models.Repository, field models.ScoreField, n int) []models.Repository {
	sorted := SortByField(items, field)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
