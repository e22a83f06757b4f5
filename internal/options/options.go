// Package options computes the legal values for each selectable control.
package options

import (
	"strings"

	"github.com/cellscope/server/internal/dataset"
)

// MaxGroupingLevels is the exclusive upper bound on distinct levels for a
// categorical covariate to remain usable as a grouping variable. Beyond it,
// legends and facets become unreadable.
const MaxGroupingLevels = 24

// GeneOptions returns gene ids containing searchText as a case-insensitive
// substring, in the dataset's native gene order. Empty search text returns an
// empty result, never all genes, to keep responses bounded.
func GeneOptions(d *dataset.Dataset, searchText string) []string {
	if searchText == "" {
		return nil
	}
	needle := strings.ToLower(searchText)
	var out []string
	for _, gene := range d.Genes() {
		if strings.Contains(strings.ToLower(gene), needle) {
			out = append(out, gene)
		}
	}
	return out
}

// EmbeddingOptions returns all embedding names, unfiltered.
func EmbeddingOptions(d *dataset.Dataset) []string {
	return d.EmbeddingNames()
}

// GroupingOptions returns covariate names eligible for grouping: all bools,
// plus categoricals with more than one and fewer than MaxGroupingLevels
// distinct levels. Single-level covariates carry no information.
func GroupingOptions(d *dataset.Dataset) []string {
	var out []string
	for _, name := range d.CovariateNames() {
		info, ok := d.CovariateInfo(name)
		if !ok {
			continue
		}
		switch dataset.CovariateKind(info.Kind) {
		case dataset.Bool:
			out = append(out, name)
		case dataset.Categorical:
			if n := len(info.Levels); n > 1 && n < MaxGroupingLevels {
				out = append(out, name)
			}
		}
	}
	return out
}
