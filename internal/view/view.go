// Package view derives query-ready tabular views from a dataset.
//
// Every derived table is keyed by the owning dataset's cell ordering, so
// views for one dataset can be joined positionally without re-alignment.
package view

import (
	"github.com/cellscope/server/internal/dataset"
)

// ExpressionColumnName is the column name shared by gene and zero columns.
const ExpressionColumnName = "Expression"

// Column is a single named per-cell column.
type Column struct {
	Name   string
	Values []float32
}

// Coordinates is a two-column (x, y) per-cell table.
type Coordinates struct {
	X []float32
	Y []float32
}

// Table is a covariate sub-table, one column per requested covariate.
type Table struct {
	Columns []*dataset.Covariate
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *dataset.Covariate {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// GeneColumn derives the expression column for one gene.
func GeneColumn(d *dataset.Dataset, geneID string) (*Column, error) {
	values, err := d.GeneColumn(geneID)
	if err != nil {
		return nil, err
	}
	return &Column{Name: ExpressionColumnName, Values: values}, nil
}

// ZeroColumn derives an all-zero expression column, used when a plot needs an
// expression axis but no gene is selected.
func ZeroColumn(d *dataset.Dataset) *Column {
	return &Column{Name: ExpressionColumnName, Values: make([]float32, d.NCells())}
}

// EmbeddingCoordinates derives the (x, y) table from the first two axes of
// the named embedding.
func EmbeddingCoordinates(d *dataset.Dataset, embeddingName string) (*Coordinates, error) {
	xs, ys, err := d.Embedding(embeddingName)
	if err != nil {
		return nil, err
	}
	return &Coordinates{X: xs, Y: ys}, nil
}

// CovariateTable derives a sub-table with one column per requested covariate.
// Any unknown name fails the whole derivation.
func CovariateTable(d *dataset.Dataset, varNames []string) (*Table, error) {
	columns := make([]*dataset.Covariate, 0, len(varNames))
	for _, name := range varNames {
		c, err := d.Covariate(name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return &Table{Columns: columns}, nil
}
