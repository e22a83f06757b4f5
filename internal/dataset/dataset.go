// Package dataset provides read-only access to loaded single-cell datasets.
//
// A Dataset bundles an expression matrix, per-cell covariates and named
// embeddings that all share one cell ordering. Everything is immutable after
// Open, so concurrent reads need no locking; the backing store is read lazily
// per query.
package dataset

import (
	"fmt"
	"sort"

	"github.com/cellscope/server/internal/data/zarr"
)

// CovariateKind classifies a per-cell annotation column.
type CovariateKind string

const (
	Categorical CovariateKind = "categorical"
	Bool        CovariateKind = "bool"
	Numeric     CovariateKind = "numeric"
)

var boolLevels = []string{"false", "true"}

// Covariate is one fully read per-cell annotation column.
type Covariate struct {
	Name   string
	Kind   CovariateKind
	Levels []string  // categorical levels; ["false","true"] for bools
	Codes  []int32   // per-cell level index (categorical and bool)
	Values []float32 // per-cell value (numeric)
}

// LevelCount returns the number of distinct levels the column can take.
func (c *Covariate) LevelCount() int {
	return len(c.Levels)
}

// LabelAt returns the level label for cell i, or "" for numeric columns.
func (c *Covariate) LabelAt(i int) string {
	if c.Kind == Numeric || i < 0 || i >= len(c.Codes) {
		return ""
	}
	code := int(c.Codes[i])
	if code < 0 || code >= len(c.Levels) {
		return ""
	}
	return c.Levels[code]
}

// Dataset is one immutable, backed-read single-cell dataset.
type Dataset struct {
	id    string
	store *zarr.Store
	meta  *zarr.StoreMetadata

	embeddingNames []string
	covariateNames []string
}

// Open opens the store at path as dataset id.
func Open(id, path string) (*Dataset, error) {
	store, err := zarr.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", id, err)
	}

	meta := store.Metadata()

	embeddingNames := make([]string, 0, len(meta.Embeddings))
	for name := range meta.Embeddings {
		embeddingNames = append(embeddingNames, name)
	}
	sort.Strings(embeddingNames)

	covariateNames := make([]string, 0, len(meta.Covariates))
	for name := range meta.Covariates {
		covariateNames = append(covariateNames, name)
	}
	sort.Strings(covariateNames)

	return &Dataset{
		id:             id,
		store:          store,
		meta:           meta,
		embeddingNames: embeddingNames,
		covariateNames: covariateNames,
	}, nil
}

// ID returns the dataset identifier.
func (d *Dataset) ID() string {
	return d.id
}

// Name returns the dataset's self-declared name, falling back to the id.
func (d *Dataset) Name() string {
	if d.meta.DatasetName != "" {
		return d.meta.DatasetName
	}
	return d.id
}

// NCells returns the number of cells.
func (d *Dataset) NCells() int {
	return d.meta.NCells
}

// Genes returns all gene identifiers in native store order.
func (d *Dataset) Genes() []string {
	return d.meta.Genes
}

// HasGene reports whether the gene exists in this dataset.
func (d *Dataset) HasGene(gene string) bool {
	_, ok := d.meta.GeneIndex[gene]
	return ok
}

// GeneColumn reads the expression column for one gene, one value per cell in
// store order.
func (d *Dataset) GeneColumn(gene string) ([]float32, error) {
	idx, ok := d.meta.GeneIndex[gene]
	if !ok {
		return nil, fmt.Errorf("%w: %q in dataset %q", ErrUnknownGene, gene, d.id)
	}
	values, err := d.store.ReadMatrixColumn("X", idx)
	if err != nil {
		return nil, fmt.Errorf("gene %q in dataset %q: %w", gene, d.id, err)
	}
	return values, nil
}

// EmbeddingNames returns all embedding names, sorted.
func (d *Dataset) EmbeddingNames() []string {
	return d.embeddingNames
}

// HasEmbedding reports whether the named embedding exists.
func (d *Dataset) HasEmbedding(name string) bool {
	_, ok := d.meta.Embeddings[name]
	return ok
}

// Embedding reads the first two axes of the named embedding, one coordinate
// pair per cell in store order. Sparsely stored embeddings come back dense.
func (d *Dataset) Embedding(name string) (xs, ys []float32, err error) {
	info, ok := d.meta.Embeddings[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q in dataset %q", ErrUnknownEmbedding, name, d.id)
	}
	if info.NDims < 2 {
		return nil, nil, fmt.Errorf("embedding %q in dataset %q has %d dims, need >= 2", name, d.id, info.NDims)
	}

	array := "obsm/" + name
	xs, err = d.store.ReadMatrixColumn(array, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding %q in dataset %q: %w", name, d.id, err)
	}
	ys, err = d.store.ReadMatrixColumn(array, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding %q in dataset %q: %w", name, d.id, err)
	}
	return xs, ys, nil
}

// CovariateNames returns all covariate names, sorted.
func (d *Dataset) CovariateNames() []string {
	return d.covariateNames
}

// CovariateInfo returns the declared kind and levels of a covariate without
// reading per-cell data.
func (d *Dataset) CovariateInfo(name string) (zarr.CovariateInfo, bool) {
	info, ok := d.meta.Covariates[name]
	return info, ok
}

// Covariate reads one annotation column in full.
func (d *Dataset) Covariate(name string) (*Covariate, error) {
	info, ok := d.meta.Covariates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in dataset %q", ErrUnknownCovariate, name, d.id)
	}

	array := "obs/" + name
	switch CovariateKind(info.Kind) {
	case Categorical:
		codes, err := d.store.ReadInt32Vector(array)
		if err != nil {
			return nil, fmt.Errorf("covariate %q in dataset %q: %w", name, d.id, err)
		}
		return &Covariate{Name: name, Kind: Categorical, Levels: info.Levels, Codes: codes}, nil
	case Bool:
		codes, err := d.store.ReadInt32Vector(array)
		if err != nil {
			return nil, fmt.Errorf("covariate %q in dataset %q: %w", name, d.id, err)
		}
		return &Covariate{Name: name, Kind: Bool, Levels: boolLevels, Codes: codes}, nil
	case Numeric:
		values, err := d.store.ReadFloat32Vector(array)
		if err != nil {
			return nil, fmt.Errorf("covariate %q in dataset %q: %w", name, d.id, err)
		}
		return &Covariate{Name: name, Kind: Numeric, Values: values}, nil
	default:
		return nil, fmt.Errorf("covariate %q in dataset %q has unknown kind %q", name, d.id, info.Kind)
	}
}

// Close releases the backing store.
func (d *Dataset) Close() {
	d.store.Close()
}
