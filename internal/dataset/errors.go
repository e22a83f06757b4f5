package dataset

import "errors"

// Taxonomy of data-integrity errors. These surface only when a caller asks
// for a value that the selection engine should already have invalidated.
var (
	ErrUnknownDataset   = errors.New("unknown dataset")
	ErrUnknownGene      = errors.New("unknown gene")
	ErrUnknownEmbedding = errors.New("unknown embedding")
	ErrUnknownCovariate = errors.New("unknown covariate")
)
