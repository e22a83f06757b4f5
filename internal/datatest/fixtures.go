package datatest

// BloodStore is a small fixture with the marker gene Gata1, two categorical
// covariates, one bool, one numeric, and two embeddings.
func BloodStore() Store {
	return Store{
		DatasetName: "Blood atlas",
		Genes:       []string{"Gata1", "Actb", "Cd4", "gata2"},
		Expression: [][]float32{
			{0, 5, 1, 0},
			{2, 4, 0, 1},
			{0, 3, 2, 0},
			{1, 6, 0, 2},
			{3, 2, 1, 0},
			{0, 1, 0, 3},
		},
		Categorical: map[string]CategoricalColumn{
			"cell_type": {
				Levels: []string{"T", "B", "NK"},
				Codes:  []int32{0, 1, 2, 0, 1, 2},
			},
			"donor": {
				Levels: []string{"d1", "d2"},
				Codes:  []int32{0, 0, 0, 1, 1, 1},
			},
			"barcode": {
				// 24 declared levels: over the grouping cap, excluded.
				Levels: []string{
					"b01", "b02", "b03", "b04", "b05", "b06", "b07", "b08",
					"b09", "b10", "b11", "b12", "b13", "b14", "b15", "b16",
					"b17", "b18", "b19", "b20", "b21", "b22", "b23", "b24",
				},
				Codes: []int32{0, 1, 2, 3, 4, 5},
			},
			"batch": {
				// Single level: excluded from grouping options.
				Levels: []string{"batch1"},
				Codes:  []int32{0, 0, 0, 0, 0, 0},
			},
		},
		Bool: map[string][]bool{
			"treated": {true, false, true, false, true, false},
		},
		Numeric: map[string][]float32{
			"n_counts": {100, 200, 150, 300, 250, 180},
		},
		Embeddings: map[string][][]float32{
			"X_umap": {
				{0.0, 1.0}, {1.0, 2.0}, {2.0, 0.5}, {3.0, 1.5}, {0.5, 2.5}, {1.5, 0.0},
			},
			"X_pca": {
				{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}, {0.7, 0.8, 0.9},
				{1.0, 1.1, 1.2}, {1.3, 1.4, 1.5}, {1.6, 1.7, 1.8},
			},
		},
	}
}

// BrainStore is a second fixture without Gata1, used for cross-dataset
// invalidation tests.
func BrainStore() Store {
	return Store{
		DatasetName: "Brain atlas",
		Genes:       []string{"Sox2", "Nes", "Map2"},
		Expression: [][]float32{
			{1, 0, 2},
			{0, 3, 1},
			{2, 1, 0},
			{0, 0, 4},
		},
		Categorical: map[string]CategoricalColumn{
			"region": {
				Levels: []string{"cortex", "hippocampus"},
				Codes:  []int32{0, 1, 0, 1},
			},
		},
		Embeddings: map[string][][]float32{
			"X_tsne": {
				{-1.0, 0.0}, {0.0, 1.0}, {1.0, -1.0}, {0.5, 0.5},
			},
		},
	}
}
