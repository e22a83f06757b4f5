package dataset

import (
	"errors"
	"testing"

	"github.com/cellscope/server/internal/datatest"
)

func openBlood(t *testing.T) *Dataset {
	t.Helper()

	path, err := datatest.Write(t.TempDir(), "blood", datatest.BloodStore())
	if err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	ds, err := Open("blood", path)
	if err != nil {
		t.Fatalf("failed to open dataset: %v", err)
	}
	t.Cleanup(ds.Close)
	return ds
}

func TestGeneColumn(t *testing.T) {
	ds := openBlood(t)

	col, err := ds.GeneColumn("Gata1")
	if err != nil {
		t.Fatalf("GeneColumn error: %v", err)
	}
	if len(col) != ds.NCells() {
		t.Fatalf("expected one value per cell (%d), got %d", ds.NCells(), len(col))
	}
	want := []float32{0, 2, 0, 1, 3, 0}
	for i := range want {
		if col[i] != want[i] {
			t.Fatalf("cell %d: got %v want %v", i, col[i], want[i])
		}
	}
}

func TestGeneColumn_Unknown(t *testing.T) {
	ds := openBlood(t)

	_, err := ds.GeneColumn("Nope1")
	if !errors.Is(err, ErrUnknownGene) {
		t.Fatalf("expected ErrUnknownGene, got %v", err)
	}
}

func TestEmbedding_FirstTwoAxes(t *testing.T) {
	ds := openBlood(t)

	// X_pca has 3 dims; only the first two come back.
	xs, ys, err := ds.Embedding("X_pca")
	if err != nil {
		t.Fatalf("Embedding error: %v", err)
	}
	if len(xs) != ds.NCells() || len(ys) != ds.NCells() {
		t.Fatalf("expected %d coords, got %d/%d", ds.NCells(), len(xs), len(ys))
	}
	if xs[1] != 0.4 || ys[1] != 0.5 {
		t.Fatalf("cell 1: got (%v,%v) want (0.4,0.5)", xs[1], ys[1])
	}

	if _, _, err := ds.Embedding("X_missing"); !errors.Is(err, ErrUnknownEmbedding) {
		t.Fatalf("expected ErrUnknownEmbedding, got %v", err)
	}
}

func TestEmbeddingNames_Sorted(t *testing.T) {
	ds := openBlood(t)

	names := ds.EmbeddingNames()
	if len(names) != 2 || names[0] != "X_pca" || names[1] != "X_umap" {
		t.Fatalf("unexpected embedding names: %v", names)
	}
}

func TestCovariate_Kinds(t *testing.T) {
	ds := openBlood(t)

	cat, err := ds.Covariate("cell_type")
	if err != nil {
		t.Fatalf("Covariate(cell_type) error: %v", err)
	}
	if cat.Kind != Categorical || cat.LevelCount() != 3 {
		t.Fatalf("unexpected cell_type covariate: kind=%s levels=%d", cat.Kind, cat.LevelCount())
	}
	if got := cat.LabelAt(1); got != "B" {
		t.Fatalf("LabelAt(1): got %q want %q", got, "B")
	}

	b, err := ds.Covariate("treated")
	if err != nil {
		t.Fatalf("Covariate(treated) error: %v", err)
	}
	if b.Kind != Bool || b.LevelCount() != 2 {
		t.Fatalf("unexpected treated covariate: kind=%s levels=%d", b.Kind, b.LevelCount())
	}
	if got := b.LabelAt(0); got != "true" {
		t.Fatalf("LabelAt(0): got %q want %q", got, "true")
	}

	num, err := ds.Covariate("n_counts")
	if err != nil {
		t.Fatalf("Covariate(n_counts) error: %v", err)
	}
	if num.Kind != Numeric || len(num.Values) != ds.NCells() {
		t.Fatalf("unexpected n_counts covariate: kind=%s values=%d", num.Kind, len(num.Values))
	}

	if _, err := ds.Covariate("missing"); !errors.Is(err, ErrUnknownCovariate) {
		t.Fatalf("expected ErrUnknownCovariate, got %v", err)
	}
}

// Alignment: every derived column has one row per cell, in the same order.
func TestCellAlignment(t *testing.T) {
	ds := openBlood(t)

	for _, gene := range ds.Genes() {
		col, err := ds.GeneColumn(gene)
		if err != nil {
			t.Fatalf("GeneColumn(%q) error: %v", gene, err)
		}
		if len(col) != ds.NCells() {
			t.Fatalf("gene %q: %d rows, want %d", gene, len(col), ds.NCells())
		}
	}
	for _, name := range ds.EmbeddingNames() {
		xs, ys, err := ds.Embedding(name)
		if err != nil {
			t.Fatalf("Embedding(%q) error: %v", name, err)
		}
		if len(xs) != ds.NCells() || len(ys) != ds.NCells() {
			t.Fatalf("embedding %q: %d/%d rows, want %d", name, len(xs), len(ys), ds.NCells())
		}
	}
}
