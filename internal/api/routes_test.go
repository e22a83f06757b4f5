package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cellscope/server/internal/cache"
	"github.com/cellscope/server/internal/dataset"
	"github.com/cellscope/server/internal/datatest"
	"github.com/cellscope/server/internal/render"
	"github.com/cellscope/server/internal/selection"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	if _, err := datatest.Write(dir, "blood", datatest.BloodStore()); err != nil {
		t.Fatalf("failed to write blood fixture: %v", err)
	}
	if _, err := datatest.Write(dir, "brain", datatest.BrainStore()); err != nil {
		t.Fatalf("failed to write brain fixture: %v", err)
	}

	registry, err := dataset.LoadRegistry(dir, "")
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	t.Cleanup(registry.Close)

	cacheManager, err := cache.NewManager(cache.Config{
		FigureCacheSizeMB: 4,
		FigureTTL:         time.Minute,
		QueryCacheSize:    16,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { cacheManager.Close() })

	router := NewRouter(RouterConfig{
		Registry:    registry,
		Machine:     selection.NewMachine(registry),
		Cache:       cacheManager,
		Renderer:    render.NewFigureRenderer(render.Config{Width: 200, Height: 150}),
		CORSOrigins: []string{"*"},
		Title:       "CellScope",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out interface{}) {
	t.Helper()

	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestDatasetsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Default  string `json:"default"`
		Datasets []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"datasets"`
		Title string `json:"title"`
	}
	getJSON(t, srv, "/api/datasets", &body)

	if body.Default != "blood" {
		t.Errorf("expected default dataset 'blood', got %q", body.Default)
	}
	if len(body.Datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(body.Datasets))
	}
	if body.Title != "CellScope" {
		t.Errorf("unexpected title: %q", body.Title)
	}
}

func TestGeneLookup(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		GeneID   string   `json:"gene_id"`
		Datasets []string `json:"datasets"`
	}
	getJSON(t, srv, "/api/gene_lookup?gene_id=Gata1", &body)

	if len(body.Datasets) != 1 || body.Datasets[0] != "blood" {
		t.Fatalf("expected Gata1 only in blood, got %v", body.Datasets)
	}

	resp, err := srv.Client().Get(srv.URL + "/api/gene_lookup")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing gene_id, got %d", resp.StatusCode)
	}
}

func TestSelectionEndpoint_DatasetChangeCascade(t *testing.T) {
	srv := newTestServer(t)

	// Gata1 exists in blood but not in brain: switching datasets must reset it.
	sel := selection.Selection{
		DatasetID:     "brain",
		GeneID:        "Gata1",
		EmbeddingName: "X_umap",
		GroupingVars:  []string{"cell_type", "region"},
	}
	payload, _ := json.Marshal(sel)

	resp, err := srv.Client().Post(srv.URL+"/api/selection", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/selection failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var body struct {
		Selection selection.Selection `json:"selection"`
		Options   selection.Options   `json:"options"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if body.Selection.GeneID != "" {
		t.Errorf("expected gene reset, got %q", body.Selection.GeneID)
	}
	if body.Selection.EmbeddingName != "" {
		t.Errorf("expected embedding reset, got %q", body.Selection.EmbeddingName)
	}
	if len(body.Selection.GroupingVars) != 1 || body.Selection.GroupingVars[0] != "region" {
		t.Errorf("expected groupings filtered to [region], got %v", body.Selection.GroupingVars)
	}
	if len(body.Options.Embeddings) != 1 || body.Options.Embeddings[0] != "X_tsne" {
		t.Errorf("unexpected embedding options: %v", body.Options.Embeddings)
	}
}

func TestSelectionEndpoint_UnknownDataset(t *testing.T) {
	srv := newTestServer(t)

	payload := []byte(`{"dataset_id":"nope"}`)
	resp, err := srv.Client().Post(srv.URL+"/api/selection", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /api/selection failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDatasetScopedMetadata(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		ID         string   `json:"id"`
		NCells     int      `json:"n_cells"`
		NGenes     int      `json:"n_genes"`
		Embeddings []string `json:"embeddings"`
		Groupings  []string `json:"groupings"`
	}
	getJSON(t, srv, "/d/blood/api/metadata", &body)

	if body.ID != "blood" || body.NCells != 6 || body.NGenes != 4 {
		t.Fatalf("unexpected metadata: %+v", body)
	}
	if len(body.Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %v", body.Embeddings)
	}

	resp, err := srv.Client().Get(srv.URL + "/d/nope/api/metadata")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown dataset, got %d", resp.StatusCode)
	}
}

func TestGeneSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Genes []string `json:"genes"`
		Total int      `json:"total"`
	}
	getJSON(t, srv, "/d/blood/api/genes?search=gata", &body)
	if body.Total != 2 || body.Genes[0] != "Gata1" || body.Genes[1] != "gata2" {
		t.Fatalf("unexpected search result: %+v", body)
	}

	// Empty search yields an empty list, not all genes.
	getJSON(t, srv, "/d/blood/api/genes", &body)
	if body.Total != 0 || len(body.Genes) != 0 {
		t.Fatalf("expected empty result for empty search, got %+v", body)
	}

	// Cached second call returns the same payload.
	getJSON(t, srv, "/d/blood/api/genes?search=gata", &body)
	if body.Total != 2 {
		t.Fatalf("unexpected cached result: %+v", body)
	}
}

func TestEmbeddingPlotJSON(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Empty      bool      `json:"empty"`
		X          []float32 `json:"x"`
		ColorMode  string    `json:"color_mode"`
		ColorLabel string    `json:"color_label"`
	}
	getJSON(t, srv, "/d/blood/plots/embedding.json?embedding=X_umap&gene=Gata1&color_source=gene", &body)

	if body.Empty {
		t.Fatal("expected populated plot")
	}
	if len(body.X) != 6 {
		t.Errorf("expected 6 points, got %d", len(body.X))
	}
	if body.ColorMode != "expression" || body.ColorLabel != "Gata1" {
		t.Errorf("unexpected coloring: %+v", body)
	}
}

func TestEmbeddingPlotJSON_EmptyState(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Empty bool `json:"empty"`
	}
	getJSON(t, srv, "/d/blood/plots/embedding.json", &body)
	if !body.Empty {
		t.Fatal("expected empty plot without an embedding")
	}
}

func TestBoxPlotJSON(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Empty  bool   `json:"empty"`
		XVar   string `json:"x_var"`
		Groups []struct {
			XLevel string    `json:"x"`
			Values []float32 `json:"values"`
		} `json:"groups"`
	}
	getJSON(t, srv, "/d/blood/plots/box.json?gene=Gata1&groups=cell_type", &body)

	if body.Empty {
		t.Fatal("expected populated plot")
	}
	if body.XVar != "cell_type" {
		t.Errorf("unexpected x var: %q", body.XVar)
	}
	if len(body.Groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(body.Groups))
	}
}

func TestPlotPNGEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/d/blood/plots/embedding.png?embedding=X_umap&gene=Gata1&color_source=gene",
		"/d/blood/plots/box.png?gene=Gata1&groups=cell_type,donor",
	} {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: unexpected status %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Fatalf("GET %s: unexpected content type %q", path, ct)
		}
		resp.Body.Close()

		// Second request hits the figure cache.
		resp, err = srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatalf("cached GET %s failed: %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("cached GET %s: unexpected status %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]interface{}
	getJSON(t, srv, "/api/stats", &body)
	if body["n_datasets"] != float64(2) {
		t.Fatalf("unexpected stats: %v", body)
	}
}
