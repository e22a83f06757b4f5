// Package api provides HTTP handlers for the CellScope server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cellscope/server/internal/cache"
	"github.com/cellscope/server/internal/dataset"
	"github.com/cellscope/server/internal/options"
	"github.com/cellscope/server/internal/plot"
	"github.com/cellscope/server/internal/render"
	"github.com/cellscope/server/internal/selection"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *dataset.Registry
	Machine     *selection.Machine
	Cache       *cache.Manager
	Renderer    *render.FigureRenderer
	CORSOrigins []string
	Title       string
}

type server struct {
	registry *dataset.Registry
	machine  *selection.Machine
	cache    *cache.Manager
	renderer *render.FigureRenderer
	title    string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	s := &server{
		registry: cfg.Registry,
		machine:  cfg.Machine,
		cache:    cfg.Cache,
		renderer: cfg.Renderer,
		title:    cfg.Title,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global endpoints (not dataset-scoped)
	r.Get("/api/datasets", s.datasetsHandler)
	r.Get("/api/gene_lookup", s.geneLookupHandler)
	r.Get("/api/stats", s.statsHandler)
	r.Post("/api/selection", s.selectionHandler)

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(s.datasetMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Get("/metadata", s.metadataHandler)
			r.Get("/genes", s.genesHandler)
			r.Get("/embeddings", s.embeddingsHandler)
			r.Get("/groupings", s.groupingsHandler)
		})

		r.Route("/plots", func(r chi.Router) {
			r.Get("/embedding.json", s.embeddingPlotJSONHandler)
			r.Get("/embedding.png", s.embeddingPlotPNGHandler)
			r.Get("/box.json", s.boxPlotJSONHandler)
			r.Get("/box.png", s.boxPlotPNGHandler)
		})
	})

	return r
}

// Context key for the resolved dataset
type ctxKey string

const datasetKey ctxKey = "dataset"

// datasetMiddleware resolves the dataset from URL and injects it into context.
func (s *server) datasetMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		datasetID := chi.URLParam(r, "dataset")
		ds, err := s.registry.Get(datasetID)
		if err != nil {
			http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
			return
		}
		ctx := context.WithValue(r.Context(), datasetKey, ds)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getDataset(r *http.Request) *dataset.Dataset {
	if ds, ok := r.Context().Value(datasetKey).(*dataset.Dataset); ok {
		return ds
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// datasetsHandler returns the list of available datasets.
func (s *server) datasetsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"default":  s.registry.DefaultID(),
		"datasets": s.registry.List(),
		"title":    s.title,
	})
}

// geneLookupHandler resolves a gene_id to the list of datasets containing it.
func (s *server) geneLookupHandler(w http.ResponseWriter, r *http.Request) {
	geneID := strings.TrimSpace(r.URL.Query().Get("gene_id"))
	if geneID == "" {
		http.Error(w, "missing required query param: gene_id", http.StatusBadRequest)
		return
	}

	var matching []string
	for _, id := range s.registry.IDs() {
		ds, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		if ds.HasGene(geneID) {
			matching = append(matching, id)
		}
	}

	writeJSON(w, map[string]interface{}{
		"gene_id":  geneID,
		"datasets": matching,
	})
}

// statsHandler reports registry size and cache occupancy.
func (s *server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"n_datasets": len(s.registry.IDs()),
	}
	for k, v := range s.cache.Stats() {
		stats[k] = v
	}
	writeJSON(w, stats)
}

// selectionHandler resolves a posted selection against the registry and
// returns the normalized selection with its option lists.
func (s *server) selectionHandler(w http.ResponseWriter, r *http.Request) {
	var sel selection.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resolved, opts, err := s.machine.Resolve(sel)
	if err != nil {
		if errors.Is(err, dataset.ErrUnknownDataset) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"selection": resolved,
		"options":   opts,
	})
}

func (s *server) metadataHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	meta := s.registry.MetadataFor(ds.ID())

	name := meta.DisplayName
	if name == "" {
		name = ds.Name()
	}

	writeJSON(w, map[string]interface{}{
		"id":             ds.ID(),
		"name":           name,
		"n_cells":        ds.NCells(),
		"n_genes":        len(ds.Genes()),
		"reference_text": meta.ReferenceText,
		"reference_uri":  meta.ReferenceURI,
		"embeddings":     options.EmbeddingOptions(ds),
		"groupings":      options.GroupingOptions(ds),
	})
}

// genesHandler returns gene options matching the search text. An empty search
// yields an empty list. Results are cached per (dataset, search).
func (s *server) genesHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	key := cache.QueryKey(ds.ID(), "gene_search", strings.ToLower(search))
	if data, ok := s.cache.GetQuery(key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
		return
	}

	genes := options.GeneOptions(ds, search)
	if genes == nil {
		genes = []string{}
	}
	response := map[string]interface{}{
		"search": search,
		"genes":  genes,
		"total":  len(genes),
	}

	encoded, err := json.Marshal(response)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.cache.SetQuery(key, encoded)

	w.Header().Set("Content-Type", "application/json")
	w.Write(encoded)
}

func (s *server) embeddingsHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	writeJSON(w, map[string]interface{}{
		"embeddings": options.EmbeddingOptions(ds),
	})
}

func (s *server) groupingsHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	writeJSON(w, map[string]interface{}{
		"groupings": options.GroupingOptions(ds),
	})
}

// selectionFromQuery builds a selection from plot query parameters and runs
// it through the machine so illegal values fall back instead of erroring.
func (s *server) selectionFromQuery(r *http.Request) (selection.Selection, selection.Options, error) {
	q := r.URL.Query()
	sel := selection.Selection{
		DatasetID:     chi.URLParam(r, "dataset"),
		GeneID:        strings.TrimSpace(q.Get("gene")),
		EmbeddingName: strings.TrimSpace(q.Get("embedding")),
		ColorSource:   selection.ColorSource(strings.TrimSpace(q.Get("color_source"))),
		ColorVar:      strings.TrimSpace(q.Get("color_var")),
	}
	if groups := strings.TrimSpace(q.Get("groups")); groups != "" {
		for _, g := range strings.Split(groups, ",") {
			if g = strings.TrimSpace(g); g != "" {
				sel.GroupingVars = append(sel.GroupingVars, g)
			}
		}
	}
	return s.machine.Resolve(sel)
}

func (s *server) buildEmbeddingPlot(r *http.Request) (*plot.ScatterPlot, selection.Selection, error) {
	ds := getDataset(r)
	sel, _, err := s.selectionFromQuery(r)
	if err != nil {
		return nil, sel, err
	}
	p, err := plot.BuildEmbeddingPlot(ds, sel)
	return p, sel, err
}

func (s *server) buildBoxPlot(r *http.Request) (*plot.BoxPlot, selection.Selection, error) {
	ds := getDataset(r)
	sel, opts, err := s.selectionFromQuery(r)
	if err != nil {
		return nil, sel, err
	}
	p, err := plot.BuildGroupedBoxPlot(ds, sel, opts.Groupings)
	return p, sel, err
}

func (s *server) embeddingPlotJSONHandler(w http.ResponseWriter, r *http.Request) {
	p, _, err := s.buildEmbeddingPlot(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, p)
}

func (s *server) embeddingPlotPNGHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	p, sel, err := s.buildEmbeddingPlot(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	key := cache.FigureKey(ds.ID(), "embedding", sel)
	if data, ok := s.cache.GetFigure(key); ok {
		writePNG(w, data)
		return
	}

	data, err := s.renderer.RenderScatter(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.cache.SetFigure(key, data)
	writePNG(w, data)
}

func (s *server) boxPlotJSONHandler(w http.ResponseWriter, r *http.Request) {
	p, _, err := s.buildBoxPlot(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, p)
}

func (s *server) boxPlotPNGHandler(w http.ResponseWriter, r *http.Request) {
	ds := getDataset(r)
	p, sel, err := s.buildBoxPlot(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	key := cache.FigureKey(ds.ID(), "box", sel)
	if data, ok := s.cache.GetFigure(key); ok {
		writePNG(w, data)
		return
	}

	data, err := s.renderer.RenderBox(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.cache.SetFigure(key, data)
	writePNG(w, data)
}
