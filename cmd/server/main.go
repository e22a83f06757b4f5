// Package main is the entry point for the CellScope server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cellscope/server/internal/api"
	"github.com/cellscope/server/internal/cache"
	"github.com/cellscope/server/internal/config"
	"github.com/cellscope/server/internal/dataset"
	"github.com/cellscope/server/internal/render"
	"github.com/cellscope/server/internal/selection"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting %s on port %d", cfg.DisplayTitle(), cfg.Server.Port)

	cacheManager, err := cache.NewManager(cache.Config{
		FigureCacheSizeMB: cfg.Cache.FigureSizeMB,
		FigureTTL:         time.Duration(cfg.Cache.FigureTTLMinutes) * time.Minute,
		QueryCacheSize:    cfg.Cache.QueryCacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	renderer := render.NewFigureRenderer(render.Config{
		Width:           cfg.Render.Width,
		Height:          cfg.Render.Height,
		DefaultColormap: cfg.Render.DefaultColormap,
		PointSize:       cfg.Render.PointSize,
	})

	log.Printf("Scanning datasets in %s", cfg.Data.Dir)
	registry, err := dataset.LoadRegistry(cfg.Data.Dir, cfg.Data.MetadataFile)
	if err != nil {
		log.Fatalf("Failed to load dataset registry: %v", err)
	}
	defer registry.Close()

	if len(registry.IDs()) == 0 {
		log.Fatalf("No datasets found in %s", cfg.Data.Dir)
	}
	for _, id := range registry.IDs() {
		ds, err := registry.Get(id)
		if err != nil {
			continue
		}
		log.Printf("  [%s] %s: %d cells, %d genes", id, ds.Name(), ds.NCells(), len(ds.Genes()))
	}
	log.Printf("Default dataset: %s", registry.DefaultID())

	machine := selection.NewMachine(registry)

	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		Machine:     machine,
		Cache:       cacheManager,
		Renderer:    renderer,
		CORSOrigins: cfg.Server.CORSOrigins,
		Title:       cfg.DisplayTitle(),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
