package dataset

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Info identifies a dataset for listing purposes.
type Info struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registry owns the set of loaded datasets and their display metadata. It is
// the sole source of truth for which datasets exist, and is safe for
// concurrent use once built.
type Registry struct {
	order    []string
	datasets map[string]*Dataset
	metadata map[string]Metadata
}

const storeExt = ".zarr"

// LoadRegistry scans dataDir for dataset stores and opens each in backed
// mode. A store that fails to open is logged and excluded; only an unreadable
// data directory is fatal. metadataPath may be empty or point to a missing
// file, in which case every dataset gets the default metadata record.
func LoadRegistry(dataDir, metadataPath string) (*Registry, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory %q: %w", dataDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), storeExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	r := &Registry{
		datasets: make(map[string]*Dataset, len(names)),
		metadata: make(map[string]Metadata),
	}

	for _, name := range names {
		id := strings.TrimSuffix(name, storeExt)
		ds, err := Open(id, filepath.Join(dataDir, name))
		if err != nil {
			log.Printf("  [%s] skipped: %v", id, err)
			continue
		}
		r.order = append(r.order, id)
		r.datasets[id] = ds
	}

	if metadataPath != "" {
		meta, err := loadMetadataFile(metadataPath)
		if err != nil {
			// Display metadata never blocks dataset availability.
			log.Printf("metadata file %s ignored: %v", metadataPath, err)
		} else {
			r.metadata = meta
		}
	}

	return r, nil
}

// IDs returns all loaded dataset ids in scan order.
func (r *Registry) IDs() []string {
	return r.order
}

// DefaultID returns the first loaded dataset id, or "" when none loaded.
func (r *Registry) DefaultID() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// List returns (id, display_name) pairs in scan order.
func (r *Registry) List() []Info {
	infos := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		name := r.metadata[id].DisplayName
		if name == "" {
			name = r.datasets[id].Name()
		}
		infos = append(infos, Info{ID: id, Name: name})
	}
	return infos
}

// Get resolves a dataset id, failing fast with ErrUnknownDataset for ids that
// are not loaded (including ones that failed to open at startup).
func (r *Registry) Get(id string) (*Dataset, error) {
	ds, ok := r.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataset, id)
	}
	return ds, nil
}

// MetadataFor returns the display metadata for a dataset id, degrading to the
// default record when no entry exists.
func (r *Registry) MetadataFor(id string) Metadata {
	return r.metadata[id]
}

// Close releases all datasets.
func (r *Registry) Close() {
	for _, ds := range r.datasets {
		ds.Close()
	}
}
