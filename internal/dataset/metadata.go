package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Metadata is the per-dataset display record. The zero value is the fallback
// used when no entry exists for a dataset id.
type Metadata struct {
	DisplayName   string `yaml:"display" json:"display_name"`
	ReferenceText string `yaml:"reference_text" json:"reference_text"`
	ReferenceURI  string `yaml:"reference_uri" json:"reference_uri"`
}

type metadataEntry struct {
	File          string `yaml:"file"`
	Display       string `yaml:"display"`
	ReferenceText string `yaml:"reference_text"`
	ReferenceURI  string `yaml:"reference_uri"`
}

// loadMetadataFile parses the optional display-metadata file. Entries are
// keyed by file name with the extension stripped, matching dataset ids
// derived from store names. A missing file yields an empty map.
func loadMetadataFile(path string) (map[string]Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Metadata{}, nil
		}
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var entries []metadataEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file: %w", err)
	}

	out := make(map[string]Metadata, len(entries))
	for _, e := range entries {
		if e.File == "" {
			continue
		}
		id := e.File
		if ext := filepath.Ext(id); ext != "" {
			id = id[:len(id)-len(ext)]
		}
		out[id] = Metadata{
			DisplayName:   e.Display,
			ReferenceText: e.ReferenceText,
			ReferenceURI:  e.ReferenceURI,
		}
	}
	return out, nil
}
