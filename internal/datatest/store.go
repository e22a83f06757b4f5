// Package datatest builds miniature on-disk dataset stores for package tests.
package datatest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
)

// CategoricalColumn is a per-cell categorical annotation.
type CategoricalColumn struct {
	Levels []string
	Codes  []int32
}

// Store describes the contents of a fixture store.
type Store struct {
	DatasetName string
	Genes       []string
	Expression  [][]float32 // row-major: Expression[cell][gene]
	Categorical map[string]CategoricalColumn
	Bool        map[string][]bool
	Numeric     map[string][]float32
	Embeddings  map[string][][]float32 // Embeddings[name][cell] = coords, >= 2 dims

	// SparseEmbeddings skips all-zero embedding chunks on disk, exercising
	// the reader's fill-value densification.
	SparseEmbeddings bool
}

// chunkRows keeps fixture arrays multi-chunk so chunk iteration is exercised.
const chunkRows = 4

// Write materializes the store as <dir>/<name>.zarr and returns its path.
func Write(dir, name string, s Store) (string, error) {
	base := filepath.Join(dir, name+".zarr")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", err
	}

	nCells := len(s.Expression)
	if err := writeMetadata(base, name, nCells, s); err != nil {
		return "", err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return "", err
	}
	defer enc.Close()

	w := &arrayWriter{enc: enc}

	// Expression matrix [n_cells, n_genes]
	if err := w.writeMatrix(filepath.Join(base, "X"), s.Expression, len(s.Genes), false); err != nil {
		return "", err
	}

	for cname, col := range s.Categorical {
		if err := w.writeInt32Vector(filepath.Join(base, "obs", cname), col.Codes); err != nil {
			return "", err
		}
	}
	for cname, vals := range s.Bool {
		codes := make([]int32, len(vals))
		for i, v := range vals {
			if v {
				codes[i] = 1
			}
		}
		if err := w.writeInt32Vector(filepath.Join(base, "obs", cname), codes); err != nil {
			return "", err
		}
	}
	for cname, vals := range s.Numeric {
		if err := w.writeFloat32Vector(filepath.Join(base, "obs", cname), vals); err != nil {
			return "", err
		}
	}

	for ename, coords := range s.Embeddings {
		nDims := 0
		if len(coords) > 0 {
			nDims = len(coords[0])
		}
		if err := w.writeMatrix(filepath.Join(base, "obsm", ename), coords, nDims, s.SparseEmbeddings); err != nil {
			return "", err
		}
	}

	return base, nil
}

func writeMetadata(base, name string, nCells int, s Store) error {
	covariates := make(map[string]map[string]interface{})
	for cname, col := range s.Categorical {
		covariates[cname] = map[string]interface{}{"kind": "categorical", "levels": col.Levels}
	}
	for cname := range s.Bool {
		covariates[cname] = map[string]interface{}{"kind": "bool"}
	}
	for cname := range s.Numeric {
		covariates[cname] = map[string]interface{}{"kind": "numeric"}
	}

	embeddings := make(map[string]map[string]int)
	for ename, coords := range s.Embeddings {
		nDims := 0
		if len(coords) > 0 {
			nDims = len(coords[0])
		}
		embeddings[ename] = map[string]int{"n_dims": nDims}
	}

	datasetName := s.DatasetName
	if datasetName == "" {
		datasetName = name
	}

	meta := map[string]interface{}{
		"format_version": "1.0",
		"dataset_name":   datasetName,
		"n_cells":        nCells,
		"genes":          s.Genes,
		"covariates":     covariates,
		"embeddings":     embeddings,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(base, "metadata.json"), data, 0o644)
}

type arrayWriter struct {
	enc *zstd.Encoder
}

func (w *arrayWriter) writeArrayMeta(arrayPath, dataType string, shape, chunkShape []int) error {
	if err := os.MkdirAll(arrayPath, 0o755); err != nil {
		return err
	}
	meta := map[string]interface{}{
		"shape":     shape,
		"data_type": dataType,
		"chunk_grid": map[string]interface{}{
			"name":          "regular",
			"configuration": map[string]interface{}{"chunk_shape": chunkShape},
		},
		"chunk_key_encoding": map[string]interface{}{
			"name":          "default",
			"configuration": map[string]interface{}{"separator": "/"},
		},
		"fill_value":  0,
		"codecs":      []map[string]interface{}{{"name": "zstd"}},
		"zarr_format": 3,
		"node_type":   "array",
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(arrayPath, "zarr.json"), data, 0o644)
}

func (w *arrayWriter) writeChunk(arrayPath, key string, raw []byte) error {
	chunkPath := filepath.Join(arrayPath, "c", filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(chunkPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(chunkPath, w.enc.EncodeAll(raw, nil), 0o644)
}

// writeMatrix writes a 2-D float32 array chunked by rows, one chunk column.
func (w *arrayWriter) writeMatrix(arrayPath string, rows [][]float32, nCols int, skipZeroChunks bool) error {
	nRows := len(rows)
	chunk := chunkRows
	if nRows > 0 && nRows < chunk {
		chunk = nRows
	}
	chunkShape := []int{chunk, maxInt(nCols, 1)}
	if err := w.writeArrayMeta(arrayPath, "float32", []int{nRows, nCols}, chunkShape); err != nil {
		return err
	}

	for start := 0; start < nRows; start += chunk {
		end := start + chunk
		if end > nRows {
			end = nRows
		}
		raw := make([]byte, 0, (end-start)*nCols*4)
		allZero := true
		for r := start; r < end; r++ {
			if len(rows[r]) != nCols {
				return fmt.Errorf("row %d has %d values, expected %d", r, len(rows[r]), nCols)
			}
			for _, v := range rows[r] {
				if v != 0 {
					allZero = false
				}
				raw = appendFloat32(raw, v)
			}
		}
		if skipZeroChunks && allZero {
			continue
		}
		key := strconv.Itoa(start/chunk) + "/0"
		if err := w.writeChunk(arrayPath, key, raw); err != nil {
			return err
		}
	}
	return nil
}

func (w *arrayWriter) writeFloat32Vector(arrayPath string, vals []float32) error {
	raw := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		raw = appendFloat32(raw, v)
	}
	return w.writeVector(arrayPath, "float32", len(vals), raw)
}

func (w *arrayWriter) writeInt32Vector(arrayPath string, vals []int32) error {
	raw := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		u := uint32(v)
		raw = append(raw, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
	}
	return w.writeVector(arrayPath, "int32", len(vals), raw)
}

func (w *arrayWriter) writeVector(arrayPath, dataType string, n int, raw []byte) error {
	chunk := chunkRows
	if n > 0 && n < chunk {
		chunk = n
	}
	if err := w.writeArrayMeta(arrayPath, dataType, []int{n}, []int{maxInt(chunk, 1)}); err != nil {
		return err
	}
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		if err := w.writeChunk(arrayPath, strconv.Itoa(start/chunk), raw[start*4:end*4]); err != nil {
			return err
		}
	}
	return nil
}

func appendFloat32(raw []byte, v float32) []byte {
	bits := math.Float32bits(v)
	return append(raw, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
