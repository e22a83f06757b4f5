// Package zarr provides lazy, chunked reads from Zarr v3 dataset stores.
package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Store provides backed access to one on-disk dataset store. Reads pull in
// only the chunks needed to answer a query; the full matrix is never
// materialized in memory.
type Store struct {
	basePath string
	metadata *StoreMetadata
	decoder  *zstd.Decoder
}

// StoreMetadata describes the arrays inside a store (metadata.json).
type StoreMetadata struct {
	FormatVersion string                   `json:"format_version"`
	DatasetName   string                   `json:"dataset_name"`
	NCells        int                      `json:"n_cells"`
	Genes         []string                 `json:"genes"`
	GeneIndex     map[string]int           `json:"gene_index,omitempty"`
	Covariates    map[string]CovariateInfo `json:"covariates"`
	Embeddings    map[string]EmbeddingInfo `json:"embeddings"`
}

// CovariateInfo describes one per-cell annotation column.
type CovariateInfo struct {
	Kind   string   `json:"kind"` // "categorical", "bool" or "numeric"
	Levels []string `json:"levels,omitempty"`
}

// EmbeddingInfo describes one low-dimensional embedding.
type EmbeddingInfo struct {
	NDims int `json:"n_dims"`
}

// arrayMeta represents Zarr v3 array metadata (zarr.json).
type arrayMeta struct {
	Shape     []int  `json:"shape"`
	DataType  string `json:"data_type"`
	ChunkGrid struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	FillValue interface{} `json:"fill_value"`
	Codecs    []struct {
		Name          string                 `json:"name"`
		Configuration map[string]interface{} `json:"configuration"`
	} `json:"codecs"`
	ZarrFormat int    `json:"zarr_format"`
	NodeType   string `json:"node_type"`
}

// Open opens a store directory and loads its metadata. Array data stays on
// disk until queried.
func Open(basePath string) (*Store, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	s := &Store{
		basePath: basePath,
		decoder:  decoder,
	}

	if err := s.loadMetadata(); err != nil {
		decoder.Close()
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	return s, nil
}

// Metadata returns the store metadata.
func (s *Store) Metadata() *StoreMetadata {
	return s.metadata
}

func (s *Store) loadMetadata() error {
	metadataPath := filepath.Join(s.basePath, "metadata.json")
	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata.json: %w", err)
	}

	var metadata StoreMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to parse metadata.json: %w", err)
	}

	if metadata.NCells <= 0 {
		return fmt.Errorf("invalid n_cells: %d", metadata.NCells)
	}

	// Build gene index from gene list if not present
	if metadata.GeneIndex == nil {
		metadata.GeneIndex = make(map[string]int, len(metadata.Genes))
		for i, gene := range metadata.Genes {
			metadata.GeneIndex[gene] = i
		}
	}

	s.metadata = &metadata
	return nil
}

// loadArrayMeta loads Zarr v3 array metadata.
func (s *Store) loadArrayMeta(arrayPath string) (*arrayMeta, error) {
	metaPath := filepath.Join(arrayPath, "zarr.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta arrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// readChunk reads and decompresses a chunk from Zarr v3 format.
func (s *Store) readChunk(arrayPath string, chunkKey string) ([]byte, error) {
	// Zarr v3 stores chunks in c/ directory
	chunkPath := filepath.Join(arrayPath, "c", chunkKey)

	compressedData, err := os.ReadFile(chunkPath)
	if err != nil {
		return nil, err
	}

	decompressed, err := s.decoder.DecodeAll(compressedData, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %w", err)
	}

	return decompressed, nil
}

func encodeChunkKey(meta *arrayMeta, chunkIndices []int) string {
	sep := meta.ChunkKeyEncoding.Configuration.Separator
	if sep == "" {
		sep = "/"
	}
	parts := make([]string, len(chunkIndices))
	for i, idx := range chunkIndices {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, sep)
}

func chunkShapeAt(meta *arrayMeta, chunkIndices []int) ([]int, error) {
	if len(meta.Shape) == 0 || len(meta.ChunkGrid.Configuration.ChunkShape) == 0 {
		return nil, fmt.Errorf("invalid zarr metadata: missing shape/chunk_shape")
	}
	if len(meta.Shape) != len(meta.ChunkGrid.Configuration.ChunkShape) {
		return nil, fmt.Errorf("invalid zarr metadata: shape dims (%d) != chunk dims (%d)", len(meta.Shape), len(meta.ChunkGrid.Configuration.ChunkShape))
	}
	if len(chunkIndices) != len(meta.Shape) {
		return nil, fmt.Errorf("invalid chunk indices: got %d dims, expected %d", len(chunkIndices), len(meta.Shape))
	}

	actual := make([]int, len(meta.Shape))
	for d := range meta.Shape {
		chunkLen := meta.ChunkGrid.Configuration.ChunkShape[d]
		if chunkLen <= 0 {
			return nil, fmt.Errorf("invalid chunk shape at dim %d: %d", d, chunkLen)
		}
		start := chunkIndices[d] * chunkLen
		if start < 0 || start >= meta.Shape[d] {
			return nil, fmt.Errorf("chunk index out of range at dim %d: start=%d shape=%d", d, start, meta.Shape[d])
		}
		remaining := meta.Shape[d] - start
		if remaining < chunkLen {
			chunkLen = remaining
		}
		actual[d] = chunkLen
	}

	return actual, nil
}

func dtypeSize(dataType string) (int, error) {
	switch dataType {
	case "float32", "int32", "uint32":
		return 4, nil
	default:
		return 0, fmt.Errorf("unsupported zarr data_type: %s", dataType)
	}
}

func fillValueBytes(meta *arrayMeta) ([]byte, error) {
	size, err := dtypeSize(meta.DataType)
	if err != nil {
		return nil, err
	}

	// Default fill to 0 if unspecified.
	fill := meta.FillValue
	if fill == nil {
		return make([]byte, size), nil
	}

	switch meta.DataType {
	case "float32":
		var v float32
		switch t := fill.(type) {
		case float64:
			v = float32(t)
		case float32:
			v = t
		case int:
			v = float32(t)
		default:
			return nil, fmt.Errorf("unsupported fill_value type for float32: %T", fill)
		}
		bits := math.Float32bits(v)
		return []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}, nil
	case "int32":
		var v int32
		switch t := fill.(type) {
		case float64:
			v = int32(t)
		case int:
			v = int32(t)
		case int32:
			v = t
		default:
			return nil, fmt.Errorf("unsupported fill_value type for int32: %T", fill)
		}
		u := uint32(v)
		return []byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)}, nil
	case "uint32":
		var v uint32
		switch t := fill.(type) {
		case float64:
			v = uint32(t)
		case int:
			v = uint32(t)
		case uint32:
			v = t
		default:
			return nil, fmt.Errorf("unsupported fill_value type for uint32: %T", fill)
		}
		return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}, nil
	default:
		return nil, fmt.Errorf("unsupported zarr data_type: %s", meta.DataType)
	}
}

func repeatFillBytes(fill []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	if len(fill) == 0 {
		return make([]byte, n)
	}
	// Fast path: fill is all zeros; make() already zero-initializes.
	allZero := true
	for _, b := range fill {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return make([]byte, len(fill)*n)
	}

	out := make([]byte, len(fill)*n)
	for i := 0; i < n; i++ {
		copy(out[i*len(fill):(i+1)*len(fill)], fill)
	}
	return out
}

func product(ints []int) int {
	p := 1
	for _, v := range ints {
		p *= v
	}
	return p
}

// readChunkAt reads one chunk, synthesizing a fill-value chunk when the chunk
// file is absent. Sparsely written arrays (e.g. sparse embeddings) are
// densified by this path.
func (s *Store) readChunkAt(arrayPath string, meta *arrayMeta, chunkIndices []int) ([]byte, error) {
	key := encodeChunkKey(meta, chunkIndices)
	data, err := s.readChunk(arrayPath, key)
	if err == nil {
		return data, nil
	}

	if os.IsNotExist(err) {
		shape, shapeErr := chunkShapeAt(meta, chunkIndices)
		if shapeErr != nil {
			return nil, shapeErr
		}
		elementCount := product(shape)
		fillBytes, fillErr := fillValueBytes(meta)
		if fillErr != nil {
			return nil, fillErr
		}
		return repeatFillBytes(fillBytes, elementCount), nil
	}

	return nil, err
}

// ReadMatrixColumn reads one column of a 2-D float32 array, touching only the
// chunk column that contains it.
func (s *Store) ReadMatrixColumn(array string, col int) ([]float32, error) {
	arrayPath := filepath.Join(s.basePath, filepath.FromSlash(array))
	meta, err := s.loadArrayMeta(arrayPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s metadata: %w", array, err)
	}

	if len(meta.Shape) != 2 {
		return nil, fmt.Errorf("unexpected %s shape: %v", array, meta.Shape)
	}
	if meta.DataType != "float32" {
		return nil, fmt.Errorf("unexpected %s data_type: %s", array, meta.DataType)
	}
	nRows := meta.Shape[0]
	nCols := meta.Shape[1]
	if col < 0 || col >= nCols {
		return nil, fmt.Errorf("column index out of range: %d (n_cols=%d)", col, nCols)
	}
	if len(meta.ChunkGrid.Configuration.ChunkShape) != 2 {
		return nil, fmt.Errorf("unexpected %s chunk shape: %v", array, meta.ChunkGrid.Configuration.ChunkShape)
	}

	rowChunk := meta.ChunkGrid.Configuration.ChunkShape[0]
	colChunk := meta.ChunkGrid.Configuration.ChunkShape[1]
	if rowChunk <= 0 || colChunk <= 0 {
		return nil, fmt.Errorf("invalid %s chunk shape: %v", array, meta.ChunkGrid.Configuration.ChunkShape)
	}

	nRowChunks := ceilDiv(nRows, rowChunk)
	colChunkIdx := col / colChunk
	colOffset := col % colChunk

	out := make([]float32, nRows)
	for rChunk := 0; rChunk < nRowChunks; rChunk++ {
		rowStart := rChunk * rowChunk
		rowLen := min(rowChunk, nRows-rowStart)
		colStart := colChunkIdx * colChunk
		colLen := min(colChunk, nCols-colStart)

		chunkData, err := s.readChunkAt(arrayPath, meta, []int{rChunk, colChunkIdx})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s chunk %d/%d: %w", array, rChunk, colChunkIdx, err)
		}
		if len(chunkData) < rowLen*colLen*4 {
			return nil, fmt.Errorf("%s chunk %d/%d too short: got %d bytes, expected %d", array, rChunk, colChunkIdx, len(chunkData), rowLen*colLen*4)
		}
		if colOffset >= colLen {
			return nil, fmt.Errorf("column offset out of chunk range: offset=%d colLen=%d", colOffset, colLen)
		}

		for i := 0; i < rowLen; i++ {
			off := (i*colLen + colOffset) * 4
			bits := uint32(chunkData[off]) |
				uint32(chunkData[off+1])<<8 |
				uint32(chunkData[off+2])<<16 |
				uint32(chunkData[off+3])<<24
			out[rowStart+i] = math.Float32frombits(bits)
		}
	}

	return out, nil
}

// ReadFloat32Vector reads a 1-D float32 array in full.
func (s *Store) ReadFloat32Vector(array string) ([]float32, error) {
	raw, n, err := s.readVector(array, "float32")
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		off := i * 4
		bits := uint32(raw[off]) |
			uint32(raw[off+1])<<8 |
			uint32(raw[off+2])<<16 |
			uint32(raw[off+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// ReadInt32Vector reads a 1-D int32 array in full.
func (s *Store) ReadInt32Vector(array string) ([]int32, error) {
	raw, n, err := s.readVector(array, "int32")
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		off := i * 4
		u := uint32(raw[off]) |
			uint32(raw[off+1])<<8 |
			uint32(raw[off+2])<<16 |
			uint32(raw[off+3])<<24
		out[i] = int32(u)
	}
	return out, nil
}

// readVector gathers all chunks of a 1-D array into one contiguous buffer.
func (s *Store) readVector(array, wantType string) ([]byte, int, error) {
	arrayPath := filepath.Join(s.basePath, filepath.FromSlash(array))
	meta, err := s.loadArrayMeta(arrayPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load %s metadata: %w", array, err)
	}

	if len(meta.Shape) != 1 {
		return nil, 0, fmt.Errorf("unexpected %s shape: %v", array, meta.Shape)
	}
	if meta.DataType != wantType {
		return nil, 0, fmt.Errorf("unexpected %s data_type: %s (want %s)", array, meta.DataType, wantType)
	}
	if len(meta.ChunkGrid.Configuration.ChunkShape) != 1 {
		return nil, 0, fmt.Errorf("unexpected %s chunk shape: %v", array, meta.ChunkGrid.Configuration.ChunkShape)
	}

	n := meta.Shape[0]
	chunkLen := meta.ChunkGrid.Configuration.ChunkShape[0]
	if chunkLen <= 0 {
		return nil, 0, fmt.Errorf("invalid %s chunk shape: %v", array, meta.ChunkGrid.Configuration.ChunkShape)
	}
	nChunks := ceilDiv(n, chunkLen)

	out := make([]byte, n*4)
	for chunk := 0; chunk < nChunks; chunk++ {
		start := chunk * chunkLen
		length := min(chunkLen, n-start)

		chunkData, err := s.readChunkAt(arrayPath, meta, []int{chunk})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load %s chunk %d: %w", array, chunk, err)
		}
		if len(chunkData) < length*4 {
			return nil, 0, fmt.Errorf("%s chunk %d too short: got %d bytes, expected %d", array, chunk, len(chunkData), length*4)
		}
		copy(out[start*4:(start+length)*4], chunkData[:length*4])
	}

	return out, n, nil
}

// Close releases resources.
func (s *Store) Close() {
	if s.decoder != nil {
		s.decoder.Close()
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
