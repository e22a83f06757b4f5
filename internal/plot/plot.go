// Package plot assembles chart descriptions from a resolved selection.
//
// Descriptions are plain values: assembling the same selection twice yields
// identical output. Missing inputs (no embedding, no grouping var) produce
// explicit empty-state descriptions, never errors.
package plot

import (
	"fmt"
	"sort"

	"github.com/cellscope/server/internal/dataset"
	"github.com/cellscope/server/internal/selection"
	"github.com/cellscope/server/internal/view"
)

// Color modes for the embedding scatter.
const (
	ColorModeNone       = ""
	ColorModeExpression = "expression"
	ColorModeCategory   = "category"
)

// AxisStyle controls how a figure's axes are drawn.
type AxisStyle struct {
	ShowTicks   bool    `json:"show_ticks"`
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
}

// ScatterPlot describes the 2D embedding figure.
type ScatterPlot struct {
	Empty     bool   `json:"empty"`
	Dataset   string `json:"dataset"`
	Embedding string `json:"embedding,omitempty"`

	X []float32 `json:"x,omitempty"`
	Y []float32 `json:"y,omitempty"`

	ColorMode  string    `json:"color_mode,omitempty"`
	ColorLabel string    `json:"color_label,omitempty"`
	Expression []float32 `json:"expression,omitempty"` // continuous coloring
	Levels     []string  `json:"levels,omitempty"`     // discrete coloring
	Codes      []int32   `json:"codes,omitempty"`

	Axes AxisStyle `json:"axes"`
}

// BoxGroup is one box in the grouped box figure.
type BoxGroup struct {
	XLevel     string    `json:"x"`
	ColorLevel string    `json:"color,omitempty"`
	FacetLevel string    `json:"facet,omitempty"`
	Values     []float32 `json:"values"`
}

// BoxPlot describes the grouped expression distribution figure. The first
// grouping variable is the x-axis, the second colors, the third facets.
type BoxPlot struct {
	Empty   bool   `json:"empty"`
	Dataset string `json:"dataset"`
	Gene    string `json:"gene,omitempty"`

	XVar     string `json:"x_var,omitempty"`
	ColorVar string `json:"color_var,omitempty"`
	FacetVar string `json:"facet_var,omitempty"`

	// NoGeneSelected marks the all-zero placeholder column, so renderers
	// can annotate rather than silently plot zeros.
	NoGeneSelected bool `json:"no_gene_selected,omitempty"`

	Groups []BoxGroup `json:"groups,omitempty"`
}

// scatterAxes is fixed: embeddings are unitless, so no ticks and a 1:1
// aspect ratio.
var scatterAxes = AxisStyle{ShowTicks: false, AspectRatio: 1}

// BuildEmbeddingPlot assembles the scatter description. An empty embedding
// name yields the empty-state plot.
func BuildEmbeddingPlot(d *dataset.Dataset, sel selection.Selection) (*ScatterPlot, error) {
	p := &ScatterPlot{Dataset: d.ID(), Axes: scatterAxes}

	if sel.EmbeddingName == "" {
		p.Empty = true
		return p, nil
	}

	coords, err := view.EmbeddingCoordinates(d, sel.EmbeddingName)
	if err != nil {
		return nil, err
	}
	p.Embedding = sel.EmbeddingName
	p.X = coords.X
	p.Y = coords.Y

	switch {
	case sel.ColorSource == selection.ColorByGene && sel.GeneID != "":
		col, err := view.GeneColumn(d, sel.GeneID)
		if err != nil {
			return nil, err
		}
		p.ColorMode = ColorModeExpression
		p.ColorLabel = sel.GeneID
		p.Expression = col.Values
	case sel.ColorSource == selection.ColorByCategory && sel.ColorVar != "":
		table, err := view.CovariateTable(d, []string{sel.ColorVar})
		if err != nil {
			return nil, err
		}
		c := table.Columns[0]
		if c.Kind != dataset.Numeric {
			p.ColorMode = ColorModeCategory
			p.ColorLabel = c.Name
			p.Levels = c.Levels
			p.Codes = c.Codes
		}
	}

	return p, nil
}

// BuildGroupedBoxPlot assembles the grouped box description. legalGroupings
// is the current grouping option list; the selection's grouping vars are
// truncated to three and filtered against it. No surviving var yields the
// empty-state plot. Without a gene, the all-zero placeholder column is used
// and marked.
func BuildGroupedBoxPlot(d *dataset.Dataset, sel selection.Selection, legalGroupings []string) (*BoxPlot, error) {
	p := &BoxPlot{Dataset: d.ID(), Gene: sel.GeneID}

	groupVars := selection.EffectiveGroupings(sel.GroupingVars, legalGroupings)
	if len(groupVars) == 0 {
		p.Empty = true
		return p, nil
	}

	var expr *view.Column
	if sel.GeneID != "" {
		col, err := view.GeneColumn(d, sel.GeneID)
		if err != nil {
			return nil, err
		}
		expr = col
	} else {
		expr = view.ZeroColumn(d)
		p.NoGeneSelected = true
	}

	table, err := view.CovariateTable(d, groupVars)
	if err != nil {
		return nil, err
	}

	p.XVar = groupVars[0]
	xCol := table.Columns[0]
	var colorCol, facetCol *dataset.Covariate
	if len(groupVars) > 1 {
		p.ColorVar = groupVars[1]
		colorCol = table.Columns[1]
	}
	if len(groupVars) > 2 {
		p.FacetVar = groupVars[2]
		facetCol = table.Columns[2]
	}

	type groupKey struct {
		facet, x, color int32
	}
	grouped := make(map[groupKey][]float32)
	for i, v := range expr.Values {
		key := groupKey{x: codeAt(xCol, i), color: codeAt(colorCol, i), facet: codeAt(facetCol, i)}
		grouped[key] = append(grouped[key], v)
	}

	keys := make([]groupKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].facet != keys[j].facet {
			return keys[i].facet < keys[j].facet
		}
		if keys[i].x != keys[j].x {
			return keys[i].x < keys[j].x
		}
		return keys[i].color < keys[j].color
	})

	p.Groups = make([]BoxGroup, 0, len(keys))
	for _, k := range keys {
		g := BoxGroup{
			XLevel: levelLabel(xCol, k.x),
			Values: grouped[k],
		}
		if colorCol != nil {
			g.ColorLevel = levelLabel(colorCol, k.color)
		}
		if facetCol != nil {
			g.FacetLevel = levelLabel(facetCol, k.facet)
		}
		p.Groups = append(p.Groups, g)
	}

	return p, nil
}

// codeAt returns the level code of cell i, or -1 when the column is absent.
func codeAt(c *dataset.Covariate, i int) int32 {
	if c == nil || i >= len(c.Codes) {
		return -1
	}
	return c.Codes[i]
}

func levelLabel(c *dataset.Covariate, code int32) string {
	if c == nil {
		return ""
	}
	if code < 0 || int(code) >= len(c.Levels) {
		return fmt.Sprintf("level %d", code)
	}
	return c.Levels[code]
}
