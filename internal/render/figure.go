// Package render draws chart descriptions to PNG using fogleman/gg.
package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"sort"
	"sync"

	"github.com/fogleman/gg"

	"github.com/cellscope/server/internal/plot"
	"github.com/cellscope/server/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	Width           int
	Height          int
	DefaultColormap string
	PointSize       float64
}

// FigureRenderer renders scatter and box figures.
type FigureRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
	colormaps   map[string]colormap.Colormap
}

var (
	uncoloredPoint = color.RGBA{31, 119, 180, 255}
	boxStroke      = color.RGBA{60, 60, 60, 255}
	axisGray       = color.RGBA{120, 120, 120, 255}
	labelGray      = color.RGBA{40, 40, 40, 255}
)

// NewFigureRenderer creates a new figure renderer.
func NewFigureRenderer(cfg Config) *FigureRenderer {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.PointSize <= 0 {
		cfg.PointSize = 3
	}
	if cfg.DefaultColormap == "" {
		cfg.DefaultColormap = "viridis"
	}

	r := &FigureRenderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Width, cfg.Height)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
		colormaps: make(map[string]colormap.Colormap),
	}

	r.colormaps["viridis"] = colormap.Viridis
	r.colormaps["plasma"] = colormap.Plasma
	r.colormaps["inferno"] = colormap.Inferno
	r.colormaps["magma"] = colormap.Magma

	return r
}

func (r *FigureRenderer) continuousColormap() colormap.Colormap {
	if cm, ok := r.colormaps[r.config.DefaultColormap]; ok {
		return cm
	}
	return colormap.Viridis
}

// RenderScatter renders an embedding scatter. Axes carry no ticks and the
// coordinate mapping preserves a 1:1 aspect ratio.
func (r *FigureRenderer) RenderScatter(p *plot.ScatterPlot) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()

	if p == nil || p.Empty || len(p.X) == 0 {
		r.drawEmptyState(dc)
		return r.encodeContext(dc)
	}

	w := float64(r.config.Width)
	h := float64(r.config.Height)
	const margin = 24.0

	minX, maxX := bounds(p.X)
	minY, maxY := bounds(p.Y)
	dx := maxX - minX
	dy := maxY - minY
	if dx == 0 {
		dx = 1
	}
	if dy == 0 {
		dy = 1
	}

	// One scale for both axes keeps the embedding's aspect ratio at 1:1.
	scale := math.Min((w-2*margin)/dx, (h-2*margin)/dy)
	offX := (w - dx*scale) / 2
	offY := (h - dy*scale) / 2

	var exprMin, exprMax float64
	if p.ColorMode == plot.ColorModeExpression {
		exprMin, exprMax = bounds(p.Expression)
		if exprMax == exprMin {
			exprMax = exprMin + 1
		}
	}
	cm := r.continuousColormap()

	for i := range p.X {
		px := offX + (float64(p.X[i])-minX)*scale
		py := h - offY - (float64(p.Y[i])-minY)*scale

		switch p.ColorMode {
		case plot.ColorModeExpression:
			t := (float64(p.Expression[i]) - exprMin) / (exprMax - exprMin)
			dc.SetColor(cm.At(t))
		case plot.ColorModeCategory:
			dc.SetColor(colormap.Categorical.AtIndex(int(p.Codes[i])))
		default:
			dc.SetColor(uncoloredPoint)
		}

		dc.DrawCircle(px, py, r.config.PointSize)
		dc.Fill()
	}

	if p.ColorLabel != "" {
		dc.SetColor(labelGray)
		dc.DrawStringAnchored(p.ColorLabel, margin, margin/2, 0, 0.5)
	}

	return r.encodeContext(dc)
}

// RenderBox renders a grouped box figure. Quartiles are computed at draw
// time; the description carries raw values.
func (r *FigureRenderer) RenderBox(p *plot.BoxPlot) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()

	if p == nil || p.Empty || len(p.Groups) == 0 {
		r.drawEmptyState(dc)
		return r.encodeContext(dc)
	}

	w := float64(r.config.Width)
	h := float64(r.config.Height)
	const (
		top    = 36.0
		bottom = 48.0
		left   = 40.0
		right  = 16.0
	)
	plotW := w - left - right
	plotH := h - top - bottom

	facetLevels := distinct(p.Groups, func(g plot.BoxGroup) string { return g.FacetLevel })
	xLevels := distinct(p.Groups, func(g plot.BoxGroup) string { return g.XLevel })
	colorLevels := distinct(p.Groups, func(g plot.BoxGroup) string { return g.ColorLevel })

	minV, maxV := 0.0, 0.0
	for _, g := range p.Groups {
		gMin, gMax := bounds(g.Values)
		minV = math.Min(minV, gMin)
		maxV = math.Max(maxV, gMax)
	}
	if maxV == minV {
		maxV = minV + 1
	}
	vy := func(v float64) float64 {
		return top + plotH*(1-(v-minV)/(maxV-minV))
	}

	facetW := plotW / float64(len(facetLevels))
	slotW := facetW / float64(len(xLevels))
	boxW := slotW * 0.8 / float64(len(colorLevels))

	for _, g := range p.Groups {
		if len(g.Values) == 0 {
			continue
		}
		fi := index(facetLevels, g.FacetLevel)
		xi := index(xLevels, g.XLevel)
		ci := index(colorLevels, g.ColorLevel)

		slotX := left + float64(fi)*facetW + float64(xi)*slotW
		boxX := slotX + slotW*0.1 + float64(ci)*boxW
		boxCenter := boxX + boxW/2

		q := quartiles(g.Values)

		if p.ColorVar != "" {
			dc.SetColor(colormap.Categorical.AtIndex(ci))
		} else {
			dc.SetColor(uncoloredPoint)
		}
		dc.DrawRectangle(boxX, vy(q.q3), boxW, vy(q.q1)-vy(q.q3))
		dc.Fill()

		dc.SetColor(boxStroke)
		dc.SetLineWidth(1)
		dc.DrawRectangle(boxX, vy(q.q3), boxW, vy(q.q1)-vy(q.q3))
		dc.Stroke()

		// Median and whiskers
		dc.SetLineWidth(2)
		dc.DrawLine(boxX, vy(q.median), boxX+boxW, vy(q.median))
		dc.Stroke()
		dc.SetLineWidth(1)
		dc.DrawLine(boxCenter, vy(q.q3), boxCenter, vy(q.max))
		dc.DrawLine(boxCenter, vy(q.q1), boxCenter, vy(q.min))
		dc.Stroke()
	}

	// Facet separators and labels
	dc.SetColor(axisGray)
	for fi, level := range facetLevels {
		fx := left + float64(fi)*facetW
		if fi > 0 {
			dc.DrawLine(fx, top, fx, top+plotH)
			dc.Stroke()
		}
		if p.FacetVar != "" {
			dc.SetColor(labelGray)
			dc.DrawStringAnchored(level, fx+facetW/2, top/2, 0.5, 0.5)
			dc.SetColor(axisGray)
		}
	}

	// X tick labels per facet slot
	dc.SetColor(labelGray)
	for fi := range facetLevels {
		for xi, level := range xLevels {
			lx := left + float64(fi)*facetW + float64(xi)*slotW + slotW/2
			dc.DrawStringAnchored(level, lx, h-bottom+14, 0.5, 0.5)
		}
	}
	dc.DrawStringAnchored(p.XVar, left+plotW/2, h-bottom/2+8, 0.5, 0.5)

	if p.NoGeneSelected {
		dc.SetColor(color.RGBA{180, 60, 60, 255})
		dc.DrawStringAnchored("no gene selected", left, 14, 0, 0.5)
	} else if p.Gene != "" {
		dc.DrawStringAnchored(p.Gene, left, 14, 0, 0.5)
	}

	// Baseline
	dc.SetColor(axisGray)
	dc.DrawLine(left, top+plotH, left+plotW, top+plotH)
	dc.Stroke()

	return r.encodeContext(dc)
}

// drawEmptyState renders the "nothing to show" placeholder.
func (r *FigureRenderer) drawEmptyState(dc *gg.Context) {
	w := float64(r.config.Width)
	h := float64(r.config.Height)

	dc.SetColor(axisGray)
	dc.SetLineWidth(1)
	dc.DrawRectangle(0.5, 0.5, w-1, h-1)
	dc.Stroke()
	dc.DrawStringAnchored("nothing to show", w/2, h/2, 0.5, 0.5)
}

func (r *FigureRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

func bounds(values []float32) (minV, maxV float64) {
	if len(values) == 0 {
		return 0, 0
	}
	minV = float64(values[0])
	maxV = float64(values[0])
	for _, v := range values[1:] {
		f := float64(v)
		if f < minV {
			minV = f
		}
		if f > maxV {
			maxV = f
		}
	}
	return minV, maxV
}

func distinct(groups []plot.BoxGroup, get func(plot.BoxGroup) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		v := get(g)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func index(levels []string, v string) int {
	for i, l := range levels {
		if l == v {
			return i
		}
	}
	return 0
}

type boxStats struct {
	min, q1, median, q3, max float64
}

func quartiles(values []float32) boxStats {
	sorted := make([]float64, len(values))
	for i, v := range values {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)

	return boxStats{
		min:    sorted[0],
		q1:     percentile(sorted, 0.25),
		median: percentile(sorted, 0.5),
		q3:     percentile(sorted, 0.75),
		max:    sorted[len(sorted)-1],
	}
}

// percentile interpolates linearly between adjacent ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lower := int(pos)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
