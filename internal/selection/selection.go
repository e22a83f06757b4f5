// Package selection implements the cascading control-state machine.
//
// A Selection is the full set of user-chosen control values for one UI
// session. The machine owns no data; it normalizes selections against the
// registry so that every non-empty field references a value that exists for
// the currently selected dataset.
package selection

import (
	"github.com/cellscope/server/internal/dataset"
	"github.com/cellscope/server/internal/options"
)

// ColorSource selects what colors the embedding scatter.
type ColorSource string

const (
	ColorByGene     ColorSource = "gene"
	ColorByCategory ColorSource = "categorical"
)

// MaxGroupingVars bounds the grouping list: entries map positionally to
// (x-axis, color, facet).
const MaxGroupingVars = 3

// Selection holds the current control values of one session.
type Selection struct {
	DatasetID     string      `json:"dataset_id"`
	GeneID        string      `json:"gene_id,omitempty"`
	EmbeddingName string      `json:"embedding_name,omitempty"`
	ColorSource   ColorSource `json:"color_source,omitempty"`
	ColorVar      string      `json:"color_var,omitempty"`
	GroupingVars  []string    `json:"grouping_vars,omitempty"`
	GeneSearch    string      `json:"gene_search,omitempty"`
}

// Options holds the legal values for each dataset-bound control.
type Options struct {
	Genes      []string `json:"genes"`
	Embeddings []string `json:"embeddings"`
	Groupings  []string `json:"groupings"`
}

// Machine normalizes selections against the dataset registry.
type Machine struct {
	registry *dataset.Registry
}

// NewMachine creates a machine over the registry.
func NewMachine(registry *dataset.Registry) *Machine {
	return &Machine{registry: registry}
}

// Initial returns the starting state: the first registry dataset selected,
// every other field empty.
func (m *Machine) Initial() Selection {
	return Selection{
		DatasetID:   m.registry.DefaultID(),
		ColorSource: ColorByGene,
	}
}

// SetDataset applies a dataset change and runs the cascade.
func (m *Machine) SetDataset(sel Selection, datasetID string) (Selection, Options, error) {
	sel.DatasetID = datasetID
	return m.Resolve(sel)
}

// Resolve restores the selection invariant for the selected dataset, in
// fixed order: recompute option lists, then reset each single-valued
// dataset-bound field whose value is no longer legal. The grouping list is
// filtered in place, keeping order (eager policy, see DESIGN.md).
func (m *Machine) Resolve(sel Selection) (Selection, Options, error) {
	if sel.DatasetID == "" {
		sel.DatasetID = m.registry.DefaultID()
	}

	d, err := m.registry.Get(sel.DatasetID)
	if err != nil {
		return sel, Options{}, err
	}

	opts := Options{
		Genes:      options.GeneOptions(d, sel.GeneSearch),
		Embeddings: options.EmbeddingOptions(d),
		Groupings:  options.GroupingOptions(d),
	}

	if sel.GeneID != "" && !d.HasGene(sel.GeneID) {
		sel.GeneID = ""
	}
	if sel.EmbeddingName != "" && !d.HasEmbedding(sel.EmbeddingName) {
		sel.EmbeddingName = ""
	}
	if sel.ColorVar != "" && !contains(opts.Groupings, sel.ColorVar) {
		sel.ColorVar = ""
	}
	if sel.ColorSource == "" {
		sel.ColorSource = ColorByGene
	}

	sel.GroupingVars = EffectiveGroupings(sel.GroupingVars, opts.Groupings)

	return sel, opts, nil
}

// EffectiveGroupings truncates the grouping list to MaxGroupingVars entries
// and drops any entry not in the legal set, preserving order. The surviving
// list maps positionally to (x-axis, color, facet).
func EffectiveGroupings(vars, legal []string) []string {
	if len(vars) > MaxGroupingVars {
		vars = vars[:MaxGroupingVars]
	}
	var out []string
	for _, v := range vars {
		if contains(legal, v) {
			out = append(out, v)
		}
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
