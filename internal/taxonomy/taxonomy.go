// Package taxonomy holds the static catalog of SAIF security controls the
// rest of the system reasons about. The catalog is loaded once at process
// start and is read-only afterwards, so no locking is needed anywhere.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/saifguard/saifguard/internal/model"
)

// Control is a single catalog entry: a SAIF control or recommendation a claim
// can reference.
type Control struct {
	ID              string         `yaml:"id" json:"id"`
	Name            string         `yaml:"name" json:"name"`
	Description     string         `yaml:"description" json:"description"`
	DefaultSeverity model.Severity `yaml:"default_severity" json:"default_severity"`
}

// Taxonomy is the immutable control catalog.
type Taxonomy struct {
	byID  map[string]Control
	order []string
}

//go:embed saif_controls.yaml
var defaultCatalog []byte

// Default loads the embedded SAIF control catalog.
func Default() (*Taxonomy, error) {
	return parse(defaultCatalog)
}

// Load reads a control catalog from a YAML (or JSON) file. An empty path
// falls back to the embedded default catalog.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: read catalog")
	}
	return parse(data)
}

func parse(data []byte) (*Taxonomy, error) {
	var controls []Control
	if err := yaml.Unmarshal(data, &controls); err != nil {
		return nil, eris.Wrap(err, "taxonomy: unmarshal catalog")
	}
	if len(controls) == 0 {
		return nil, eris.New("taxonomy: catalog is empty")
	}

	byID := make(map[string]Control, len(controls))
	order := make([]string, 0, len(controls))
	for _, c := range controls {
		if c.ID == "" {
			return nil, eris.New("taxonomy: control with empty id")
		}
		if !c.DefaultSeverity.Valid() {
			return nil, eris.Errorf("taxonomy: control %s has invalid severity %q", c.ID, c.DefaultSeverity)
		}
		if _, dup := byID[c.ID]; dup {
			return nil, eris.Errorf("taxonomy: duplicate control id %s", c.ID)
		}
		byID[c.ID] = c
		order = append(order, c.ID)
	}
	sort.Strings(order)

	return &Taxonomy{byID: byID, order: order}, nil
}

// Get returns the control for id, if present.
func (t *Taxonomy) Get(id string) (Control, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Resolve reports whether id is a known control.
func (t *Taxonomy) Resolve(id string) bool {
	_, ok := t.byID[id]
	return ok
}

// SeverityFor returns the default severity for id, or medium when the control
// is unknown (callers are expected to have validated the id already).
func (t *Taxonomy) SeverityFor(id string) model.Severity {
	if c, ok := t.byID[id]; ok {
		return c.DefaultSeverity
	}
	return model.SeverityMedium
}

// Len returns the number of controls in the catalog.
func (t *Taxonomy) Len() int {
	return len(t.byID)
}

// Controls returns all controls in stable (ID-sorted) order.
func (t *Taxonomy) Controls() []Control {
	out := make([]Control, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// PromptBlock renders the catalog as a compact text block for inclusion in
// extraction prompts: one line per control with ID, name, and description.
func (t *Taxonomy) PromptBlock() string {
	var b strings.Builder
	for _, id := range t.order {
		c := t.byID[id]
		fmt.Fprintf(&b, "- %s (%s, default severity %s): %s\n", c.ID, c.Name, c.DefaultSeverity, c.Description)
	}
	return b.String()
}
